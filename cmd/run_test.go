package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeVerificationFailed, getExitCode(&verificationFailedError{failed: 1, total: 3}))
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))
}

func TestVerificationFailedErrorMessage(t *testing.T) {
	err := &verificationFailedError{failed: 2, total: 5}
	assert.Equal(t, "2 of 5 verifications failed", err.Error())
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
	assert.Equal(t, "", firstNonEmpty())
}
