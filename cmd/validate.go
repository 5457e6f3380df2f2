package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"forgetest/internal/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario-path>",
	Short: "Check scenario files without launching a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarios, err := scenario.Load(args[0])
		if err != nil {
			return err
		}
		for _, sc := range scenarios {
			fmt.Printf("ok: %s (%d stubs, %d verifications)\n", sc.Name, len(sc.Stubs), len(sc.Verifications))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
