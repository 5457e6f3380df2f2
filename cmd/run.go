package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"forgetest/internal/harness"
	"forgetest/internal/scenario"
	"forgetest/internal/verify"
	"forgetest/pkg/logging"
)

var (
	runBinary    string
	runServe     bool
	runWatch     bool
	runNoCleanup bool
)

// verificationFailedError distinguishes "ran fine but assertions failed"
// from operational errors, for the exit code.
type verificationFailedError struct {
	failed, total int
}

func (e *verificationFailedError) Error() string {
	return fmt.Sprintf("%d of %d verifications failed", e.failed, e.total)
}

var runCmd = &cobra.Command{
	Use:   "run <scenario-path>",
	Short: "Run scenarios against a freshly launched mock server",
	Long: `Run loads one or more YAML scenarios, launches a mock server per
scenario, registers the scenario's stubs, and evaluates its verifications.

With --serve the command blocks after registering stubs so external clients
can drive traffic; verifications run on shutdown (Ctrl+C). With --watch the
scenario file is re-applied whenever it changes on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runScenarios,
}

func init() {
	runCmd.Flags().StringVar(&runBinary, "binary", "", "Mock server executable (default \"mockforge\" in PATH)")
	runCmd.Flags().BoolVar(&runServe, "serve", false, "Keep the server running until interrupted, then verify")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-apply stubs when the scenario file changes (implies --serve)")
	runCmd.Flags().BoolVar(&runNoCleanup, "no-cleanup", false, "Skip the stale process sweep at startup")
	rootCmd.AddCommand(runCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	path := args[0]
	if runWatch {
		runServe = true
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return fmt.Errorf("--watch requires a single scenario file")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !runNoCleanup {
		harness.CleanupStaleServers(runBinary)
	}

	scenarios, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if runServe && len(scenarios) != 1 {
		return fmt.Errorf("--serve requires exactly one scenario, got %d", len(scenarios))
	}

	failed, total := 0, 0
	for _, sc := range scenarios {
		f, t, err := executeScenario(ctx, sc, path)
		if err != nil {
			return err
		}
		failed += f
		total += t
	}
	if failed > 0 {
		return &verificationFailedError{failed: failed, total: total}
	}
	return nil
}

func executeScenario(ctx context.Context, sc scenario.Scenario, path string) (failed, total int, err error) {
	srv := harness.New(harness.Config{
		Binary:         firstNonEmpty(runBinary, sc.Server.Binary),
		HTTPPort:       sc.Server.HTTPPort,
		ConfigFile:     sc.Server.ConfigFile,
		SpecFile:       sc.Server.SpecFile,
		StartupTimeout: sc.Server.StartupTimeout.AsDuration(),
	})
	defer srv.Stop() //nolint:errcheck

	if err := startWithSpinner(ctx, srv, sc.Name); err != nil {
		return 0, 0, err
	}
	fmt.Printf("%s: server on %s (admin %s)\n", sc.Name, srv.URL(), srv.AdminURL())

	applyStubs(ctx, srv, sc.Stubs)

	if runServe {
		if runWatch {
			watcher, werr := watchScenario(ctx, srv, path)
			if werr != nil {
				logging.Warn("Run", "File watching disabled: %v", werr)
			} else {
				defer watcher.Close()
			}
		}
		fmt.Println("Serving until interrupted...")
		<-ctx.Done()
		// The signal context is spent; verifications get their own deadline.
		verifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ctx = verifyCtx
	}

	failed, total = runVerifications(ctx, srv, sc.Verifications)
	return failed, total, nil
}

func startWithSpinner(ctx context.Context, srv *harness.MockServer, name string) error {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = fmt.Sprintf(" starting mock server for %s...", name)
	if !debugFlag {
		sp.Start()
		defer sp.Stop()
	}
	return srv.Start(ctx)
}

func applyStubs(ctx context.Context, srv *harness.MockServer, stubs []scenario.Stub) {
	for _, st := range stubs {
		registered := srv.AddStub(ctx, st.ToResponseStub())
		logging.Debug("Run", "Registered stub %s %s as %s", st.Method, st.Path, registered.ID)
	}
}

// watchScenario re-applies the scenario's stubs whenever the file changes.
// Editors replace files on save, so the watch is on the directory and
// filtered by name.
func watchScenario(ctx context.Context, srv *harness.MockServer, path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	target := filepath.Base(path)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target || !event.Op.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				scenarios, err := scenario.Load(path)
				if err != nil {
					logging.Warn("Run", "Ignoring scenario reload: %v", err)
					continue
				}
				logging.Info("Run", "Scenario file changed, re-applying stubs")
				srv.ClearStubs(ctx)
				applyStubs(ctx, srv, scenarios[0].Stubs)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("Run", "File watcher error: %v", err)
			}
		}
	}()
	return watcher, nil
}

func runVerifications(ctx context.Context, srv *harness.MockServer, verifications []scenario.Verification) (failed, total int) {
	if len(verifications) == 0 {
		return 0, 0
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Verification", "Type", "Result", "Count", "Detail"})

	for i, v := range verifications {
		name := v.Name
		if name == "" {
			name = fmt.Sprintf("verification %d", i+1)
		}

		var row table.Row
		switch v.Kind {
		case scenario.KindCount:
			count := srv.CountRequests(ctx, v.Pattern.ToPattern())
			row = table.Row{name, v.Kind, "n/a", count, ""}
		default:
			result := evaluate(ctx, srv, v)
			total++
			status := "PASS"
			if !result.Matched {
				status = "FAIL"
				failed++
			}
			row = table.Row{name, v.Kind, status, result.Count, result.ErrorMessage}
		}
		t.AppendRow(row)
	}
	t.Render()
	return failed, total
}

func evaluate(ctx context.Context, srv *harness.MockServer, v scenario.Verification) verify.Result {
	switch v.Kind {
	case scenario.KindNever:
		return srv.VerifyNever(ctx, v.Pattern.ToPattern())
	case scenario.KindAtLeast:
		return srv.VerifyAtLeast(ctx, v.Pattern.ToPattern(), v.Min)
	case scenario.KindSequence:
		patterns := make([]verify.Pattern, 0, len(v.Patterns))
		for _, p := range v.Patterns {
			patterns = append(patterns, p.ToPattern())
		}
		return srv.VerifySequence(ctx, patterns...)
	default:
		return srv.Verify(ctx, v.Pattern.ToPattern(), v.Expected.ToCount())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
