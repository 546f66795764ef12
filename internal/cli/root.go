package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/atracrawl/atra/internal/build"
	"github.com/atracrawl/atra/internal/config"
	"github.com/spf13/cobra"
)

var (
	configDir             string
	stateDir              string
	generateExampleConfig bool
)

// rootCmd is the atra entry point: a config-driven crawl runner with
// two crawl modes (single, multi) plus the example-config generator
// from spec.md §6.
var rootCmd = &cobra.Command{
	Use:     "atra",
	Short:   "A polite, single-node web crawler.",
	Version: build.FullVersion(),
	Long: `atra crawls the web one host at a time, respecting robots.txt and
per-host politeness delays, and writes what it fetches to a WARC file
plus a content-addressed big-file store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !generateExampleConfig {
			return nil
		}
		dir := configDir
		if dir == "" {
			dir = "."
		}
		if err := config.GenerateExampleConfig(dir); err != nil {
			if errors.Is(err, config.ErrInvalidConfig) {
				return newExitError(ExitDirectoryExists, err)
			}
			return newExitError(ExitFilesystem, err)
		}
		fmt.Printf("wrote atra.ini and crawl.yaml to %s\n", dir)
		os.Exit(int(ExitSuccess))
		return nil
	},
	// A Run makes the root command runnable, so PersistentPreRunE (and
	// with it --generate-example-config) also fires when no subcommand
	// is given.
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command, returning the process exit code the
// caller's main should pass to os.Exit.
func Execute() ExitCode {
	if err := rootCmd.Execute(); err != nil {
		if ec, ok := asExitError(err); ok {
			return ec
		}
		return ExitUnknown
	}
	return ExitSuccess
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory holding atra.ini and crawl.yaml")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "crawl state directory (defaults to atra.ini's paths.root)")
	rootCmd.PersistentFlags().BoolVar(&generateExampleConfig, "generate-example-config", false, "write example atra.ini and crawl.yaml to --config-dir and exit")

	rootCmd.AddCommand(singleCmd)
	rootCmd.AddCommand(multiCmd)
}

// exitError pairs a Go error with the ExitCode it should map to, so
// cobra's own error propagation path (Execute returning a non-nil
// error) doesn't lose the spec's exit-code taxonomy.
type exitError struct {
	code ExitCode
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newExitError(code ExitCode, err error) error {
	return &exitError{code: code, err: err}
}

func asExitError(err error) (ExitCode, bool) {
	var ee *exitError
	if eerr, ok := err.(*exitError); ok {
		ee = eerr
		return ee.code, true
	}
	return ExitUnknown, false
}
