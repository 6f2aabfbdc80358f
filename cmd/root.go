// Package cmd wires the aish CLI: the PTY supervisor as the root command and
// the agent, reviewer, and session maintenance as subcommands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aish/internal/config"
	"github.com/nextlevelbuilder/aish/internal/errs"
	"github.com/nextlevelbuilder/aish/internal/session"
	"github.com/nextlevelbuilder/aish/internal/supervisor"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/aish/cmd.Version=v1.0.0"
var Version = "dev"

var (
	sessionFlag      string
	verbose          bool
	promptMarkerFlag string
)

var rootCmd = &cobra.Command{
	Use:   "aish",
	Short: "aish — PTY shell supervisor with an LLM sidekick",
	Long: "aish wraps your interactive shell in a captured PTY and shares a session\n" +
		"directory with the `ai` subcommand, which consults an LLM, runs tools, and\n" +
		"can queue commands into your live prompt.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervisor()
	},
}

func init() {
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errs.Wrap(errs.KindInvalidArgument, "invalid flags", err)
	})
	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "session directory (default: $AISH_SESSION)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&promptMarkerFlag, "prompt-marker", "", "prompt-ready marker emitted by the shell prompt")

	rootCmd.AddCommand(aiCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(muteCmd())
	rootCmd.AddCommand(unmuteCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aish %s\n", Version)
		},
	}
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// resolveSession opens the session from -s or $AISH_SESSION. required
// controls whether absence is a usage error or a nil session.
func resolveSession(required bool) (*session.Dir, error) {
	path := sessionFlag
	if path == "" {
		path = os.Getenv("AISH_SESSION")
	}
	if path == "" {
		if required {
			return nil, errs.New(errs.KindInvalidArgument, "session directory not specified (use -s or AISH_SESSION)")
		}
		return nil, nil
	}
	return session.Open(path)
}

func runSupervisor() error {
	setupLogging()
	dirs, err := config.ResolveDirs()
	if err != nil {
		return err
	}
	sess, err := resolveSession(true)
	if err != nil {
		return err
	}
	home, err := session.OpenHome(dirs.Home)
	if err != nil {
		return err
	}

	sup := supervisor.New(supervisor.Config{
		Session:      sess,
		Home:         home,
		PromptMarker: config.PromptMarker(promptMarkerFlag, dirs),
	})
	code, err := sup.Run(context.Background())
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// Execute runs the CLI and maps errors to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errs.IsUsage(err) {
			fmt.Fprintf(os.Stderr, "aish: %v\n", err)
			fmt.Fprintln(os.Stderr, "hint: run 'aish --help' for usage")
		} else {
			fmt.Fprintf(os.Stderr, "aish: %s: %v\n", errs.KindOf(err), err)
		}
		os.Exit(errs.ExitCode(err))
	}
}
