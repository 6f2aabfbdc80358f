package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nextlevelbuilder/aish/internal/agent"
	"github.com/nextlevelbuilder/aish/internal/config"
	"github.com/nextlevelbuilder/aish/internal/leakscan"
)

func reviewCmd() *cobra.Command {
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Run the leakscan reviewer over pending message parts",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			dirs, err := config.ResolveDirs()
			if err != nil {
				return err
			}
			sess, err := resolveSession(true)
			if err != nil {
				return err
			}

			interrupt := &agent.InterruptFlag{}
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			defer signal.Stop(sigCh)
			go func() {
				for range sigCh {
					interrupt.Set()
				}
			}()

			interactive := !nonInteractive && term.IsTerminal(int(os.Stdin.Fd()))
			reviewer := leakscan.NewReviewer("leakscan", dirs.LeakscanRulesPath(), !interactive, interrupt)
			return reviewer.Prepare(sess)
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt: deny sensitive hits")
	return cmd
}
