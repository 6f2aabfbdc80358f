package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aish/internal/session"
)

func muteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mute",
		Short: "Stop recording terminal output to console.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			sess, err := resolveSession(true)
			if err != nil {
				return err
			}
			// No live supervisor means nothing is being recorded.
			if _, err := os.Stat(sess.Join(session.PIDFile)); err != nil {
				return nil
			}
			return os.WriteFile(sess.Join(session.MuteFlagFile), []byte("muted"), 0o644)
		},
	}
}

func unmuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmute",
		Short: "Resume recording terminal output to console.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			sess, err := resolveSession(true)
			if err != nil {
				return err
			}
			err = os.Remove(sess.Join(session.MuteFlagFile))
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		},
	}
}
