// README: arrivo-sim: offline tools to check distances and replay recorded routes through an alarm.
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"arrivo/internal/logging"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "arrivo-sim",
		Short:         "Simulate location alarms without a device",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts := logging.Options{Level: "warn", Output: cmd.ErrOrStderr()}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				opts.Level = "debug"
			}
			logging.Setup(opts)
		},
	}
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newDistanceCommand(), newReplayCommand())
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
