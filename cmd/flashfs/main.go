// Command flashfs inspects and edits the file directory on a serial NOR
// flash chip, reached through Linux spidev, a serprog programmer or a
// simulated chip backed by an image file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	config   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "flashfs",
		Short:         "Manage files on a serial NOR flash chip",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.config, "config", "c", os.Getenv("FLASHFS_CONFIG"), "YAML config file (default: simulated chip)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level: debug|info|warn|error")

	root.AddCommand(
		newInfoCmd(&flags),
		newLsCmd(&flags),
		newCatCmd(&flags),
		newPutCmd(&flags),
		newCreateCmd(&flags),
		newRmCmd(&flags),
		newEraseCmd(&flags),
		newEraseAllCmd(&flags),
		newDumpCmd(&flags),
		newSleepCmd(&flags),
		newWakeCmd(&flags),
	)

	return root
}
