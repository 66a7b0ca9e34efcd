package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/hotswap/internal/config"
	"github.com/Iron-Ham/hotswap/internal/watcher"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint [dir]",
	Short: "Print the change fingerprint of a directory tree",
	Long: `Print the fingerprint the change detector computes for a tree, using the
configured size threshold and ignore patterns. Useful to check that an
edit is picked up, or that a generated file is ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dir := cfg.Watch.Root
	if len(args) == 1 {
		dir = args[0]
	}

	fp, err := watcher.Fingerprint(afero.NewOsFs(), dir, watcher.Options{
		SizeThreshold: cfg.Watch.SizeThresholdBytes,
		Ignore:        cfg.Watch.Ignore,
		Workers:       cfg.Watch.HashWorkers,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), fp)
	return nil
}
