// Package cmd implements the thin cobra CLI surface over pkg/bde
// (spec §1/§6: the CLI tools themselves are out of scope beyond an
// interface -- this is that interface, not a FUSE mount or a
// full-featured forensics tool).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "bde",
	Short: "Read-only BitLocker (FVE) volume unlocker",
	Long: `bde opens a raw BitLocker-encrypted volume image or block device,
unlocks it with a password, recovery password, or external key, and
exposes the decrypted plaintext volume.

Commands:
  info    Print locked volume metadata without unlocking
  mount   Unlock a volume and write its decrypted bytes to a file or stdout`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all but error output")
}
