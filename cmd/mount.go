package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbmetz/go-bde/internal/blockdev"
	"github.com/jbmetz/go-bde/pkg/bde"
)

const mountChunkSize = 1 << 20 // 1 MiB read chunks

var mountFlags credentialFlags
var mountOut string

var mountCmd = &cobra.Command{
	Use:   "mount <device>",
	Short: "Unlock a volume and write its decrypted bytes to a file or stdout",
	Long: `mount unlocks device with the supplied credential and streams the
entire decrypted plaintext volume to --out (or stdout if unset).

No FUSE integration is provided: this is a plain byte-for-byte dump of
the unlocked address space, not a mounted filesystem.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := blockdev.Open(args[0])
		if err != nil {
			return err
		}
		defer dev.Close()

		h, err := bde.Open(dev, bde.WithLogger(logger()))
		if err != nil {
			return err
		}
		defer h.Close()

		if err := mountFlags.apply(h); err != nil {
			return err
		}
		if err := h.Unlock(); err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if mountOut != "" {
			f, err := os.Create(mountOut)
			if err != nil {
				return fmt.Errorf("creating --out: %w", err)
			}
			defer f.Close()
			out = f
		}

		size := h.LockedInfo().VolumeSize
		for offset := uint64(0); offset < size; offset += mountChunkSize {
			n := mountChunkSize
			if remaining := size - offset; remaining < uint64(n) {
				n = int(remaining)
			}
			chunk, err := h.Read(offset, n)
			if err != nil {
				return err
			}
			if _, err := out.Write(chunk); err != nil {
				return fmt.Errorf("writing decrypted bytes: %w", err)
			}
		}
		return nil
	},
}

func init() {
	mountFlags.register(mountCmd)
	mountCmd.Flags().StringVar(&mountOut, "out", "", "output file (defaults to stdout)")
	rootCmd.AddCommand(mountCmd)
}
