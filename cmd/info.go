package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbmetz/go-bde/internal/blockdev"
	"github.com/jbmetz/go-bde/pkg/bde"
	"github.com/jbmetz/go-bde/pkg/logging"
)

var infoCmd = &cobra.Command{
	Use:   "info <device>",
	Short: "Print locked volume metadata without unlocking",
	Args:  cobra.ExactArgs(1),
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

		info := h.LockedInfo()
		fmt.Printf("Identifier:        %s\n", info.Identifier)
		fmt.Printf("Metadata version:  %d\n", info.Version)
		fmt.Printf("Encryption method: 0x%04x\n", uint32(info.EncryptionMethod))
		fmt.Printf("Created:           %s\n", info.CreationTime)
		fmt.Printf("Volume size:       %d bytes\n", info.VolumeSize)
		if info.Description != "" {
			fmt.Printf("Description:       %s\n", info.Description)
		}
		return nil
	},
}

func logger() *logging.Logger {
	if quiet {
		return logging.Discard()
	}
	level := 0
	if verbose {
		level = 2
	}
	return logging.NewSimpleLogger(nil, level)
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
