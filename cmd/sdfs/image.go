package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rstms/sdfs/card"
	"github.com/rstms/sdfs/format"
	"github.com/rstms/sdfs/image"
)

func mkimageCmd() *cobra.Command {
	var (
		sizeMB int64
		label  string
		oem    string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "mkimage",
		Short: "create a formatted card image",
		Long:  `Create a card image file of the given size and lay out a FAT volume on it.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := imagePath()
			if image.IsFile(filename) {
				if !force {
					return fmt.Errorf("%s exists, use --force to overwrite", filename)
				}
				if err := os.RemoveAll(storePath()); err != nil {
					return errors.Wrapf(err, "removing store %s", storePath())
				}
			}
			img, err := image.CreateImage(filename, label, oem, sizeMB*image.MB, imageOptions())
			if err != nil {
				return err
			}
			defer img.Close()
			log.Infof("%s: %d MB %s volume %s", filename, sizeMB, img.FS().FATType(), label)
			return nil
		},
	}
	cmd.Flags().Int64Var(&sizeMB, "size", 32, "Image size in MB")
	cmd.Flags().StringVar(&label, "label", "NO NAME", "Volume label")
	cmd.Flags().StringVar(&oem, "oem", "sdfs", "OEM name written to the boot sector")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing image")
	return cmd
}

func newFormatter() *format.Formatter {
	factory := &card.Factory{Fs: afero.NewOsFs(), Path: imagePath(), Log: log.StandardLogger()}
	formatter := format.New(factory)
	formatter.Log = log.StandardLogger()
	return formatter
}

func formatCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "format",
		Short: "lay out a fresh volume on the card",
		Long:  `Format the card with FAT16 or FAT32, or exFAT when it holds more than 32 GB.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mountConfig()
			formatter := newFormatter()
			formatter.FAT = &format.FAT{Label: label}
			err := formatter.Format(cfg.SDIO, cfg.SPI)
			log.Debugf("format: state %s", formatter.State())
			if err != nil {
				return err
			}
			log.Infof("formatted %s: %d MB", imagePath(), formatter.CapacityMB())
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "NO NAME", "Volume label")
	return cmd
}

func eraseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "erase every sector of the card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mountConfig()
			formatter := newFormatter()
			err := formatter.Erase(cfg.SDIO, cfg.SPI)
			log.Debugf("erase: state %s", formatter.State())
			if err != nil {
				return err
			}
			log.Infof("erased %s: %d sectors", imagePath(), formatter.SectorCount())
			return nil
		},
	}
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import DIR",
		Short: "copy a host directory tree into the volume root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.OpenImage(imagePath(), imageOptions())
			if err != nil {
				return err
			}
			defer img.Close()
			if err := img.Import(args[0]); err != nil {
				return errors.Wrapf(err, "importing %s", args[0])
			}
			log.Infof("imported %s", args[0])
			return nil
		},
	}
	return cmd
}
