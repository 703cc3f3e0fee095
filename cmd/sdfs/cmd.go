package main

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rstms/sdfs"
	"github.com/rstms/sdfs/card"
	"github.com/rstms/sdfs/fat"
	"github.com/rstms/sdfs/format"
	"github.com/rstms/sdfs/image"
)

var settings = viper.New()

// flag name to settings key
var boundFlags = map[string]string{
	"image":       "image",
	"store":       "store",
	"cs-pin":      "cs_pin",
	"spi-speed":   "spi_speed",
	"auto-format": "auto_format",
	"part":        "part",
	"sdio":        "sdio",
}

func newCmd() *cobra.Command {
	var (
		cfgFile         string
		flagVerbose     int
		flagVerboseName = "verbose"
	)
	cmd := &cobra.Command{
		Use:               "sdfs",
		Short:             "inspect and edit SD card images",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(flagVerbose, cmd.Flag(flagVerboseName).Changed); err != nil {
				return err
			}
			return readConfig(cfgFile, cmd.Flags())
		},
	}

	cmd.AddCommand(mkimageCmd())
	cmd.AddCommand(formatCmd())
	cmd.AddCommand(eraseCmd())
	cmd.AddCommand(importCmd())
	cmd.AddCommand(lsCmd())
	cmd.AddCommand(catCmd())
	cmd.AddCommand(putCmd())
	cmd.AddCommand(mkdirCmd())
	cmd.AddCommand(rmdirCmd())
	cmd.AddCommand(rmCmd())
	cmd.AddCommand(mvCmd())
	cmd.AddCommand(infoCmd())

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Configuration file, overrides the SDFS_* environment")
	flags.String("image", "sdcard.img", "Card image file")
	flags.String("store", "", "Directory holding the volume contents (default <image>.d)")
	flags.Uint8("cs-pin", sdfs.DefaultCSPin, "SPI chip select pin")
	flags.Uint32("spi-speed", sdfs.SPIFullSpeed, "Maximum SPI clock in Hz")
	flags.Bool("sdio", false, "Select the card over SDIO instead of SPI")
	flags.Bool("auto-format", false, "Format the card when it does not mount")
	flags.Uint8("part", 0, "Partition to mount")
	flags.IntVarP(&flagVerbose, flagVerboseName, "v", 1, "Verbosity of logging: 0 = quiet, 1 = info, 2 = debug, 3 = trace")

	return cmd
}

// readConfig layers flags over SDFS_* environment variables over the
// optional config file.
func readConfig(cfgFile string, flags *pflag.FlagSet) error {
	settings.SetEnvPrefix("SDFS")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	for name, key := range boundFlags {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := settings.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "binding flag %s", name)
		}
	}
	if cfgFile == "" {
		return nil
	}
	settings.SetConfigFile(cfgFile)
	if err := settings.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading config %s", cfgFile)
	}
	log.Debugf("config: %s", settings.ConfigFileUsed())
	return nil
}

func imagePath() string {
	return settings.GetString("image")
}

func storePath() string {
	if store := settings.GetString("store"); store != "" {
		return store
	}
	return imagePath() + ".d"
}

func mountConfig() sdfs.Config {
	cfg := sdfs.DefaultConfig()
	if settings.GetBool("sdio") {
		cfg.SPI = nil
		cfg.SDIO = &sdfs.SDIOConfig{}
	} else {
		cfg.SPI.CSPin = uint8(settings.GetUint("cs_pin"))
		cfg.SPI.MaxSpeed = settings.GetUint32("spi_speed")
	}
	cfg.AutoFormat = settings.GetBool("auto_format")
	cfg.Part = uint8(settings.GetUint("part"))
	return cfg
}

func newFS() *sdfs.FS {
	host := afero.NewOsFs()
	logger := log.StandardLogger()
	factory := &card.Factory{Fs: host, Path: imagePath(), Log: logger}
	formatter := format.New(factory)
	formatter.Log = logger
	return sdfs.New(factory, &fat.Mounter{Fs: host, Root: storePath()}, formatter, sdfs.WithLogger(logger))
}

// mount runs fn on the mounted card image.
func mount(fn func(fs *sdfs.FS) error) error {
	fs := newFS()
	if err := fs.Begin(mountConfig()); err != nil {
		return errors.Wrapf(err, "mounting %s", imagePath())
	}
	defer fs.End()
	return fn(fs)
}

func imageOptions() *image.Options {
	return &image.Options{Root: storePath(), Log: log.StandardLogger()}
}
