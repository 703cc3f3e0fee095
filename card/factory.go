package card

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/rstms/sdfs"
)

// Factory hands out cards backed by one image file. The bus descriptors are
// accepted for either transport and only logged.
type Factory struct {
	Fs   afero.Fs
	Path string
	Log  log.FieldLogger
}

var _ sdfs.CardFactory = (*Factory)(nil)

func (f *Factory) logger() log.FieldLogger {
	if f.Log == nil {
		return log.StandardLogger()
	}
	return f.Log
}

func (f *Factory) NewSDIOCard(cfg *sdfs.SDIOConfig) (sdfs.Card, error) {
	if cfg == nil {
		return nil, Fatalf("missing SDIO configuration")
	}
	f.logger().WithFields(log.Fields{
		"image":   f.Path,
		"options": cfg.Options,
	}).Debug("card: SDIO")
	return f.open()
}

func (f *Factory) NewSPICard(cfg *sdfs.SPIConfig) (sdfs.Card, error) {
	if cfg == nil {
		return nil, Fatalf("missing SPI configuration")
	}
	f.logger().WithFields(log.Fields{
		"image":  f.Path,
		"cs":     cfg.CSPin,
		"speed":  cfg.MaxSpeed,
		"shared": cfg.Shared,
	}).Debug("card: SPI")
	return f.open()
}

func (f *Factory) open() (sdfs.Card, error) {
	image, err := OpenImage(f.Fs, f.Path)
	if err != nil {
		return nil, Fatal(err)
	}
	return image, nil
}
