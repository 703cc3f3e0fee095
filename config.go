package sdfs

import "github.com/pkg/errors"

const (
	// SPIFullSpeed is the default maximum SPI clock in Hz.
	SPIFullSpeed uint32 = 50000000
	// DefaultCSPin is the default chip-select pin.
	DefaultCSPin uint8 = 10
)

// SPIConfig selects a card on a shared or dedicated SPI bus.
type SPIConfig struct {
	CSPin    uint8
	MaxSpeed uint32
	Shared   bool
}

// SDIOConfig selects a card on a dedicated SDIO controller.
type SDIOConfig struct {
	Options uint8
}

// Config is the mount configuration. Exactly one of SDIO or SPI must be set.
type Config struct {
	SDIO       *SDIOConfig
	SPI        *SPIConfig
	AutoFormat bool
	Part       uint8
	// Clock stamps created and synced entries; SystemClock when nil.
	Clock Clock
}

func DefaultConfig() Config {
	return Config{
		SPI: &SPIConfig{
			CSPin:    DefaultCSPin,
			MaxSpeed: SPIFullSpeed,
			Shared:   true,
		},
	}
}

func (c Config) Validate() error {
	switch {
	case c.SDIO == nil && c.SPI == nil:
		return errors.Wrap(ErrConfig, "no card transport")
	case c.SDIO != nil && c.SPI != nil:
		return errors.Wrap(ErrConfig, "both SDIO and SPI transports set")
	}
	return nil
}

func (c Config) clock() Clock {
	if c.Clock == nil {
		return SystemClock{}
	}
	return c.Clock
}
