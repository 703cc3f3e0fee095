package sdfs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFlags(t *testing.T) {
	for _, c := range []struct {
		open   OpenMode
		access AccessMode
		want   OFlag
	}{
		{OMDefault, AMRead, ORead},
		{OMDefault, AMWrite, OWrite},
		{OMDefault, AMRW, ORdwr},
		{OMCreate, AMWrite, OCreat | OWrite},
		{OMAppend, AMWrite, OAtEnd | OWrite},
		{OMTruncate, AMRW, OTrunc | ORdwr},
		{OMCreate | OMAppend | OMTruncate, AMRW, OCreat | OAtEnd | OTrunc | ORdwr},
		{OMDefault, 0, 0},
	} {
		require.Equal(t, c.want, Flags(c.open, c.access))
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Nil(t, cfg.Validate())
	require.Equal(t, DefaultCSPin, cfg.SPI.CSPin)
	require.Equal(t, SPIFullSpeed, cfg.SPI.MaxSpeed)
	require.True(t, cfg.SPI.Shared)
	require.False(t, cfg.AutoFormat)
	require.Equal(t, SystemClock{}, cfg.clock())

	cfg.SDIO = &SDIOConfig{}
	require.True(t, errors.Is(cfg.Validate(), ErrConfig))
	require.True(t, errors.Is(Config{}.Validate(), ErrConfig))
	require.Nil(t, Config{SDIO: &SDIOConfig{}}.Validate())
}

func TestFATTypeString(t *testing.T) {
	require.Equal(t, "FAT16", FAT16.String())
	require.Equal(t, "exFAT", ExFAT.String())
	require.Equal(t, "FATType(0)", FATUnknown.String())
}
