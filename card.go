package sdfs

const SectorSize = 512

// Card is the block storage capability of an SD card.
type Card interface {
	SectorCount() uint32
	// ErrorCode returns the last card-level error, zero when healthy.
	ErrorCode() uint8
	ReadSector(sector uint32, dst []byte) error
	WriteSector(sector uint32, src []byte) error
	// Erase erases the inclusive sector range [first, last].
	Erase(first, last uint32) error
}

// CardFactory acquires a card over one of the two transports.
type CardFactory interface {
	NewSDIOCard(cfg *SDIOConfig) (Card, error)
	NewSPICard(cfg *SPIConfig) (Card, error)
}

// CardFormatter lays out or erases a card. Both operations acquire their own
// card and must only run while no volume is mounted on it.
type CardFormatter interface {
	Format(sdio *SDIOConfig, spi *SPIConfig) error
	Erase(sdio *SDIOConfig, spi *SPIConfig) error
}
