// Package format lays out and erases SD cards.
package format

import (
	"io"
	"runtime"

	log "github.com/sirupsen/logrus"

	"github.com/rstms/sdfs"
)

const (
	// ExFATThreshold is the largest sector count formatted as FAT; larger
	// cards get exFAT.
	ExFATThreshold = 67108864
	// EraseChunk is the number of sectors erased per card command.
	EraseChunk = 262144
	// YieldEvery is the number of erase chunks between yields.
	YieldEvery = 64

	sectorsPerMB = 1048576 / sdfs.SectorSize
)

type State int

const (
	Idle State = iota
	CardAcquired
	CapacityKnown
	Formatted
	Erased
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CardAcquired:
		return "card acquired"
	case CapacityKnown:
		return "capacity known"
	case Formatted:
		return "formatted"
	case Erased:
		return "erased"
	}
	return "unknown"
}

// A Layout writes a fresh filesystem onto a card using scratch, a one
// sector buffer, for every sector it writes.
type Layout interface {
	Format(card sdfs.Card, scratch []byte) error
}

// Formatter formats and erases the card selected by a bus descriptor. Each
// run acquires its own card from Factory, and closes it afterwards when the
// card is an io.Closer.
type Formatter struct {
	Factory sdfs.CardFactory
	FAT     Layout
	ExFAT   Layout
	// Yield is called with the running chunk count every YieldEvery erase
	// chunks; runtime.Gosched when nil.
	Yield func(chunks int)
	Log   log.FieldLogger

	state      State
	sectors    uint32
	capacityMB uint32
}

var _ sdfs.CardFormatter = (*Formatter)(nil)

func New(factory sdfs.CardFactory) *Formatter {
	return &Formatter{Factory: factory}
}

// State reports the last stage reached by the most recent Format or Erase.
// It stays there after the run ends, successful or not, and the next run
// starts again from Idle.
func (f *Formatter) State() State {
	return f.state
}

// CapacityMB returns the capacity measured by the last run, rounded down.
func (f *Formatter) CapacityMB() uint32 {
	return f.capacityMB
}

func (f *Formatter) SectorCount() uint32 {
	return f.sectors
}

func (f *Formatter) logger() log.FieldLogger {
	if f.Log == nil {
		return log.StandardLogger()
	}
	return f.Log
}

func (f *Formatter) yield(chunks int) {
	if f.Yield == nil {
		runtime.Gosched()
		return
	}
	f.Yield(chunks)
}

func (f *Formatter) acquire(sdio *sdfs.SDIOConfig, spi *sdfs.SPIConfig) (sdfs.Card, error) {
	f.state = Idle
	f.sectors = 0
	f.capacityMB = 0
	if f.Factory == nil {
		return nil, Fatalf("no card factory")
	}
	var card sdfs.Card
	var err error
	switch {
	case sdio != nil && spi != nil:
		return nil, Fatalf("both SDIO and SPI configurations given")
	case sdio != nil:
		card, err = f.Factory.NewSDIOCard(sdio)
	case spi != nil:
		card, err = f.Factory.NewSPICard(spi)
	default:
		return nil, Fatalf("no card configuration given")
	}
	if err != nil {
		return nil, Fatal(err)
	}
	if card == nil {
		return nil, Fatalf("no card")
	}
	f.state = CardAcquired
	if code := card.ErrorCode(); code != 0 {
		release(card)
		return nil, Fatalf("card error code 0x%02x", code)
	}
	f.sectors = card.SectorCount()
	if f.sectors == 0 {
		release(card)
		return nil, Fatalf("card reports zero sectors")
	}
	f.capacityMB = f.sectors / sectorsPerMB
	f.state = CapacityKnown
	return card, nil
}

func release(card sdfs.Card) {
	if c, ok := card.(io.Closer); ok {
		c.Close()
	}
}

// Format writes an exFAT layout on cards above ExFATThreshold sectors and a
// FAT layout otherwise.
func (f *Formatter) Format(sdio *sdfs.SDIOConfig, spi *sdfs.SPIConfig) error {
	card, err := f.acquire(sdio, spi)
	if err != nil {
		return Fatal(err)
	}
	defer release(card)

	layout, kind := f.FAT, "FAT"
	if layout == nil {
		layout = &FAT{}
	}
	if f.sectors > ExFATThreshold {
		layout, kind = f.ExFAT, "exFAT"
		if layout == nil {
			layout = &ExFAT{}
		}
	}
	f.logger().Infof("format: %d sectors (%d MB), writing %s layout", f.sectors, f.capacityMB, kind)

	scratch := make([]byte, sdfs.SectorSize)
	if err := layout.Format(card, scratch); err != nil {
		return Fatal(err)
	}
	f.state = Formatted
	return nil
}

// Erase erases the whole card in EraseChunk sector ranges and verifies the
// card still reads sector zero.
func (f *Formatter) Erase(sdio *sdfs.SDIOConfig, spi *sdfs.SPIConfig) error {
	card, err := f.acquire(sdio, spi)
	if err != nil {
		return Fatal(err)
	}
	defer release(card)

	f.logger().Infof("erase: %d sectors", f.sectors)
	chunks := 0
	for first := uint64(0); first < uint64(f.sectors); first += EraseChunk {
		last := first + EraseChunk - 1
		if last >= uint64(f.sectors) {
			last = uint64(f.sectors) - 1
		}
		if err := card.Erase(uint32(first), uint32(last)); err != nil {
			return Fatalf("erasing sectors %d-%d: %v", first, last, err)
		}
		chunks++
		if chunks%YieldEvery == 0 {
			f.logger().Debugf("erase: %d chunks", chunks)
			f.yield(chunks)
		}
	}

	scratch := make([]byte, sdfs.SectorSize)
	if err := card.ReadSector(0, scratch); err != nil {
		return Fatalf("verify read after erase: %v", err)
	}
	f.state = Erased
	return nil
}
