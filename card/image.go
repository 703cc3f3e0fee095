// Package card provides SD card block storage backed by sector image files.
package card

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/rstms/sdfs"
)

// Card error codes reported by ErrorCode.
const (
	ErrorNone  uint8 = 0x00
	ErrorRange uint8 = 0x11
	ErrorRead  uint8 = 0x12
	ErrorWrite uint8 = 0x13
	ErrorErase uint8 = 0x14
)

// eraseChunk is the number of sectors zeroed per write during Erase.
const eraseChunk = 128

// Image is a card whose sectors live in a file of an afero filesystem.
type Image struct {
	Filename string

	file      afero.File
	sectors   uint32
	errorCode uint8
}

var _ sdfs.Card = (*Image)(nil)

// Create makes a zero filled image of sectors sectors.
func Create(fs afero.Fs, filename string, sectors uint32) (*Image, error) {
	if sectors == 0 {
		return nil, Fatalf("image size must be nonzero")
	}
	file, err := fs.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return nil, Fatal(err)
	}
	if err := file.Truncate(int64(sectors) * sdfs.SectorSize); err != nil {
		file.Close()
		return nil, Fatal(err)
	}
	log.Debugf("card: created %s with %d sectors", filename, sectors)
	return &Image{Filename: filename, file: file, sectors: sectors}, nil
}

// OpenImage opens an existing image. Trailing bytes short of a full sector
// are ignored.
func OpenImage(fs afero.Fs, filename string) (*Image, error) {
	file, err := fs.OpenFile(filename, os.O_RDWR, 0600)
	if err != nil {
		return nil, Fatal(err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, Fatal(err)
	}
	sectors := info.Size() / sdfs.SectorSize
	if sectors == 0 || sectors > int64(^uint32(0)) {
		file.Close()
		return nil, Fatalf("unusable image size: %d bytes", info.Size())
	}
	return &Image{Filename: filename, file: file, sectors: uint32(sectors)}, nil
}

func (i *Image) Close() error {
	if i.file == nil {
		return nil
	}
	err := i.file.Close()
	i.file = nil
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) SectorCount() uint32 {
	return i.sectors
}

func (i *Image) ErrorCode() uint8 {
	return i.errorCode
}

func (i *Image) fail(code uint8, err error) error {
	i.errorCode = code
	return Fatal(err)
}

func (i *Image) check(sector uint32, buf []byte) error {
	if i.file == nil {
		return i.fail(ErrorRange, os.ErrClosed)
	}
	if sector >= i.sectors {
		return i.fail(ErrorRange, Fatalf("sector %d beyond end of card (%d sectors)", sector, i.sectors))
	}
	if len(buf) < sdfs.SectorSize {
		return i.fail(ErrorRange, Fatalf("sector buffer too small: %d", len(buf)))
	}
	return nil
}

func (i *Image) ReadSector(sector uint32, dst []byte) error {
	if err := i.check(sector, dst); err != nil {
		return err
	}
	if _, err := i.file.ReadAt(dst[:sdfs.SectorSize], int64(sector)*sdfs.SectorSize); err != nil {
		return i.fail(ErrorRead, err)
	}
	return nil
}

func (i *Image) WriteSector(sector uint32, src []byte) error {
	if err := i.check(sector, src); err != nil {
		return err
	}
	if _, err := i.file.WriteAt(src[:sdfs.SectorSize], int64(sector)*sdfs.SectorSize); err != nil {
		return i.fail(ErrorWrite, err)
	}
	return nil
}

// Erase zeroes the inclusive sector range [first, last].
func (i *Image) Erase(first, last uint32) error {
	if first > last {
		return i.fail(ErrorRange, Fatalf("invalid erase range %d-%d", first, last))
	}
	if err := i.check(last, make([]byte, sdfs.SectorSize)); err != nil {
		return err
	}
	zero := make([]byte, eraseChunk*sdfs.SectorSize)
	for sector := uint64(first); sector <= uint64(last); sector += eraseChunk {
		n := uint64(last) - sector + 1
		if n > eraseChunk {
			n = eraseChunk
		}
		if _, err := i.file.WriteAt(zero[:n*sdfs.SectorSize], int64(sector)*sdfs.SectorSize); err != nil {
			return i.fail(ErrorErase, err)
		}
	}
	return nil
}
