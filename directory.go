package sdfs

import "io"

type DirectoryAttr uint8

const (
	AttrReadOnly  DirectoryAttr = 0x01
	AttrHidden    DirectoryAttr = 0x02
	AttrSystem    DirectoryAttr = 0x04
	AttrVolumeId  DirectoryAttr = 0x08
	AttrDirectory DirectoryAttr = 0x10
	AttrArchive   DirectoryAttr = 0x20
	AttrLongName                = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeId
)

// DirStamps holds the packed FAT date/time fields of a directory entry.
type DirStamps struct {
	CreateDate uint16
	CreateTime uint16
	ModifyDate uint16
	ModifyTime uint16
}

// Entry is a live native reference to one opened file or directory on a
// Volume.
type Entry interface {
	io.ReadWriteSeeker

	Position() int64
	Size() int64
	Truncate(size int64) error

	// Flush writes back buffered data.
	Flush() error
	// Sync flushes and updates the directory entry metadata.
	Sync() error
	Close() error

	IsFile() bool
	IsDir() bool
	IsHidden() bool
	// IsLFN reports whether the entry carries a long name.
	IsLFN() bool

	// Name returns the long name if present, otherwise the short name.
	Name() string
	// ShortName returns the 8.3 name.
	ShortName() string

	// DirIndex returns the slot of the entry within its parent directory,
	// or a negative value when the entry has none.
	DirIndex() int
	DirEntry() (DirStamps, error)

	// OpenNext opens the next child of a directory entry. It returns io.EOF
	// when the directory is exhausted.
	OpenNext(flags OFlag) (Entry, error)
	// Rewind resets the directory stream to its first child.
	Rewind() error
}
