package sdfs

import "fmt"

type FATType uint8

const (
	FATUnknown FATType = 0
	FAT12      FATType = 12
	FAT16      FATType = 16
	FAT32      FATType = 32
	ExFAT      FATType = 64
)

func (t FATType) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	case ExFAT:
		return "exFAT"
	}
	return fmt.Sprintf("FATType(%d)", uint8(t))
}

// A Volume is a mounted FAT or exFAT filesystem.
type Volume interface {
	Exists(path string) bool
	Open(path string, flags OFlag) (Entry, error)
	// OpenIndex opens the child at a positional index of an open directory.
	OpenIndex(dir Entry, index int, flags OFlag) (Entry, error)
	// Mkdir creates a directory, and its missing parents when parents is set.
	Mkdir(path string, parents bool) error
	Rmdir(path string) error
	Rename(from, to string) error
	Remove(path string) error

	SectorsPerCluster() uint32
	ClusterCount() uint32
	FreeClusterCount() (uint32, error)
	FATType() FATType
	Card() Card
}

// Attributer is an optional interface for volumes that can edit entry
// attributes.
type Attributer interface {
	SetAttr(path string, attr DirectoryAttr, state bool) error
}

// A Mounter mounts the volume found on a card.
type Mounter interface {
	Mount(card Card, part uint8, clock Clock) (Volume, error)
}
