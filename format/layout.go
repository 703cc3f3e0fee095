package format

import (
	"github.com/google/uuid"

	"github.com/rstms/sdfs"
	"github.com/rstms/sdfs/fat"
)

const (
	fat16MaxSectors  = 0x400000
	fat16MaxClusters = 65524
	exFATMinSectors  = 0x100000
	exFATBootRegion  = 12
	defaultOEMName   = "SDFS"
)

// FAT writes a FAT16 layout on cards below 2 GB and FAT32 above.
type FAT struct {
	Label   string
	OEMName string
	// Serial is the volume serial number; random when zero.
	Serial uint32
}

var _ Layout = (*FAT)(nil)

// ExFAT writes an exFAT boot region and allocation table.
type ExFAT struct {
	// Serial is the volume serial number; random when zero.
	Serial uint32
}

var _ Layout = (*ExFAT)(nil)

func serial(s uint32) uint32 {
	if s != 0 {
		return s
	}
	return uuid.New().ID()
}

// clusterSectors returns the sectors per cluster for a card capacity.
func clusterSectors(capacityMB uint32) uint32 {
	switch {
	case capacityMB <= 16:
		return 2
	case capacityMB <= 32:
		return 4
	case capacityMB <= 64:
		return 8
	case capacityMB <= 128:
		return 16
	case capacityMB <= 1024:
		return 32
	case capacityMB <= 32768:
		return 64
	}
	return 128
}

// geometry sizes the allocation table and counts the data clusters.
func geometry(bs *fat.BootSector, entryBytes uint64) {
	rootDirSectors := uint64(bs.RootEntryCount) * 32 / sdfs.SectorSize
	fatSize := uint64(1)
	var clusters uint64
	for {
		overhead := uint64(bs.ReservedSectors) + uint64(bs.NumFATs)*fatSize + rootDirSectors
		clusters = 0
		if bs.TotalSectors > overhead {
			clusters = (bs.TotalSectors - overhead) / uint64(bs.SectorsPerCluster)
		}
		need := ((clusters+2)*entryBytes + sdfs.SectorSize - 1) / sdfs.SectorSize
		if need <= fatSize {
			break
		}
		fatSize = need
	}
	bs.FATSize = uint32(fatSize)
	bs.ClusterCount = uint32(clusters)
}

func zeroSectors(card sdfs.Card, scratch []byte, first, count uint32) error {
	clear(scratch)
	for s := first; s < first+count; s++ {
		if err := card.WriteSector(s, scratch); err != nil {
			return Fatal(err)
		}
	}
	return nil
}

func (l *FAT) Format(card sdfs.Card, scratch []byte) error {
	sectors := card.SectorCount()
	capacityMB := uint32((uint64(sectors) + sectorsPerMB - 1) / sectorsPerMB)
	if capacityMB <= 6 {
		return Fatalf("card is too small: %d MB", capacityMB)
	}
	oem := l.OEMName
	if oem == "" {
		oem = defaultOEMName
	}
	label := l.Label
	if label == "" {
		label = "NO NAME"
	}

	bs := &fat.BootSector{
		OEMName:           oem,
		BytesPerSector:    sdfs.SectorSize,
		SectorsPerCluster: clusterSectors(capacityMB),
		NumFATs:           2,
		TotalSectors:      uint64(sectors),
		VolumeID:          serial(l.Serial),
		Label:             label,
	}
	entryBytes := uint64(4)
	if sectors < fat16MaxSectors {
		bs.FATType = sdfs.FAT16
		bs.ReservedSectors = 1
		bs.RootEntryCount = 512
		entryBytes = 2
		geometry(bs, entryBytes)
		for bs.ClusterCount > fat16MaxClusters {
			bs.SectorsPerCluster *= 2
			geometry(bs, entryBytes)
		}
	} else {
		bs.FATType = sdfs.FAT32
		bs.ReservedSectors = 32
		geometry(bs, entryBytes)
	}

	rootDirSectors := uint32(bs.RootEntryCount) * 32 / sdfs.SectorSize
	firstData := bs.ReservedSectors + uint32(bs.NumFATs)*bs.FATSize + rootDirSectors
	system := firstData
	if bs.FATType == sdfs.FAT32 {
		// the root directory occupies cluster 2
		system += bs.SectorsPerCluster
	}
	if err := zeroSectors(card, scratch, 0, system); err != nil {
		return Fatal(err)
	}

	for i := uint32(0); i < uint32(bs.NumFATs); i++ {
		clear(scratch)
		if bs.FATType == sdfs.FAT32 {
			copy(scratch, []byte{0xF8, 0xFF, 0xFF, 0x0F, 0xFF, 0xFF, 0xFF, 0x0F, 0xFF, 0xFF, 0xFF, 0x0F})
		} else {
			copy(scratch, []byte{0xF8, 0xFF, 0xFF, 0xFF})
		}
		if err := card.WriteSector(bs.ReservedSectors+i*bs.FATSize, scratch); err != nil {
			return Fatal(err)
		}
	}

	if err := bs.Encode(scratch); err != nil {
		return Fatal(err)
	}
	if err := card.WriteSector(0, scratch); err != nil {
		return Fatal(err)
	}
	if bs.FATType == sdfs.FAT32 {
		if err := card.WriteSector(6, scratch); err != nil {
			return Fatal(err)
		}
	}
	return nil
}

// clusterShift returns log2 of the exFAT sectors per cluster.
func clusterShift(sectors uint32) uint {
	var vs uint
	for m := uint64(1); uint64(sectors) > m; m <<= 1 {
		vs++
	}
	if vs < 29 {
		return 8
	}
	return (vs - 11) / 2
}

func (l *ExFAT) Format(card sdfs.Card, scratch []byte) error {
	sectors := card.SectorCount()
	if sectors < exFATMinSectors {
		return Fatalf("card is too small for exFAT: %d sectors", sectors)
	}
	spc := uint32(1) << clusterShift(sectors)
	fatOffset := spc

	clusters := uint64(sectors-fatOffset) / uint64(spc)
	fatLength := uint32(((clusters+2)*4 + sdfs.SectorSize - 1) / sdfs.SectorSize)
	fatLength = (fatLength + spc - 1) / spc * spc
	heap := fatOffset + fatLength
	clusters = uint64(sectors-heap) / uint64(spc)

	bs := &fat.BootSector{
		FATType:           sdfs.ExFAT,
		BytesPerSector:    sdfs.SectorSize,
		SectorsPerCluster: spc,
		NumFATs:           1,
		ReservedSectors:   fatOffset,
		FATSize:           fatLength,
		TotalSectors:      uint64(sectors),
		ClusterCount:      uint32(clusters),
		VolumeID:          serial(l.Serial),
	}

	if err := zeroSectors(card, scratch, 0, 2*exFATBootRegion); err != nil {
		return Fatal(err)
	}
	clear(scratch)
	copy(scratch, []byte{0xF8, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if err := card.WriteSector(fatOffset, scratch); err != nil {
		return Fatal(err)
	}

	if err := bs.Encode(scratch); err != nil {
		return Fatal(err)
	}
	if err := card.WriteSector(0, scratch); err != nil {
		return Fatal(err)
	}
	if err := card.WriteSector(exFATBootRegion, scratch); err != nil {
		return Fatal(err)
	}
	return nil
}
