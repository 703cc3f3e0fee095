package fat

import (
	"encoding/binary"
	"strings"

	"github.com/rstms/sdfs"
)

const (
	oemExFAT       = "EXFAT   "
	bootSignature0 = 0x55
	bootSignature1 = 0xAA
	extBootSig     = 0x29
	mediaFixed     = 0xF8
)

// BootSector holds the volume geometry recorded in sector 0.
type BootSector struct {
	FATType           sdfs.FATType
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint32
	ReservedSectors   uint32
	NumFATs           uint8
	RootEntryCount    uint16
	FATSize           uint32
	TotalSectors      uint64
	ClusterCount      uint32
	VolumeID          uint32
	Label             string
}

// DecodeBootSector reads and parses the boot sector of card.
func DecodeBootSector(card sdfs.Card) (*BootSector, error) {
	buf := make([]byte, sdfs.SectorSize)
	if err := card.ReadSector(0, buf); err != nil {
		return nil, Fatal(err)
	}
	if buf[510] != bootSignature0 || buf[511] != bootSignature1 {
		return nil, Fatalf("no boot sector signature")
	}
	bs := &BootSector{OEMName: string(buf[3:11])}
	if bs.OEMName == oemExFAT {
		bs.decodeExFAT(buf)
	} else {
		bs.decodeFAT(buf)
	}
	if bs.BytesPerSector != sdfs.SectorSize || bs.SectorsPerCluster == 0 {
		return nil, Fatalf("unsupported geometry: %d bytes per sector, %d sectors per cluster",
			bs.BytesPerSector, bs.SectorsPerCluster)
	}
	return bs, nil
}

func (bs *BootSector) decodeExFAT(buf []byte) {
	bs.FATType = sdfs.ExFAT
	bs.BytesPerSector = 1 << buf[108]
	bs.SectorsPerCluster = 1 << buf[109]
	bs.NumFATs = buf[110]
	bs.TotalSectors = binary.LittleEndian.Uint64(buf[72:80])
	bs.ReservedSectors = binary.LittleEndian.Uint32(buf[80:84])
	bs.FATSize = binary.LittleEndian.Uint32(buf[84:88])
	bs.ClusterCount = binary.LittleEndian.Uint32(buf[92:96])
	bs.VolumeID = binary.LittleEndian.Uint32(buf[100:104])
}

func (bs *BootSector) decodeFAT(buf []byte) {
	bs.BytesPerSector = binary.LittleEndian.Uint16(buf[11:13])
	bs.SectorsPerCluster = uint32(buf[13])
	bs.ReservedSectors = uint32(binary.LittleEndian.Uint16(buf[14:16]))
	bs.NumFATs = buf[16]
	bs.RootEntryCount = binary.LittleEndian.Uint16(buf[17:19])

	if total16 := binary.LittleEndian.Uint16(buf[19:21]); total16 != 0 {
		bs.TotalSectors = uint64(total16)
	} else {
		bs.TotalSectors = uint64(binary.LittleEndian.Uint32(buf[32:36]))
	}

	isFAT32 := false
	if fatSize16 := binary.LittleEndian.Uint16(buf[22:24]); fatSize16 != 0 {
		bs.FATSize = uint32(fatSize16)
		bs.VolumeID = binary.LittleEndian.Uint32(buf[39:43])
		bs.Label = strings.TrimRight(string(buf[43:54]), " ")
	} else {
		isFAT32 = true
		bs.FATSize = binary.LittleEndian.Uint32(buf[36:40])
		bs.VolumeID = binary.LittleEndian.Uint32(buf[67:71])
		bs.Label = strings.TrimRight(string(buf[71:82]), " ")
	}

	if bs.BytesPerSector == 0 || bs.SectorsPerCluster == 0 {
		return
	}
	bps := uint32(bs.BytesPerSector)
	rootDirSectors := (uint32(bs.RootEntryCount)*32 + bps - 1) / bps
	firstData := uint64(bs.ReservedSectors) + uint64(bs.NumFATs)*uint64(bs.FATSize) + uint64(rootDirSectors)
	if bs.TotalSectors > firstData {
		bs.ClusterCount = uint32((bs.TotalSectors - firstData) / uint64(bs.SectorsPerCluster))
	}

	switch {
	case isFAT32:
		bs.FATType = sdfs.FAT32
	case bs.ClusterCount < 4085:
		bs.FATType = sdfs.FAT12
	default:
		bs.FATType = sdfs.FAT16
	}
}

// Encode writes the boot sector into buf, which must hold one sector.
func (bs *BootSector) Encode(buf []byte) error {
	if len(buf) < sdfs.SectorSize {
		return Fatalf("boot sector buffer too small: %d", len(buf))
	}
	clear(buf[:sdfs.SectorSize])
	if bs.FATType == sdfs.ExFAT {
		bs.encodeExFAT(buf)
	} else {
		bs.encodeFAT(buf)
	}
	buf[510] = bootSignature0
	buf[511] = bootSignature1
	return nil
}

func (bs *BootSector) encodeExFAT(buf []byte) {
	copy(buf[0:3], []byte{0xEB, 0x76, 0x90})
	copy(buf[3:11], oemExFAT)
	binary.LittleEndian.PutUint64(buf[72:80], bs.TotalSectors)
	binary.LittleEndian.PutUint32(buf[80:84], bs.ReservedSectors)
	binary.LittleEndian.PutUint32(buf[84:88], bs.FATSize)
	heap := bs.ReservedSectors + bs.FATSize
	binary.LittleEndian.PutUint32(buf[88:92], heap)
	binary.LittleEndian.PutUint32(buf[92:96], bs.ClusterCount)
	binary.LittleEndian.PutUint32(buf[100:104], bs.VolumeID)
	buf[108] = byte(shift(uint32(bs.BytesPerSector)))
	buf[109] = byte(shift(bs.SectorsPerCluster))
	buf[110] = bs.NumFATs
}

func (bs *BootSector) encodeFAT(buf []byte) {
	copy(buf[3:11], padded(bs.OEMName, 8))
	binary.LittleEndian.PutUint16(buf[11:13], bs.BytesPerSector)
	buf[13] = uint8(bs.SectorsPerCluster)
	binary.LittleEndian.PutUint16(buf[14:16], uint16(bs.ReservedSectors))
	buf[16] = bs.NumFATs
	binary.LittleEndian.PutUint16(buf[17:19], bs.RootEntryCount)
	if bs.TotalSectors < 0x10000 {
		binary.LittleEndian.PutUint16(buf[19:21], uint16(bs.TotalSectors))
	} else {
		binary.LittleEndian.PutUint32(buf[32:36], uint32(bs.TotalSectors))
	}
	buf[21] = mediaFixed

	if bs.FATType == sdfs.FAT32 {
		copy(buf[0:3], []byte{0xEB, 0x58, 0x90})
		binary.LittleEndian.PutUint32(buf[36:40], bs.FATSize)
		binary.LittleEndian.PutUint32(buf[44:48], 2)
		buf[66] = extBootSig
		binary.LittleEndian.PutUint32(buf[67:71], bs.VolumeID)
		copy(buf[71:82], padded(bs.Label, 11))
		copy(buf[82:90], "FAT32   ")
		return
	}
	copy(buf[0:3], []byte{0xEB, 0x3C, 0x90})
	binary.LittleEndian.PutUint16(buf[22:24], uint16(bs.FATSize))
	buf[38] = extBootSig
	binary.LittleEndian.PutUint32(buf[39:43], bs.VolumeID)
	copy(buf[43:54], padded(bs.Label, 11))
	copy(buf[54:62], padded(bs.FATType.String(), 8))
}

func padded(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// shift returns log2 of a power of two.
func shift(v uint32) uint {
	var s uint
	for v > 1 {
		v >>= 1
		s++
	}
	return s
}
