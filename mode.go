package sdfs

type OpenMode uint8

const (
	OMDefault  OpenMode = 0
	OMCreate   OpenMode = 1
	OMAppend   OpenMode = 2
	OMTruncate OpenMode = 4
)

type AccessMode uint8

const (
	AMRead  AccessMode = 1
	AMWrite AccessMode = 2
	AMRW               = AMRead | AMWrite
)

type SeekMode uint8

const (
	SeekSet SeekMode = 0
	SeekCur SeekMode = 1
	SeekEnd SeekMode = 2
)

// OFlag is the native open flag set understood by a Volume.
type OFlag uint16

const (
	ORead  OFlag = 0x01
	OWrite OFlag = 0x02
	OAtEnd OFlag = 0x04
	OCreat OFlag = 0x08
	OTrunc OFlag = 0x10
	ORdwr        = ORead | OWrite
)

// Flags maps an open and access mode onto native open flags. Combinations
// are not validated.
func Flags(openMode OpenMode, accessMode AccessMode) OFlag {
	var flags OFlag
	if openMode&OMCreate != 0 {
		flags |= OCreat
	}
	if openMode&OMAppend != 0 {
		flags |= OAtEnd
	}
	if openMode&OMTruncate != 0 {
		flags |= OTrunc
	}
	if accessMode&AMRead != 0 {
		flags |= ORead
	}
	if accessMode&AMWrite != 0 {
		flags |= OWrite
	}
	return flags
}
