package sdfs

import "time"

// Clock supplies wall-clock time for entry creation and sync stamps.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FatToTime decodes packed FAT date and time fields.
func FatToTime(date, tm uint16) time.Time {
	year := int((date>>9)&0x7f) + 1980
	month := time.Month((date >> 5) & 0x0f)
	day := int(date & 0x1f)
	hour := int((tm >> 11) & 0x1f)
	minute := int((tm >> 5) & 0x3f)
	sec := int(tm&0x1f) * 2
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}

// DateTime packs t into FAT date and time fields plus the hundredths of a
// second lost to the two second time resolution.
func DateTime(t time.Time) (date, tm uint16, ms10 uint8) {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	} else if year > 127 {
		year = 127
	}
	date = uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	tm = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	if t.Second()&1 != 0 {
		ms10 = 100
	}
	return date, tm, ms10
}
