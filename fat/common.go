// Package fat mounts FAT and exFAT volumes found on a card. Directory
// contents live in an afero tree store keyed by the volume serial number;
// the card itself supplies the boot sector and geometry.
package fat

// go-common local proxy functions

import (
	"github.com/rstms/go-common"
)

func Fatal(err error) error {
	return common.Fatal(err)
}

func Fatalf(format string, args ...interface{}) error {
	return common.Fatalf(format, args...)
}
