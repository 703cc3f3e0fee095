package sdfs

import (
	"runtime"
	"strings"
	"time"
)

// Dir enumerates the children of a directory whose names start with a
// filter. The filter is a prefix: "abc" also matches "abcdef", so callers
// after an exact name must compare FileName themselves.
//
// Accessors describe the child produced by the last successful Next and
// return zero values before it, after exhaustion and after Rewind.
type Dir struct {
	fs      *FS
	pattern string
	h       *dirHandle
	dirPath string

	valid    bool
	name     string
	size     int64
	modTime  time.Time
	created  time.Time
	isFile   bool
	isDir    bool
	isHidden bool
	dirIndex int
}

// dirHandle owns the directory reference so it can be released after the
// Dir itself is unreachable.
type dirHandle struct {
	ref *ref
}

func (h *dirHandle) close() error {
	if h.ref == nil {
		return nil
	}
	r := h.ref
	h.ref = nil
	return r.release()
}

func newDir(fs *FS, pattern string, dir *ref, dirPath string) *Dir {
	d := &Dir{
		fs:       fs,
		pattern:  pattern,
		h:        &dirHandle{ref: dir},
		dirPath:  dirPath,
		dirIndex: -1,
	}
	runtime.AddCleanup(d, func(h *dirHandle) { h.close() }, d.h)
	return d
}

// Next advances to the next child matching the filter and reports whether
// there was one.
func (d *Dir) Next() bool {
	if d.h.ref == nil {
		d.valid = false
		return false
	}
	for {
		child, err := d.h.ref.entry.OpenNext(ORead)
		if err != nil {
			d.valid = false
			return false
		}
		d.capture(child)
		child.Close()
		if strings.HasPrefix(d.name, d.pattern) {
			return true
		}
	}
}

func (d *Dir) capture(child Entry) {
	d.valid = true
	d.size = child.Size()
	d.isFile = child.IsFile()
	d.isDir = child.IsDir()
	d.isHidden = child.IsHidden()
	d.dirIndex = child.DirIndex()
	if stamps, err := child.DirEntry(); err == nil {
		d.modTime = FatToTime(stamps.ModifyDate, stamps.ModifyTime)
		d.created = FatToTime(stamps.CreateDate, stamps.CreateTime)
	} else {
		d.modTime = time.Time{}
		d.created = time.Time{}
	}
	if child.IsLFN() {
		d.name = child.Name()
	} else {
		d.name = child.ShortName()
	}
	d.fs.log.Debugf("sdfs: next() size=%d dir=%v isLFN=%v hidden=%v name=[%s] SFN=[%s]",
		d.size, d.isDir, child.IsLFN(), d.isHidden, d.name, child.ShortName())
}

// Rewind restarts the enumeration from the first child.
func (d *Dir) Rewind() error {
	d.valid = false
	if d.h.ref == nil {
		return ErrNotOpen
	}
	return d.h.ref.entry.Rewind()
}

// OpenFile opens the current child. The child is reopened by its positional
// index when the volume reports one, otherwise by path.
func (d *Dir) OpenFile(openMode OpenMode, accessMode AccessMode) (*File, error) {
	if !d.valid {
		return nil, ErrNoEntry
	}
	if d.dirIndex >= 0 {
		return d.fs.openIndex(d, d.dirIndex, openMode, accessMode)
	}
	return d.fs.Open(childPath(d.dirPath, d.name), openMode, accessMode)
}

// Close releases the directory. A Dir that is never closed releases it
// when garbage collected.
func (d *Dir) Close() error {
	d.valid = false
	return d.h.close()
}

func (d *Dir) FileName() string {
	if !d.valid {
		return ""
	}
	return d.name
}

// FullName returns the current child's path built from the directory path.
func (d *Dir) FullName() string {
	if !d.valid {
		return ""
	}
	return childPath(d.dirPath, d.name)
}

func (d *Dir) FileSize() int64 {
	if !d.valid {
		return 0
	}
	return d.size
}

func (d *Dir) FileTime() time.Time {
	if !d.valid {
		return time.Time{}
	}
	return d.modTime
}

func (d *Dir) FileCreationTime() time.Time {
	if !d.valid {
		return time.Time{}
	}
	return d.created
}

func (d *Dir) IsFile() bool {
	return d.valid && d.isFile
}

func (d *Dir) IsDirectory() bool {
	return d.valid && d.isDir
}

func (d *Dir) IsHidden() bool {
	return d.valid && d.isHidden
}

// DirIndex returns the positional index of the current child, or -1.
func (d *Dir) DirIndex() int {
	if !d.valid {
		return -1
	}
	return d.dirIndex
}
