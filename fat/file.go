package fat

import (
	"io"

	"github.com/spf13/afero"

	"github.com/rstms/sdfs"
)

// File is an open file or directory on a FileSystem. Directories carry a
// slot cursor for OpenNext; files carry the open tree store handle.
type File struct {
	fs    *FileSystem
	entry *DirectoryEntry
	flags sdfs.OFlag

	data  afero.File
	dirty bool

	dir  *Directory
	next int

	closed bool
}

var _ sdfs.Entry = (*File)(nil)

// treePath follows the entry so a handle stays valid across a rename.
func (f *File) treePath() string {
	if f.entry == nil {
		return "/"
	}
	return f.entry.Path()
}

func (f *File) checkOpen() error {
	if f.closed {
		return Fatalf("file closed: %s", f.treePath())
	}
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.data == nil {
		return 0, Fatalf("read of directory: %s", f.treePath())
	}
	if f.flags&sdfs.ORead == 0 {
		return 0, Fatalf("file not open for reading: %s", f.treePath())
	}
	return f.data.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.data == nil {
		return 0, Fatalf("write to directory: %s", f.treePath())
	}
	if f.flags&sdfs.OWrite == 0 {
		return 0, Fatalf("file not open for writing: %s", f.treePath())
	}
	n, err := f.data.Write(p)
	if n > 0 {
		f.dirty = true
	}
	return n, err
}

// Seek positions the file within [0, size].
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if f.data == nil {
		return 0, Fatalf("seek on directory: %s", f.treePath())
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.Position()
	case io.SeekEnd:
		base = f.Size()
	default:
		return 0, Fatalf("invalid whence: %d", whence)
	}
	pos := base + offset
	if pos < 0 || pos > f.Size() {
		return f.Position(), Fatalf("seek out of range: %d", pos)
	}
	return f.data.Seek(pos, io.SeekStart)
}

func (f *File) Position() int64 {
	if f.closed || f.data == nil {
		return 0
	}
	pos, err := f.data.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return pos
}

func (f *File) Size() int64 {
	if f.closed || f.data == nil {
		return 0
	}
	info, err := f.data.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Truncate cuts the file to size and leaves the position at the new end
// when it was beyond it.
func (f *File) Truncate(size int64) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.data == nil || f.flags&sdfs.OWrite == 0 {
		return Fatalf("file not open for writing: %s", f.treePath())
	}
	if size > f.Size() {
		return Fatalf("truncate beyond end of file: %d", size)
	}
	pos := f.Position()
	if err := f.data.Truncate(size); err != nil {
		return Fatal(err)
	}
	f.dirty = true
	if pos > size {
		if _, err := f.data.Seek(size, io.SeekStart); err != nil {
			return Fatal(err)
		}
	}
	return nil
}

func (f *File) Flush() error {
	if f.closed || f.data == nil || !f.dirty {
		return nil
	}
	if err := f.data.Sync(); err != nil {
		return Fatal(err)
	}
	return nil
}

// Sync flushes data and stamps the modify time from the volume clock.
func (f *File) Sync() error {
	if f.closed || !f.dirty {
		return nil
	}
	if err := f.Flush(); err != nil {
		return Fatal(err)
	}
	now := f.fs.clock.Now()
	if err := f.fs.tree.Chtimes(f.treePath(), now, now); err != nil {
		return Fatal(err)
	}
	f.dirty = false
	return nil
}

func (f *File) Close() error {
	if f.closed {
		return nil
	}
	serr := f.Sync()
	f.closed = true
	if f.data != nil {
		if err := f.data.Close(); err != nil {
			return Fatal(err)
		}
	}
	return serr
}

func (f *File) IsFile() bool {
	return f.data != nil
}

func (f *File) IsDir() bool {
	return f.dir != nil
}

func (f *File) IsHidden() bool {
	return f.entry != nil && f.entry.IsHidden()
}

func (f *File) IsLFN() bool {
	return f.entry != nil && f.entry.lfn
}

func (f *File) Name() string {
	if f.entry == nil {
		return "/"
	}
	return f.entry.Name()
}

func (f *File) ShortName() string {
	if f.entry == nil {
		return "/"
	}
	return f.entry.ShortName()
}

func (f *File) DirIndex() int {
	if f.entry == nil {
		return -1
	}
	return f.entry.index
}

// DirEntry returns the create stamps kept in the slot and the modify stamps
// of the stored file. The root directory has no entry.
func (f *File) DirEntry() (sdfs.DirStamps, error) {
	if err := f.checkOpen(); err != nil {
		return sdfs.DirStamps{}, err
	}
	if f.entry == nil {
		return sdfs.DirStamps{}, Fatalf("root directory has no entry")
	}
	info, err := f.fs.tree.Stat(f.treePath())
	if err != nil {
		return sdfs.DirStamps{}, Fatal(err)
	}
	date, tm, _ := sdfs.DateTime(info.ModTime())
	return sdfs.DirStamps{
		CreateDate: f.entry.createDate,
		CreateTime: f.entry.createTime,
		ModifyDate: date,
		ModifyTime: tm,
	}, nil
}

func (f *File) OpenNext(flags sdfs.OFlag) (sdfs.Entry, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if f.dir == nil {
		return nil, Fatalf("not a directory: %s", f.treePath())
	}
	if err := f.dir.ensureLoaded(); err != nil {
		return nil, Fatal(err)
	}
	for f.next < len(f.dir.slots) {
		slot := f.dir.slots[f.next]
		f.next++
		if slot == nil {
			continue
		}
		return f.fs.open(slot, flags)
	}
	return nil, io.EOF
}

// Rewind restarts the slot cursor and picks up changes made to the tree
// store outside the volume.
func (f *File) Rewind() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.dir == nil {
		return Fatalf("not a directory: %s", f.treePath())
	}
	f.next = 0
	return f.dir.load()
}
