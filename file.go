package sdfs

import (
	"io"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ref is a reference counted native entry. The native entry is closed when
// the last reference is released.
type ref struct {
	entry Entry
	refs  atomic.Int32
}

func newRef(entry Entry) *ref {
	r := &ref{entry: entry}
	r.refs.Store(1)
	return r
}

func (r *ref) acquire() *ref {
	r.refs.Add(1)
	return r
}

func (r *ref) release() error {
	if r.refs.Add(-1) > 0 {
		return nil
	}
	return r.entry.Close()
}

type fileState struct {
	ref    *ref
	name   string
	opened bool
}

func (s *fileState) close() error {
	if !s.opened {
		return nil
	}
	s.opened = false
	ferr := s.ref.entry.Sync()
	if err := s.ref.release(); err != nil {
		return err
	}
	return ferr
}

// release drops the reference of a handle that was never closed. The native
// entry syncs itself when the last reference goes.
func (s *fileState) release() {
	if s.opened {
		s.opened = false
		s.ref.release()
	}
}

// File is an open file or directory. A File that is never closed is
// flushed and closed when it is garbage collected.
type File struct {
	s *fileState
}

func newFile(r *ref, name string) *File {
	f := &File{s: &fileState{ref: r, name: name, opened: true}}
	runtime.AddCleanup(f, func(s *fileState) { s.release() }, f.s)
	return f
}

// Clone returns a second handle on the same native entry. Each handle is
// closed independently.
func (f *File) Clone() (*File, error) {
	if !f.s.opened {
		return nil, ErrNotOpen
	}
	return newFile(f.s.ref.acquire(), f.s.name), nil
}

func (f *File) Read(p []byte) (int, error) {
	if !f.s.opened {
		return 0, ErrNotOpen
	}
	return f.s.ref.entry.Read(p)
}

func (f *File) Write(p []byte) (int, error) {
	if !f.s.opened {
		return 0, ErrNotOpen
	}
	return f.s.ref.entry.Write(p)
}

// Flush writes back pending data and syncs the directory entry.
func (f *File) Flush() error {
	if !f.s.opened {
		return nil
	}
	if err := f.s.ref.entry.Flush(); err != nil {
		return err
	}
	return f.s.ref.entry.Sync()
}

// Seek moves the position. SeekEnd positions pos bytes before the end.
func (f *File) Seek(pos uint32, mode SeekMode) error {
	if !f.s.opened {
		return ErrNotOpen
	}
	var err error
	switch mode {
	case SeekSet:
		_, err = f.s.ref.entry.Seek(int64(pos), io.SeekStart)
	case SeekEnd:
		_, err = f.s.ref.entry.Seek(-int64(pos), io.SeekEnd)
	case SeekCur:
		_, err = f.s.ref.entry.Seek(int64(pos), io.SeekCurrent)
	default:
		return ErrInvalidSeek
	}
	return err
}

func (f *File) Position() int64 {
	if !f.s.opened {
		return 0
	}
	return f.s.ref.entry.Position()
}

func (f *File) Size() int64 {
	if !f.s.opened {
		return 0
	}
	return f.s.ref.entry.Size()
}

func (f *File) Truncate(size uint32) error {
	if !f.s.opened {
		return ErrNotOpen
	}
	return f.s.ref.entry.Truncate(int64(size))
}

// Close flushes and closes the file. Repeated calls do nothing.
func (f *File) Close() error {
	return f.s.close()
}

// Name returns the final segment of the file's path.
func (f *File) Name() string {
	if !f.s.opened {
		return ""
	}
	p := f.s.name
	if slash := strings.LastIndexByte(p, '/'); slash >= 0 && slash+1 < len(p) {
		return p[slash+1:]
	}
	return p
}

// FullName returns the path the file was opened with.
func (f *File) FullName() string {
	if !f.s.opened {
		return ""
	}
	return f.s.name
}

func (f *File) IsFile() bool {
	return f.s.opened && f.s.ref.entry.IsFile()
}

func (f *File) IsDirectory() bool {
	return f.s.opened && f.s.ref.entry.IsDir()
}

// LastWrite returns the modify time, or the zero time when unavailable.
func (f *File) LastWrite() time.Time {
	if !f.s.opened {
		return time.Time{}
	}
	stamps, err := f.s.ref.entry.DirEntry()
	if err != nil {
		return time.Time{}
	}
	return FatToTime(stamps.ModifyDate, stamps.ModifyTime)
}

// CreationTime returns the create time, or the zero time when unavailable.
func (f *File) CreationTime() time.Time {
	if !f.s.opened {
		return time.Time{}
	}
	stamps, err := f.s.ref.entry.DirEntry()
	if err != nil {
		return time.Time{}
	}
	return FatToTime(stamps.CreateDate, stamps.CreateTime)
}
