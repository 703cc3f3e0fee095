// Package sdfs presents POSIX-like file and directory access on top of a FAT
// or exFAT volume stored on an SD card.
//
// An FS is driven by one logical flow at a time. Callers sharing an FS
// between goroutines must serialize every call on it and on the Files and
// Dirs derived from it.
package sdfs

import (
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	maxOpenFiles  = 999
	maxPathLength = 255
)

// Info64 holds capacity and usage statistics of a mounted volume.
type Info64 struct {
	TotalBytes    uint64
	UsedBytes     uint64
	BlockSize     uint32
	PageSize      uint32
	MaxOpenFiles  uint32
	MaxPathLength uint32
}

// Info is the 32-bit rendition of Info64.
type Info struct {
	TotalBytes    uint32
	UsedBytes     uint32
	BlockSize     uint32
	PageSize      uint32
	MaxOpenFiles  uint32
	MaxPathLength uint32
}

// FS is the filesystem adapter over a card volume.
type FS struct {
	factory   CardFactory
	mounter   Mounter
	formatter CardFormatter
	log       log.FieldLogger

	cfg     Config
	vol     Volume
	mounted bool
}

type Option func(*FS)

func WithLogger(logger log.FieldLogger) Option {
	return func(fs *FS) {
		fs.log = logger
	}
}

func New(factory CardFactory, mounter Mounter, formatter CardFormatter, opts ...Option) *FS {
	fs := &FS{
		factory:   factory,
		mounter:   mounter,
		formatter: formatter,
		log:       log.StandardLogger(),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Begin mounts the card selected by cfg. When the mount fails and
// cfg.AutoFormat is set the card is formatted and the mount retried once.
func (fs *FS) Begin(cfg Config) error {
	if fs.mounted {
		fs.End()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fs.cfg = cfg
	err := fs.mount()
	if err != nil && cfg.AutoFormat {
		fs.log.Warnf("sdfs: mount failed (%v), formatting", err)
		if ferr := fs.Format(); ferr != nil {
			fs.log.Warnf("sdfs: auto format failed: %v", ferr)
		}
		err = fs.mount()
	}
	return err
}

func (fs *FS) mount() error {
	var card Card
	var err error
	if fs.cfg.SDIO != nil {
		card, err = fs.factory.NewSDIOCard(fs.cfg.SDIO)
	} else {
		card, err = fs.factory.NewSPICard(fs.cfg.SPI)
	}
	if err != nil {
		return errors.Wrap(err, "acquiring card")
	}
	if code := card.ErrorCode(); code != 0 {
		release(card)
		return errors.Errorf("card error code %d", code)
	}
	vol, err := fs.mounter.Mount(card, fs.cfg.Part, fs.cfg.clock())
	if err != nil {
		release(card)
		return errors.Wrap(err, "mounting volume")
	}
	fs.vol = vol
	fs.mounted = true
	fs.log.Debugf("sdfs: mounted %s volume", vol.FATType())
	return nil
}

// End marks the filesystem unmounted and releases the card. Open handles
// are not flushed.
func (fs *FS) End() {
	if fs.vol != nil {
		release(fs.vol.Card())
	}
	fs.mounted = false
	fs.vol = nil
}

func release(card Card) {
	if c, ok := card.(io.Closer); ok {
		c.Close()
	}
}

func (fs *FS) Mounted() bool {
	return fs.mounted
}

// Volume returns the mounted native volume, or nil.
func (fs *FS) Volume() Volume {
	if !fs.mounted {
		return nil
	}
	return fs.vol
}

// Format lays out the card anew. It refuses to run on a mounted volume.
func (fs *FS) Format() error {
	if fs.mounted {
		return ErrMounted
	}
	if fs.formatter == nil {
		return ErrNoFormatter
	}
	return fs.formatter.Format(fs.cfg.SDIO, fs.cfg.SPI)
}

// Erase erases every sector of the card. It refuses to run on a mounted
// volume.
func (fs *FS) Erase() error {
	if fs.mounted {
		return ErrMounted
	}
	if fs.formatter == nil {
		return ErrNoFormatter
	}
	return fs.formatter.Erase(fs.cfg.SDIO, fs.cfg.SPI)
}

func (fs *FS) Exists(path string) bool {
	return fs.mounted && fs.vol.Exists(path)
}

// Open opens path. With OMCreate, missing intermediate directories are
// created first; failures there surface through the final open.
func (fs *FS) Open(path string, openMode OpenMode, accessMode AccessMode) (*File, error) {
	fs.log.Debugf("sdfs: open path=[%s]", path)
	if !fs.mounted {
		return nil, ErrNotMounted
	}
	if path == "" {
		return nil, ErrInvalidPath
	}
	flags := Flags(openMode, accessMode)
	if openMode&OMCreate != 0 {
		if slash := strings.LastIndexByte(path, '/'); slash > 0 {
			if err := fs.vol.Mkdir(path[:slash], true); err != nil {
				fs.log.Debugf("sdfs: open mkdir %s: %v", path[:slash], err)
			}
		}
	}
	entry, err := fs.vol.Open(path, flags)
	if err != nil {
		fs.log.Debugf("sdfs: open fail path=`%s` flags=%#x openMode=%d accessMode=%d error=%d: %v",
			path, flags, openMode, accessMode, fs.vol.Card().ErrorCode(), err)
		return nil, errors.Wrapf(ErrOpen, "%s: %v", path, err)
	}
	return newFile(newRef(entry), path), nil
}

// openIndex opens the child at index of the directory walked by dir.
func (fs *FS) openIndex(dir *Dir, index int, openMode OpenMode, accessMode AccessMode) (*File, error) {
	if !fs.mounted {
		return nil, ErrNotMounted
	}
	flags := Flags(openMode, accessMode)
	entry, err := fs.vol.OpenIndex(dir.h.ref.entry, index, flags)
	if err != nil {
		fs.log.Debugf("sdfs: open index fail dirIndex=%d flags=%#x error=%d: %v",
			index, flags, fs.vol.Card().ErrorCode(), err)
		return nil, errors.Wrapf(ErrOpen, "index %d: %v", index, err)
	}
	return newFile(newRef(entry), dir.FileName()), nil
}

// stat reports whether path exists and whether it is a directory.
func (fs *FS) stat(path string) (bool, bool) {
	if !fs.vol.Exists(path) {
		return false, false
	}
	entry, err := fs.vol.Open(path, ORead)
	if err != nil {
		return true, false
	}
	defer entry.Close()
	return true, entry.IsDir()
}

// OpenDir returns a cursor over the children of the directory path
// resolves to, filtered by the resolved name prefix.
func (fs *FS) OpenDir(path string) (*Dir, error) {
	fs.log.Debugf("sdfs: openDir path=[%s]", path)
	if !fs.mounted {
		return nil, ErrNotMounted
	}
	res := resolvePath(path, fs.stat)
	entry, err := fs.vol.Open(res.anchor, ORead)
	if err != nil {
		fs.log.Debugf("sdfs: openDir failed: path=`%s`: %v", path, err)
		return nil, errors.Wrapf(ErrResolve, "%s: %v", path, err)
	}
	if !entry.IsDir() {
		entry.Close()
		return nil, errors.Wrapf(ErrResolve, "%s: %s is not a directory", path, res.anchor)
	}
	fs.log.Debugf("sdfs: openDir ok: path=`%s` filter='%s'", path, res.filter)
	return newDir(fs, res.filter, newRef(entry), res.dirPath), nil
}

func (fs *FS) Rename(from, to string) error {
	if !fs.mounted {
		return ErrNotMounted
	}
	return fs.vol.Rename(from, to)
}

func (fs *FS) Remove(path string) error {
	if !fs.mounted {
		return ErrNotMounted
	}
	return fs.vol.Remove(path)
}

// Mkdir creates path along with any missing parents.
func (fs *FS) Mkdir(path string) error {
	if !fs.mounted {
		return ErrNotMounted
	}
	return fs.vol.Mkdir(path, true)
}

func (fs *FS) Rmdir(path string) error {
	if !fs.mounted {
		return ErrNotMounted
	}
	return fs.vol.Rmdir(path)
}

func (fs *FS) Info64() (Info64, error) {
	if !fs.mounted {
		fs.log.Debug("sdfs: info: FS not mounted")
		return Info64{}, ErrNotMounted
	}
	free, err := fs.vol.FreeClusterCount()
	if err != nil {
		return Info64{}, errors.Wrap(err, "counting free clusters")
	}
	clusterBytes := uint64(fs.vol.SectorsPerCluster()) * SectorSize
	info := Info64{
		BlockSize:     uint32(clusterBytes),
		MaxOpenFiles:  maxOpenFiles,
		MaxPathLength: maxPathLength,
		TotalBytes:    uint64(fs.vol.ClusterCount()) * clusterBytes,
	}
	info.UsedBytes = info.TotalBytes - uint64(free)*clusterBytes
	return info, nil
}

// Info returns 32-bit statistics. Sizes that do not fit are truncated with a
// warning; use Info64 for large cards.
func (fs *FS) Info() (Info, error) {
	i, err := fs.Info64()
	if err != nil {
		return Info{}, err
	}
	if i.TotalBytes > math.MaxUint32 {
		fs.log.Warnf("WARNING: SD card size overflow (%d>= 4GB).  Please update source to use Info64().", i.TotalBytes)
	}
	return Info{
		TotalBytes:    uint32(i.TotalBytes),
		UsedBytes:     uint32(i.UsedBytes),
		BlockSize:     i.BlockSize,
		PageSize:      i.PageSize,
		MaxOpenFiles:  i.MaxOpenFiles,
		MaxPathLength: i.MaxPathLength,
	}, nil
}

// Sync flushes every file in files.
func (fs *FS) Sync(files ...*File) error {
	var first error
	for _, f := range files {
		fs.log.Debugf("sdfs: flushing %s", f.FullName())
		if err := f.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (fs *FS) FATType() FATType {
	if !fs.mounted {
		return FATUnknown
	}
	return fs.vol.FATType()
}

func (fs *FS) BlocksPerCluster() uint32 {
	if !fs.mounted {
		return 0
	}
	return fs.vol.SectorsPerCluster()
}

func (fs *FS) TotalClusters() uint32 {
	if !fs.mounted {
		return 0
	}
	return fs.vol.ClusterCount()
}

func (fs *FS) TotalBlocks() uint64 {
	return uint64(fs.TotalClusters()) * uint64(fs.BlocksPerCluster())
}

func (fs *FS) ClusterSize() uint32 {
	return fs.BlocksPerCluster() * SectorSize
}

func (fs *FS) Size() uint64 {
	return uint64(fs.ClusterSize()) * uint64(fs.TotalClusters())
}
