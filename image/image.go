package image

import (
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/rstms/sdfs"
	"github.com/rstms/sdfs/card"
	"github.com/rstms/sdfs/fat"
	"github.com/rstms/sdfs/format"
)

const MB = 1024 * 1024
const PAD_BYTES = 512

type FileRecord struct {
	Name      string
	ShortName string
	Size      int64
	Dir       bool
	Hidden    bool
	System    bool
	ReadOnly  bool
}

// Options locate an image and the store holding its volume contents.
type Options struct {
	// Fs holds the image file and the host files imported into it; the
	// OS filesystem when nil.
	Fs afero.Fs
	// Store holds the volume contents; Fs when nil.
	Store afero.Fs
	// Root is the store directory; the image filename with a ".d" suffix
	// when empty.
	Root  string
	Clock sdfs.Clock
	Log   log.FieldLogger
}

type Image struct {
	Filename string

	host      afero.Fs
	store     afero.Fs
	root      string
	formatter *format.Formatter
	fs        *sdfs.FS
	log       log.FieldLogger
	cfg       sdfs.Config
}

type attrGetter interface {
	GetAttr(path string) (sdfs.DirectoryAttr, error)
}

func newImage(filename string, opts *Options) *Image {
	if opts == nil {
		opts = &Options{}
	}
	host := opts.Fs
	if host == nil {
		host = afero.NewOsFs()
	}
	store := opts.Store
	if store == nil {
		store = host
	}
	root := opts.Root
	if root == "" {
		root = filename + ".d"
	}
	logger := opts.Log
	if logger == nil {
		logger = log.StandardLogger()
	}
	factory := &card.Factory{Fs: host, Path: filename, Log: logger}
	formatter := format.New(factory)
	formatter.Log = logger
	cfg := sdfs.DefaultConfig()
	cfg.Clock = opts.Clock
	return &Image{
		Filename:  filename,
		host:      host,
		store:     store,
		root:      root,
		formatter: formatter,
		fs:        sdfs.New(factory, &fat.Mounter{Fs: store, Root: root}, formatter, sdfs.WithLogger(logger)),
		log:       logger,
		cfg:       cfg,
	}
}

func OpenImage(filename string, opts *Options) (*Image, error) {
	i := newImage(filename, opts)
	err := i.fs.Begin(i.cfg)
	if err != nil {
		return nil, Fatal(err)
	}
	return i, nil
}

// CreateImage writes a new formatted image of at least size bytes.
func CreateImage(filename, label, oem string, size int64, opts *Options) (*Image, error) {
	i := newImage(filename, opts)
	err := i.createImageFile(size)
	if err != nil {
		return nil, Fatal(err)
	}
	err = i.format(label, oem)
	if err != nil {
		return nil, Fatal(err)
	}
	err = i.fs.Begin(i.cfg)
	if err != nil {
		return nil, Fatal(err)
	}
	return i, nil
}

// create and size the image file, rounded up to whole sectors
func (i *Image) createImageFile(size int64) error {
	sectors := (size + sdfs.SectorSize - 1) / sdfs.SectorSize
	if sectors <= 0 || sectors > int64(^uint32(0)) {
		return Fatalf("invalid image size: %d", size)
	}
	i.log.Debugf("image: creating %s with %d sectors", i.Filename, sectors)
	c, err := card.Create(i.host, i.Filename, uint32(sectors))
	if err != nil {
		return Fatal(err)
	}
	return c.Close()
}

func (i *Image) format(label, oem string) error {
	i.formatter.FAT = &format.FAT{Label: label, OEMName: oem}
	err := i.fs.Format()
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) Close() error {
	i.fs.End()
	return nil
}

// FS returns the mounted filesystem of the image.
func (i *Image) FS() *sdfs.FS {
	return i.fs
}

func (i *Image) bootSector() (*fat.BootSector, error) {
	vol, ok := i.fs.Volume().(*fat.FileSystem)
	if !ok {
		return nil, Fatalf("image not mounted: %s", i.Filename)
	}
	return vol.BootSector(), nil
}

func (i *Image) VolumeLabel() (string, error) {
	bs, err := i.bootSector()
	if err != nil {
		return "", Fatal(err)
	}
	return bs.Label, nil
}

func (i *Image) OEMName() (string, error) {
	bs, err := i.bootSector()
	if err != nil {
		return "", Fatal(err)
	}
	return strings.TrimRight(bs.OEMName, " "), nil
}

func (i *Image) ScanFiles() ([]FileRecord, error) {
	records, err := i.walk("/")
	if err != nil {
		return []FileRecord{}, Fatal(err)
	}
	return records, nil
}

func (i *Image) walk(dirPath string) ([]FileRecord, error) {
	records := []FileRecord{}
	dir, err := i.fs.OpenDir(dirPath)
	if err != nil {
		return records, Fatal(err)
	}
	defer dir.Close()
	var subdirs []string
	for dir.Next() {
		name := path.Join(dirPath, dir.FileName())
		attr, err := i.GetAttr(name)
		if err != nil {
			return []FileRecord{}, Fatal(err)
		}
		record := FileRecord{
			Name:      name,
			ShortName: i.shortName(name),
			Size:      dir.FileSize(),
			Dir:       dir.IsDirectory(),
			Hidden:    dir.IsHidden(),
			System:    attr&sdfs.AttrSystem == sdfs.AttrSystem,
			ReadOnly:  attr&sdfs.AttrReadOnly == sdfs.AttrReadOnly,
		}
		records = append(records, record)
		if record.Dir {
			subdirs = append(subdirs, name)
		}
	}
	for _, sub := range subdirs {
		subRecords, err := i.walk(sub)
		if err != nil {
			return []FileRecord{}, Fatal(err)
		}
		records = append(records, subRecords...)
	}
	return records, nil
}

func (i *Image) shortName(name string) string {
	vol := i.fs.Volume()
	if vol == nil {
		return ""
	}
	entry, err := vol.Open(name, sdfs.ORead)
	if err != nil {
		return ""
	}
	defer entry.Close()
	return entry.ShortName()
}

func (i *Image) AddFile(dstPathname, srcPathname string) error {
	srcInfo, err := i.host.Stat(srcPathname)
	if err != nil {
		return Fatal(err)
	}
	src, err := i.host.Open(srcPathname)
	if err != nil {
		return Fatal(err)
	}
	defer src.Close()
	return i.copyIn(dstPathname, src, srcInfo.Size())
}

// WriteFile creates or replaces a file in the image with data.
func (i *Image) WriteFile(dstPathname string, data []byte) error {
	return i.copyIn(dstPathname, bytes.NewReader(data), int64(len(data)))
}

func (i *Image) copyIn(dstPathname string, src io.Reader, size int64) error {
	dst, err := i.fs.Open(dstPathname, sdfs.OMCreate|sdfs.OMTruncate, sdfs.AMWrite)
	if err != nil {
		return Fatal(err)
	}
	defer dst.Close()
	count, err := io.Copy(dst, src)
	if err != nil {
		return Fatal(err)
	}
	if count != size {
		return Fatalf("write count mismatch; expected %d, wrote %d\n", size, count)
	}
	return dst.Close()
}

func (i *Image) ReadFile(filename string) ([]byte, error) {
	src, err := i.fs.Open(filename, sdfs.OMDefault, sdfs.AMRead)
	if err != nil {
		return []byte{}, Fatal(err)
	}
	defer src.Close()
	if src.IsDirectory() {
		return []byte{}, Fatalf("is a directory: %s", filename)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return []byte{}, Fatal(err)
	}
	i.log.Debugf("image: read %d bytes from %s", len(data), filename)
	return data, nil
}

func (i *Image) IsDir(name string) (bool, error) {
	if !i.fs.Mounted() {
		return false, Fatalf("image not mounted: %s", i.Filename)
	}
	name = "/" + strings.Trim(name, "/")
	if !i.fs.Exists(name) {
		return false, nil
	}
	f, err := i.fs.Open(name, sdfs.OMDefault, sdfs.AMRead)
	if err != nil {
		return false, Fatal(err)
	}
	defer f.Close()
	return f.IsDirectory(), nil
}

func (i *Image) Mkdir(pathname string) error {
	exists, err := i.IsDir(pathname)
	if err != nil {
		return Fatal(err)
	}
	if exists {
		return Fatalf("directory exists: %s", pathname)
	}
	err = i.fs.Mkdir(pathname)
	if err != nil {
		return Fatal(err)
	}
	return nil
}

// write all files in a host directory to the image
func (i *Image) Import(dirname string) error {
	return i.importFrom(i.host, dirname)
}

func (i *Image) importFrom(src afero.Fs, dirname string) error {
	err := afero.Walk(src, dirname, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return Fatal(err)
		}
		if p == dirname {
			return nil
		}
		rel, err := filepath.Rel(dirname, p)
		if err != nil {
			return Fatal(err)
		}
		dst := "/" + filepath.ToSlash(rel)
		i.log.Debugf("image: import dir=%v dst=%s path=%s", info.IsDir(), dst, p)
		if info.IsDir() {
			err := i.Mkdir(dst)
			if err != nil {
				return Fatal(err)
			}
			return nil
		}
		f, err := src.Open(p)
		if err != nil {
			return Fatal(err)
		}
		defer f.Close()
		return i.copyIn(dst, f, info.Size())
	})
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) SetAttr(filename string, attr sdfs.DirectoryAttr, state bool) error {
	vol, ok := i.fs.Volume().(sdfs.Attributer)
	if !ok {
		return Fatalf("attributes not supported: %s", i.Filename)
	}
	err := vol.SetAttr(filename, attr, state)
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) GetAttr(filename string) (sdfs.DirectoryAttr, error) {
	vol, ok := i.fs.Volume().(attrGetter)
	if !ok {
		return 0, Fatalf("attributes not supported: %s", i.Filename)
	}
	attr, err := vol.GetAttr(filename)
	if err != nil {
		return 0, Fatal(err)
	}
	return attr, nil
}
