package sdfs_test

import (
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/rstms/sdfs"
	"github.com/rstms/sdfs/card"
	"github.com/rstms/sdfs/fat"
	"github.com/rstms/sdfs/format"
)

const testSectors = 16384

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

var testTime = time.Date(2021, 6, 15, 13, 45, 30, 0, time.UTC)

type harness struct {
	fs   *sdfs.FS
	host afero.Fs
	hook *test.Hook
	cfg  sdfs.Config
}

func newHarness(t *testing.T) *harness {
	host := afero.NewMemMapFs()
	c, err := card.Create(host, "/card.img", testSectors)
	require.Nil(t, err)
	require.Nil(t, c.Close())

	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	factory := &card.Factory{Fs: host, Path: "/card.img", Log: logger}
	formatter := format.New(factory)
	formatter.Log = logger
	cfg := sdfs.DefaultConfig()
	cfg.Clock = &fixedClock{now: testTime}
	return &harness{
		fs:   sdfs.New(factory, &fat.Mounter{Fs: host, Root: "/store"}, formatter, sdfs.WithLogger(logger)),
		host: host,
		hook: hook,
		cfg:  cfg,
	}
}

func testFS(t *testing.T) *harness {
	h := newHarness(t)
	require.Nil(t, h.fs.Format())
	require.Nil(t, h.fs.Begin(h.cfg))
	return h
}

func writeFile(t *testing.T, fs *sdfs.FS, path, data string) {
	f, err := fs.Open(path, sdfs.OMCreate|sdfs.OMTruncate, sdfs.AMWrite)
	require.Nil(t, err)
	n, err := f.Write([]byte(data))
	require.Nil(t, err)
	require.Equal(t, len(data), n)
	require.Nil(t, f.Close())
}

func readFile(t *testing.T, fs *sdfs.FS, path string) string {
	f, err := fs.Open(path, sdfs.OMDefault, sdfs.AMRead)
	require.Nil(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.Nil(t, err)
	return string(data)
}

func listDir(t *testing.T, fs *sdfs.FS, path string) []string {
	dir, err := fs.OpenDir(path)
	require.Nil(t, err)
	defer dir.Close()
	names := []string{}
	for dir.Next() {
		names = append(names, dir.FullName())
	}
	return names
}

func TestUnmounted(t *testing.T) {
	h := newHarness(t)
	fs := h.fs
	require.False(t, fs.Mounted())
	require.Nil(t, fs.Volume())

	_, err := fs.Open("/foo", sdfs.OMCreate, sdfs.AMWrite)
	require.Equal(t, sdfs.ErrNotMounted, err)
	_, err = fs.OpenDir("/")
	require.Equal(t, sdfs.ErrNotMounted, err)
	require.Equal(t, sdfs.ErrNotMounted, fs.Mkdir("/a"))
	require.Equal(t, sdfs.ErrNotMounted, fs.Rmdir("/a"))
	require.Equal(t, sdfs.ErrNotMounted, fs.Remove("/a"))
	require.Equal(t, sdfs.ErrNotMounted, fs.Rename("/a", "/b"))
	_, err = fs.Info64()
	require.Equal(t, sdfs.ErrNotMounted, err)
	_, err = fs.Info()
	require.Equal(t, sdfs.ErrNotMounted, err)

	require.False(t, fs.Exists("/"))
	require.Equal(t, sdfs.FATUnknown, fs.FATType())
	require.Zero(t, fs.BlocksPerCluster())
	require.Zero(t, fs.TotalClusters())
	require.Zero(t, fs.TotalBlocks())
	require.Zero(t, fs.ClusterSize())
	require.Zero(t, fs.Size())
	fs.End()
}

func TestBeginConfig(t *testing.T) {
	h := newHarness(t)
	err := h.fs.Begin(sdfs.Config{})
	require.True(t, errors.Is(err, sdfs.ErrConfig))
	require.False(t, h.fs.Mounted())

	require.NotNil(t, h.fs.Begin(h.cfg), "blank card mounts")
	require.False(t, h.fs.Mounted())

	cfg := sdfs.Config{SDIO: &sdfs.SDIOConfig{}, Clock: h.cfg.Clock}
	require.Nil(t, h.fs.Format())
	require.Nil(t, h.fs.Begin(cfg))
	require.True(t, h.fs.Mounted())
	require.Equal(t, sdfs.FAT16, h.fs.FATType())

	require.Nil(t, h.fs.Begin(h.cfg), "remount")
	h.fs.End()
	require.False(t, h.fs.Mounted())
}

func TestAutoFormat(t *testing.T) {
	h := newHarness(t)
	h.cfg.AutoFormat = true
	require.Nil(t, h.fs.Begin(h.cfg))
	require.True(t, h.fs.Mounted())
	warned := false
	for _, entry := range h.hook.AllEntries() {
		if entry.Level == log.WarnLevel && strings.Contains(entry.Message, "formatting") {
			warned = true
		}
	}
	require.True(t, warned)
	require.True(t, h.fs.Exists("/"))
}

func TestFormatWhileMounted(t *testing.T) {
	h := testFS(t)
	require.Equal(t, sdfs.ErrMounted, h.fs.Format())
	require.Equal(t, sdfs.ErrMounted, h.fs.Erase())
	h.fs.End()
	require.Nil(t, h.fs.Erase())
	require.NotNil(t, h.fs.Begin(h.cfg), "erased card mounts")

	bare := sdfs.New(nil, nil, nil)
	require.Equal(t, sdfs.ErrNoFormatter, bare.Format())
	require.Equal(t, sdfs.ErrNoFormatter, bare.Erase())
}

func TestFileRoundTrip(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	writeFile(t, fs, "/hello.txt", "hello, world")
	require.True(t, fs.Exists("/hello.txt"))
	require.True(t, fs.Exists("/HELLO.TXT"))

	f, err := fs.Open("/hello.txt", sdfs.OMDefault, sdfs.AMRead)
	require.Nil(t, err)
	require.Equal(t, "hello.txt", f.Name())
	require.Equal(t, "/hello.txt", f.FullName())
	require.True(t, f.IsFile())
	require.False(t, f.IsDirectory())
	require.Equal(t, int64(12), f.Size())
	require.Equal(t, testTime, f.LastWrite())
	require.Equal(t, testTime, f.CreationTime())

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.Nil(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
	require.Equal(t, int64(5), f.Position())

	_, err = f.Write([]byte("x"))
	require.NotNil(t, err, "read only handle")

	require.Nil(t, f.Close())
	require.Nil(t, f.Close(), "second close")
	_, err = f.Read(buf)
	require.Equal(t, sdfs.ErrNotOpen, err)
	require.Equal(t, "", f.Name())
	require.Equal(t, "", f.FullName())
	require.Zero(t, f.Size())
	require.Zero(t, f.Position())
	require.False(t, f.IsFile())
	require.True(t, f.LastWrite().IsZero())
	require.Equal(t, sdfs.ErrNotOpen, f.Seek(0, sdfs.SeekSet))
	require.Equal(t, sdfs.ErrNotOpen, f.Truncate(0))
	require.Nil(t, f.Flush())
}

func TestOpenModes(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	writeFile(t, fs, "/log", "one")

	f, err := fs.Open("/log", sdfs.OMAppend, sdfs.AMWrite)
	require.Nil(t, err)
	require.Equal(t, int64(3), f.Position())
	_, err = f.Write([]byte("two"))
	require.Nil(t, err)
	require.Nil(t, f.Close())
	require.Equal(t, "onetwo", readFile(t, fs, "/log"))

	f, err = fs.Open("/log", sdfs.OMTruncate, sdfs.AMRW)
	require.Nil(t, err)
	require.Zero(t, f.Size())
	_, err = f.Write([]byte("three"))
	require.Nil(t, err)
	require.Nil(t, f.Seek(0, sdfs.SeekSet))
	data, err := io.ReadAll(f)
	require.Nil(t, err)
	require.Equal(t, "three", string(data))
	require.Nil(t, f.Truncate(2))
	require.Equal(t, int64(2), f.Size())
	require.Nil(t, f.Close())
	require.Equal(t, "th", readFile(t, fs, "/log"))
}

func TestOpenErrors(t *testing.T) {
	h := testFS(t)
	fs := h.fs

	_, err := fs.Open("", sdfs.OMDefault, sdfs.AMRead)
	require.Equal(t, sdfs.ErrInvalidPath, err)
	_, err = fs.Open("/missing", sdfs.OMDefault, sdfs.AMRead)
	require.True(t, errors.Is(err, sdfs.ErrOpen))
	_, err = fs.Open("/missing/child", sdfs.OMDefault, sdfs.AMRead)
	require.True(t, errors.Is(err, sdfs.ErrOpen))

	require.Nil(t, fs.Mkdir("/dir"))
	_, err = fs.Open("/dir", sdfs.OMDefault, sdfs.AMWrite)
	require.True(t, errors.Is(err, sdfs.ErrOpen))

	d, err := fs.Open("/dir", sdfs.OMDefault, sdfs.AMRead)
	require.Nil(t, err)
	require.True(t, d.IsDirectory())
	require.False(t, d.IsFile())
	require.Equal(t, "dir", d.Name())
	require.Nil(t, d.Close())
}

func TestOpenCreatesParents(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	writeFile(t, fs, "/a/b/c.txt", "deep")
	require.True(t, fs.Exists("/a"))
	require.True(t, fs.Exists("/a/b"))
	require.Equal(t, "deep", readFile(t, fs, "/a/b/c.txt"))

	f, err := fs.Open("/a/b/c.txt", sdfs.OMDefault, sdfs.AMRead)
	require.Nil(t, err)
	require.Equal(t, "c.txt", f.Name())
	require.Equal(t, "/a/b/c.txt", f.FullName())
	require.Nil(t, f.Close())
}

func TestSeek(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	writeFile(t, fs, "/digits", "0123456789")

	f, err := fs.Open("/digits", sdfs.OMDefault, sdfs.AMRead)
	require.Nil(t, err)
	defer f.Close()

	buf := make([]byte, 1)
	read := func() string {
		_, err := f.Read(buf)
		require.Nil(t, err)
		return string(buf)
	}
	require.Nil(t, f.Seek(4, sdfs.SeekSet))
	require.Equal(t, "4", read())
	require.Nil(t, f.Seek(2, sdfs.SeekCur))
	require.Equal(t, "7", read())
	require.Nil(t, f.Seek(2, sdfs.SeekEnd))
	require.Equal(t, int64(8), f.Position())
	require.Equal(t, "8", read())
	require.Nil(t, f.Seek(0, sdfs.SeekEnd))
	require.Equal(t, int64(10), f.Position())

	require.Equal(t, sdfs.ErrInvalidSeek, f.Seek(0, sdfs.SeekMode(7)))
	require.NotNil(t, f.Seek(11, sdfs.SeekSet))
}

func TestClone(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	writeFile(t, fs, "/shared", "shared data")

	f, err := fs.Open("/shared", sdfs.OMDefault, sdfs.AMRead)
	require.Nil(t, err)
	g, err := f.Clone()
	require.Nil(t, err)
	require.Equal(t, "/shared", g.FullName())

	require.Nil(t, f.Close())
	require.Nil(t, g.Seek(7, sdfs.SeekSet))
	data, err := io.ReadAll(g)
	require.Nil(t, err)
	require.Equal(t, "data", string(data))
	require.Nil(t, g.Close())

	_, err = f.Clone()
	require.Equal(t, sdfs.ErrNotOpen, err)
}

func TestSync(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	f, err := fs.Open("/one", sdfs.OMCreate, sdfs.AMWrite)
	require.Nil(t, err)
	g, err := fs.Open("/two", sdfs.OMCreate, sdfs.AMWrite)
	require.Nil(t, err)
	_, err = f.Write([]byte("1"))
	require.Nil(t, err)
	_, err = g.Write([]byte("22"))
	require.Nil(t, err)

	require.Nil(t, fs.Sync(f, g))
	require.Equal(t, "1", readFile(t, fs, "/one"))
	require.Equal(t, "22", readFile(t, fs, "/two"))
	require.Nil(t, f.Close())
	require.Nil(t, g.Close())
	require.Nil(t, fs.Sync(f))
}

// abandonWrite leaves an unclosed handle with pending data for the
// collector.
func abandonWrite(t *testing.T, fs *sdfs.FS, path, data string) {
	f, err := fs.Open(path, sdfs.OMCreate|sdfs.OMTruncate, sdfs.AMWrite)
	require.Nil(t, err)
	_, err = f.Write([]byte(data))
	require.Nil(t, err)
}

func TestUnclosedFile(t *testing.T) {
	h := testFS(t)
	later := time.Date(2022, 3, 4, 5, 6, 8, 0, time.UTC)
	h.cfg.Clock.(*fixedClock).now = later
	abandonWrite(t, h.fs, "/dropped.txt", "left open")

	require.Eventually(t, func() bool {
		runtime.GC()
		f, err := h.fs.Open("/dropped.txt", sdfs.OMDefault, sdfs.AMRead)
		if err != nil {
			return false
		}
		defer f.Close()
		return f.LastWrite().Equal(later)
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "left open", readFile(t, h.fs, "/dropped.txt"))
}

func TestOpenDir(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	writeFile(t, fs, "/abc", "a")
	writeFile(t, fs, "/abcdef", "ab")
	writeFile(t, fs, "/xyz", "xyz")
	writeFile(t, fs, "/sub/child", "child")

	require.Equal(t, []string{"abc", "abcdef", "xyz", "sub"}, listDir(t, fs, "/"))
	require.Equal(t, []string{"abc", "abcdef", "xyz", "sub"}, listDir(t, fs, ""))
	require.Equal(t, []string{"abc", "abcdef"}, listDir(t, fs, "/abc"))
	require.Equal(t, []string{"/sub/child"}, listDir(t, fs, "/sub"))
	require.Equal(t, []string{"/sub/child"}, listDir(t, fs, "/sub/"))
	require.Equal(t, []string{"/sub/child"}, listDir(t, fs, "/sub/ch"))
	require.Empty(t, listDir(t, fs, "/sub/none"))
	require.Empty(t, listDir(t, fs, "/q"))

	_, err := fs.OpenDir("/nodir/x")
	require.True(t, errors.Is(err, sdfs.ErrResolve))
	_, err = fs.OpenDir("/abc/x")
	require.True(t, errors.Is(err, sdfs.ErrResolve))
}

func TestDirCursor(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	writeFile(t, fs, "/first.txt", "1")
	writeFile(t, fs, "/A Long Name.txt", "long")
	require.Nil(t, fs.Mkdir("/docs"))

	dir, err := fs.OpenDir("/")
	require.Nil(t, err)
	defer dir.Close()

	require.Equal(t, "", dir.FileName())
	require.Equal(t, -1, dir.DirIndex())
	_, err = dir.OpenFile(sdfs.OMDefault, sdfs.AMRead)
	require.Equal(t, sdfs.ErrNoEntry, err)

	require.True(t, dir.Next())
	require.Equal(t, "first.txt", dir.FileName())
	require.Equal(t, "first.txt", dir.FullName())
	require.Equal(t, int64(1), dir.FileSize())
	require.True(t, dir.IsFile())
	require.False(t, dir.IsDirectory())
	require.False(t, dir.IsHidden())
	require.Equal(t, testTime, dir.FileTime())
	require.Equal(t, testTime, dir.FileCreationTime())
	require.GreaterOrEqual(t, dir.DirIndex(), 0)

	f, err := dir.OpenFile(sdfs.OMDefault, sdfs.AMRead)
	require.Nil(t, err)
	require.Equal(t, "first.txt", f.Name())
	data, err := io.ReadAll(f)
	require.Nil(t, err)
	require.Equal(t, "1", string(data))
	require.Nil(t, f.Close())

	require.True(t, dir.Next())
	require.Equal(t, "A Long Name.txt", dir.FileName())
	f, err = dir.OpenFile(sdfs.OMAppend, sdfs.AMWrite)
	require.Nil(t, err)
	_, err = f.Write([]byte("er"))
	require.Nil(t, err)
	require.Nil(t, f.Close())
	require.Equal(t, "longer", readFile(t, fs, "/A Long Name.txt"))

	require.True(t, dir.Next())
	require.Equal(t, "docs", dir.FileName())
	require.True(t, dir.IsDirectory())
	require.Zero(t, dir.FileSize())

	require.False(t, dir.Next())
	require.Equal(t, "", dir.FileName())
	require.Zero(t, dir.FileSize())
	require.True(t, dir.FileTime().IsZero())
	require.False(t, dir.IsDirectory())
	require.False(t, dir.Next())

	require.Nil(t, dir.Rewind())
	require.Equal(t, "", dir.FileName())
	require.True(t, dir.Next())
	require.Equal(t, "first.txt", dir.FileName())

	require.Nil(t, dir.Close())
	require.Nil(t, dir.Close())
	require.False(t, dir.Next())
	require.Equal(t, sdfs.ErrNotOpen, dir.Rewind())
}

func TestMkdirRenameRemove(t *testing.T) {
	h := testFS(t)
	fs := h.fs
	require.Nil(t, fs.Mkdir("/x/y/z"))
	require.True(t, fs.Exists("/x/y/z"))
	require.NotNil(t, fs.Rmdir("/x/y"), "not empty")
	require.Nil(t, fs.Rmdir("/x/y/z"))
	require.False(t, fs.Exists("/x/y/z"))

	writeFile(t, fs, "/x/y/file", "data")
	require.Nil(t, fs.Rename("/x/y", "/x/w"))
	require.False(t, fs.Exists("/x/y"))
	require.Equal(t, "data", readFile(t, fs, "/x/w/file"))

	require.Nil(t, fs.Rename("/x/w/file", "/moved"))
	require.Equal(t, "data", readFile(t, fs, "/moved"))
	writeFile(t, fs, "/other", "other")
	require.NotNil(t, fs.Rename("/moved", "/other"), "target exists")

	require.NotNil(t, fs.Remove("/x"), "directory")
	require.Nil(t, fs.Remove("/moved"))
	require.False(t, fs.Exists("/moved"))
	require.NotNil(t, fs.Remove("/moved"))
}

func TestInfo(t *testing.T) {
	h := testFS(t)
	fs := h.fs

	require.Equal(t, uint32(2), fs.BlocksPerCluster())
	require.Equal(t, uint32(1024), fs.ClusterSize())
	clusters := fs.TotalClusters()
	require.NotZero(t, clusters)
	require.Equal(t, uint64(clusters)*2, fs.TotalBlocks())
	require.Equal(t, uint64(clusters)*1024, fs.Size())

	before, err := fs.Info64()
	require.Nil(t, err)
	require.Equal(t, fs.Size(), before.TotalBytes)
	require.Equal(t, uint32(1024), before.BlockSize)
	require.Equal(t, uint32(999), before.MaxOpenFiles)
	require.Equal(t, uint32(255), before.MaxPathLength)
	require.Zero(t, before.UsedBytes)

	writeFile(t, fs, "/data", strings.Repeat("x", 3000))
	after, err := fs.Info64()
	require.Nil(t, err)
	require.Equal(t, uint64(3*1024), after.UsedBytes)

	info, err := fs.Info()
	require.Nil(t, err)
	require.Equal(t, uint32(after.TotalBytes), info.TotalBytes)
	require.Equal(t, uint32(after.UsedBytes), info.UsedBytes)
	for _, entry := range h.hook.AllEntries() {
		require.NotEqual(t, log.WarnLevel, entry.Level)
	}
}

type bigCard struct{}

func (bigCard) SectorCount() uint32              { return 0xF0000000 }
func (bigCard) ErrorCode() uint8                 { return 0 }
func (bigCard) ReadSector(uint32, []byte) error  { return nil }
func (bigCard) WriteSector(uint32, []byte) error { return nil }
func (bigCard) Erase(uint32, uint32) error       { return nil }

type bigFactory struct{}

func (bigFactory) NewSDIOCard(*sdfs.SDIOConfig) (sdfs.Card, error) { return bigCard{}, nil }
func (bigFactory) NewSPICard(*sdfs.SPIConfig) (sdfs.Card, error)   { return bigCard{}, nil }

type bigVolume struct {
	sdfs.Volume
}

func (bigVolume) SectorsPerCluster() uint32         { return 64 }
func (bigVolume) ClusterCount() uint32              { return 2000000 }
func (bigVolume) FreeClusterCount() (uint32, error) { return 1500000, nil }
func (bigVolume) FATType() sdfs.FATType             { return sdfs.ExFAT }
func (bigVolume) Card() sdfs.Card                   { return bigCard{} }

type bigMounter struct{}

func (bigMounter) Mount(sdfs.Card, uint8, sdfs.Clock) (sdfs.Volume, error) {
	return bigVolume{}, nil
}

func TestInfoOverflow(t *testing.T) {
	logger, hook := test.NewNullLogger()
	fs := sdfs.New(bigFactory{}, bigMounter{}, nil, sdfs.WithLogger(logger))
	require.Nil(t, fs.Begin(sdfs.DefaultConfig()))
	require.Equal(t, sdfs.ExFAT, fs.FATType())

	info64, err := fs.Info64()
	require.Nil(t, err)
	require.Equal(t, uint64(2000000)*32768, info64.TotalBytes)
	require.Equal(t, uint64(500000)*32768, info64.UsedBytes)
	require.Empty(t, hook.AllEntries())

	info, err := fs.Info()
	require.Nil(t, err)
	require.Equal(t, uint32(info64.TotalBytes), info.TotalBytes)
	require.Equal(t, uint32(info64.UsedBytes), info.UsedBytes)
	require.Equal(t, uint32(32768), info.BlockSize)
	require.NotNil(t, hook.LastEntry())
	require.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	require.Contains(t, hook.LastEntry().Message, "overflow")
	fs.End()
}
