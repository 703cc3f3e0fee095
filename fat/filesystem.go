package fat

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/rstms/sdfs"
)

// Mounter mounts FAT and exFAT volumes whose contents live in an afero tree
// store. Each volume gets its own subtree named after its serial number, so
// a reformatted card mounts empty.
type Mounter struct {
	Fs   afero.Fs
	Root string
}

var _ sdfs.Mounter = (*Mounter)(nil)

func (m *Mounter) Mount(card sdfs.Card, part uint8, clock sdfs.Clock) (sdfs.Volume, error) {
	if part != 0 {
		return nil, Fatalf("partition %d not supported", part)
	}
	bs, err := DecodeBootSector(card)
	if err != nil {
		return nil, Fatal(err)
	}
	if bs.TotalSectors > uint64(card.SectorCount()) {
		return nil, Fatalf("volume of %d sectors exceeds card of %d sectors", bs.TotalSectors, card.SectorCount())
	}
	root := m.Root
	if root == "" {
		root = "/"
	}
	root = path.Join(root, fmt.Sprintf("%08X", bs.VolumeID))
	if err := m.Fs.MkdirAll(root, 0755); err != nil {
		return nil, Fatal(err)
	}
	return New(card, bs, afero.NewBasePathFs(m.Fs, root), clock), nil
}

// FileSystem is a mounted volume.
type FileSystem struct {
	bs    *BootSector
	card  sdfs.Card
	tree  afero.Fs
	clock sdfs.Clock
	dirs  map[string]*Directory
}

var (
	_ sdfs.Volume     = (*FileSystem)(nil)
	_ sdfs.Attributer = (*FileSystem)(nil)
)

// New returns a FileSystem serving tree with the geometry of bs.
func New(card sdfs.Card, bs *BootSector, tree afero.Fs, clock sdfs.Clock) *FileSystem {
	if clock == nil {
		clock = sdfs.SystemClock{}
	}
	return &FileSystem{
		bs:    bs,
		card:  card,
		tree:  tree,
		clock: clock,
		dirs:  make(map[string]*Directory),
	}
}

func (f *FileSystem) BootSector() *BootSector {
	return f.bs
}

func (f *FileSystem) RootDir() *Directory {
	return f.directory("/", nil)
}

func (f *FileSystem) directory(treePath string, entry *DirectoryEntry) *Directory {
	if dir, ok := f.dirs[treePath]; ok {
		return dir
	}
	dir := &Directory{fs: f, path: treePath, entry: entry}
	f.dirs[treePath] = dir
	return dir
}

// forget drops cached directories at or below treePath.
func (f *FileSystem) forget(treePath string) {
	for p := range f.dirs {
		if p == treePath || strings.HasPrefix(p, treePath+"/") {
			delete(f.dirs, p)
		}
	}
}

// repath re-keys cached directories at or below oldPath under newPath.
// Entries and open handles find their tree paths through these directories.
func (f *FileSystem) repath(oldPath, newPath string) {
	moved := make(map[string]*Directory)
	for p, dir := range f.dirs {
		if p == oldPath || strings.HasPrefix(p, oldPath+"/") {
			delete(f.dirs, p)
			dir.path = newPath + strings.TrimPrefix(p, oldPath)
			moved[dir.path] = dir
		}
	}
	for p, dir := range moved {
		f.dirs[p] = dir
	}
}

func splitPath(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// lookup walks p one component at a time. It returns a nil entry for the
// root directory.
func (f *FileSystem) lookup(p string) (*DirectoryEntry, error) {
	dir := f.RootDir()
	var entry *DirectoryEntry
	for i, name := range splitPath(p) {
		if i > 0 {
			if !entry.IsDir() {
				return nil, Fatalf("not a directory: %s", entry.Path())
			}
			dir = f.directory(entry.Path(), entry)
		}
		child, err := dir.Entry(name)
		if err != nil {
			return nil, Fatal(err)
		}
		if child == nil {
			return nil, Fatalf("no such file or directory: %s", p)
		}
		entry = child
	}
	return entry, nil
}

// parent returns the directory that holds the final component of p, along
// with that component.
func (f *FileSystem) parent(p string) (*Directory, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, "", Fatalf("root has no parent")
	}
	dir, err := f.dirOf(path.Join(append([]string{"/"}, parts[:len(parts)-1]...)...))
	if err != nil {
		return nil, "", Fatal(err)
	}
	return dir, parts[len(parts)-1], nil
}

func (f *FileSystem) dirOf(p string) (*Directory, error) {
	entry, err := f.lookup(p)
	if err != nil {
		return nil, Fatal(err)
	}
	if entry == nil {
		return f.RootDir(), nil
	}
	if !entry.IsDir() {
		return nil, Fatalf("not a directory: %s", p)
	}
	return f.directory(entry.Path(), entry), nil
}

func (f *FileSystem) Exists(p string) bool {
	_, err := f.lookup(p)
	return err == nil
}

func (f *FileSystem) Open(p string, flags sdfs.OFlag) (sdfs.Entry, error) {
	if len(splitPath(p)) == 0 {
		return f.open(nil, flags)
	}
	dir, name, err := f.parent(p)
	if err != nil {
		return nil, Fatal(err)
	}
	entry, err := dir.Entry(name)
	if err != nil {
		return nil, Fatal(err)
	}
	if entry == nil {
		if flags&sdfs.OCreat == 0 {
			return nil, Fatalf("no such file or directory: %s", p)
		}
		entry, err = f.createFile(dir, name)
		if err != nil {
			return nil, Fatal(err)
		}
	}
	return f.open(entry, flags)
}

func (f *FileSystem) createFile(dir *Directory, name string) (*DirectoryEntry, error) {
	if !validName(name) {
		return nil, Fatalf("invalid name: %s", name)
	}
	if err := dir.ensureLoaded(); err != nil {
		return nil, Fatal(err)
	}
	treePath := path.Join(dir.path, name)
	file, err := f.tree.OpenFile(treePath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, Fatal(err)
	}
	if err := file.Close(); err != nil {
		return nil, Fatal(err)
	}
	now := f.clock.Now()
	if err := f.tree.Chtimes(treePath, now, now); err != nil {
		return nil, Fatal(err)
	}
	entry, err := dir.addEntry(name, sdfs.AttrArchive)
	if err != nil {
		f.tree.Remove(treePath)
		return nil, Fatal(err)
	}
	return entry, nil
}

// open keeps a failed open from becoming a non-nil Entry.
func (f *FileSystem) open(entry *DirectoryEntry, flags sdfs.OFlag) (sdfs.Entry, error) {
	file, err := f.openEntry(entry, flags)
	if err != nil {
		return nil, Fatal(err)
	}
	return file, nil
}

func (f *FileSystem) openEntry(entry *DirectoryEntry, flags sdfs.OFlag) (*File, error) {
	if entry == nil || entry.IsDir() {
		if flags&(sdfs.OWrite|sdfs.OTrunc) != 0 {
			return nil, Fatalf("directory opened for writing")
		}
		dir := f.RootDir()
		if entry != nil {
			dir = f.directory(entry.Path(), entry)
		}
		return &File{fs: f, entry: entry, dir: dir, flags: flags}, nil
	}

	treePath := entry.Path()
	mode := os.O_RDONLY
	if flags&sdfs.OWrite != 0 {
		if entry.IsReadOnly() {
			return nil, Fatalf("read-only file: %s", treePath)
		}
		mode = os.O_RDWR
	}
	data, err := f.tree.OpenFile(treePath, mode, 0644)
	if err != nil {
		return nil, Fatal(err)
	}
	file := &File{fs: f, entry: entry, flags: flags, data: data}
	if flags&sdfs.OWrite != 0 && flags&sdfs.OTrunc != 0 {
		if err := data.Truncate(0); err != nil {
			data.Close()
			return nil, Fatal(err)
		}
		file.dirty = true
	}
	if flags&sdfs.OAtEnd != 0 {
		if _, err := data.Seek(0, io.SeekEnd); err != nil {
			data.Close()
			return nil, Fatal(err)
		}
	}
	return file, nil
}

func (f *FileSystem) OpenIndex(dir sdfs.Entry, index int, flags sdfs.OFlag) (sdfs.Entry, error) {
	parent, ok := dir.(*File)
	if !ok || parent.dir == nil {
		return nil, Fatalf("not an open directory")
	}
	entry, err := parent.dir.Slot(index)
	if err != nil {
		return nil, Fatal(err)
	}
	if entry == nil {
		return nil, Fatalf("directory index %d is free", index)
	}
	return f.open(entry, flags)
}

func (f *FileSystem) Mkdir(p string, parents bool) error {
	parts := splitPath(p)
	if len(parts) == 0 {
		return Fatalf("root exists")
	}
	dir := f.RootDir()
	for i, name := range parts {
		last := i == len(parts)-1
		entry, err := dir.Entry(name)
		if err != nil {
			return Fatal(err)
		}
		if entry != nil {
			if last {
				return Fatalf("file exists: %s", p)
			}
			if !entry.IsDir() {
				return Fatalf("not a directory: %s", entry.Path())
			}
			dir = f.directory(entry.Path(), entry)
			continue
		}
		if !last && !parents {
			return Fatalf("no such directory: %s", path.Join(dir.path, name))
		}
		if !validName(name) {
			return Fatalf("invalid name: %s", name)
		}
		treePath := path.Join(dir.path, name)
		if err := f.tree.Mkdir(treePath, 0755); err != nil {
			return Fatal(err)
		}
		now := f.clock.Now()
		if err := f.tree.Chtimes(treePath, now, now); err != nil {
			return Fatal(err)
		}
		entry, err = dir.addEntry(name, sdfs.AttrDirectory)
		if err != nil {
			f.tree.Remove(treePath)
			return Fatal(err)
		}
		dir = f.directory(treePath, entry)
		dir.loaded = true
	}
	return nil
}

func (f *FileSystem) Rmdir(p string) error {
	entry, err := f.lookup(p)
	if err != nil {
		return Fatal(err)
	}
	if entry == nil {
		return Fatalf("cannot remove root")
	}
	if !entry.IsDir() {
		return Fatalf("not a directory: %s", p)
	}
	empty, err := f.directory(entry.Path(), entry).Empty()
	if err != nil {
		return Fatal(err)
	}
	if !empty {
		return Fatalf("directory not empty: %s", p)
	}
	if err := f.tree.Remove(entry.Path()); err != nil {
		return Fatal(err)
	}
	entry.dir.removeEntry(entry)
	f.forget(entry.Path())
	return nil
}

func (f *FileSystem) Remove(p string) error {
	entry, err := f.lookup(p)
	if err != nil {
		return Fatal(err)
	}
	if entry == nil || entry.IsDir() {
		return Fatalf("not a file: %s", p)
	}
	if entry.IsReadOnly() {
		return Fatalf("read-only file: %s", p)
	}
	if err := f.tree.Remove(entry.Path()); err != nil {
		return Fatal(err)
	}
	entry.dir.removeEntry(entry)
	return nil
}

// Rename moves from to a new path. The target must not exist.
func (f *FileSystem) Rename(from, to string) error {
	entry, err := f.lookup(from)
	if err != nil {
		return Fatal(err)
	}
	if entry == nil {
		return Fatalf("cannot rename root")
	}
	if f.Exists(to) {
		return Fatalf("file exists: %s", to)
	}
	dir, name, err := f.parent(to)
	if err != nil {
		return Fatal(err)
	}
	if !validName(name) {
		return Fatalf("invalid name: %s", name)
	}
	if err := dir.ensureLoaded(); err != nil {
		return Fatal(err)
	}
	oldPath := entry.Path()
	newPath := path.Join(dir.path, name)
	if entry.IsDir() && strings.HasPrefix(newPath+"/", oldPath+"/") {
		return Fatalf("cannot move %s into itself", from)
	}

	if err := f.move(oldPath, newPath, entry.IsDir()); err != nil {
		return Fatal(err)
	}
	entry.dir.removeEntry(entry)
	if err := dir.insert(entry, name); err != nil {
		return Fatal(err)
	}
	if entry.IsDir() {
		f.repath(oldPath, newPath)
	}
	return nil
}

// move renames a tree path. Directories are moved child by child since not
// every afero backend carries descendants along on rename.
func (f *FileSystem) move(oldPath, newPath string, isDir bool) error {
	if !isDir {
		return f.tree.Rename(oldPath, newPath)
	}
	info, err := f.tree.Stat(oldPath)
	if err != nil {
		return Fatal(err)
	}
	if err := f.tree.Mkdir(newPath, info.Mode().Perm()); err != nil {
		return Fatal(err)
	}
	children, err := afero.ReadDir(f.tree, oldPath)
	if err != nil {
		return Fatal(err)
	}
	for _, child := range children {
		err := f.move(path.Join(oldPath, child.Name()), path.Join(newPath, child.Name()), child.IsDir())
		if err != nil {
			return Fatal(err)
		}
	}
	if err := f.tree.Chtimes(newPath, info.ModTime(), info.ModTime()); err != nil {
		return Fatal(err)
	}
	return f.tree.Remove(oldPath)
}

func (f *FileSystem) SetAttr(p string, attr sdfs.DirectoryAttr, state bool) error {
	entry, err := f.lookup(p)
	if err != nil {
		return Fatal(err)
	}
	if entry == nil {
		return Fatalf("cannot set attributes of root")
	}
	return entry.SetAttr(attr, state)
}

// GetAttr returns the attribute byte of the entry at p.
func (f *FileSystem) GetAttr(p string) (sdfs.DirectoryAttr, error) {
	entry, err := f.lookup(p)
	if err != nil {
		return 0, Fatal(err)
	}
	if entry == nil {
		return sdfs.AttrDirectory, nil
	}
	return entry.attr, nil
}

func (f *FileSystem) SectorsPerCluster() uint32 {
	return f.bs.SectorsPerCluster
}

func (f *FileSystem) ClusterCount() uint32 {
	return f.bs.ClusterCount
}

// FreeClusterCount charges every file its size rounded up to whole clusters
// and every directory below the root one cluster.
func (f *FileSystem) FreeClusterCount() (uint32, error) {
	clusterBytes := int64(f.bs.SectorsPerCluster) * sdfs.SectorSize
	var used int64
	err := afero.Walk(f.tree, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != "/" {
				used++
			}
			return nil
		}
		used += (info.Size() + clusterBytes - 1) / clusterBytes
		return nil
	})
	if err != nil {
		return 0, Fatal(err)
	}
	if used >= int64(f.bs.ClusterCount) {
		return 0, nil
	}
	return f.bs.ClusterCount - uint32(used), nil
}

func (f *FileSystem) FATType() sdfs.FATType {
	return f.bs.FATType
}

func (f *FileSystem) Card() sdfs.Card {
	return f.card
}
