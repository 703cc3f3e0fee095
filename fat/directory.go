package fat

import (
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/rstms/sdfs"
)

// Directory holds the slots of one directory on the volume. Slots are
// materialized lazily from the tree store and keep their position for the
// life of the mount; a removed entry leaves a nil tombstone so the index of
// every later slot is stable.
type Directory struct {
	fs     *FileSystem
	path   string
	entry  *DirectoryEntry
	slots  []*DirectoryEntry
	loaded bool
}

// DirectoryEntry represents a single file or folder within a directory.
type DirectoryEntry struct {
	dir       *Directory
	name      string
	shortName string
	attr      sdfs.DirectoryAttr
	index     int
	lfn       bool

	createDate uint16
	createTime uint16
}

func (d *Directory) load() error {
	infos, err := afero.ReadDir(d.fs.tree, d.path)
	if err != nil {
		return Fatal(err)
	}
	present := make(map[string]os.FileInfo, len(infos))
	for _, info := range infos {
		present[info.Name()] = info
	}
	for i, slot := range d.slots {
		if slot == nil {
			continue
		}
		if _, ok := present[slot.name]; ok {
			delete(present, slot.name)
		} else {
			d.slots[i] = nil
		}
	}
	for _, info := range infos {
		if _, ok := present[info.Name()]; !ok || !validName(info.Name()) {
			continue
		}
		// case-only variants from a case-sensitive store shadow each other
		if d.find(info.Name()) != nil {
			continue
		}
		attr := sdfs.AttrArchive
		if info.IsDir() {
			attr = sdfs.AttrDirectory
		}
		if info.Mode().Perm()&0200 == 0 {
			attr |= sdfs.AttrReadOnly
		}
		date, tm, _ := sdfs.DateTime(info.ModTime())
		if _, err := d.appendEntry(info.Name(), attr, date, tm); err != nil {
			return Fatal(err)
		}
	}
	d.loaded = true
	return nil
}

func (d *Directory) ensureLoaded() error {
	if d.loaded {
		return nil
	}
	return d.load()
}

// Entries returns the live slots in slot order.
func (d *Directory) Entries() ([]*DirectoryEntry, error) {
	if err := d.ensureLoaded(); err != nil {
		return nil, Fatal(err)
	}
	result := make([]*DirectoryEntry, 0, len(d.slots))
	for _, slot := range d.slots {
		if slot != nil {
			result = append(result, slot)
		}
	}
	return result, nil
}

// Entry finds a child by long or short name, ignoring case.
func (d *Directory) Entry(name string) (*DirectoryEntry, error) {
	if err := d.ensureLoaded(); err != nil {
		return nil, Fatal(err)
	}
	return d.find(name), nil
}

func (d *Directory) find(name string) *DirectoryEntry {
	for _, slot := range d.slots {
		if slot == nil {
			continue
		}
		if strings.EqualFold(slot.name, name) || strings.EqualFold(slot.shortName, name) {
			return slot
		}
	}
	return nil
}

// Slot returns the entry at a positional index, or nil for a tombstone.
func (d *Directory) Slot(index int) (*DirectoryEntry, error) {
	if err := d.ensureLoaded(); err != nil {
		return nil, Fatal(err)
	}
	if index < 0 || index >= len(d.slots) {
		return nil, Fatalf("directory index out of range: %d", index)
	}
	return d.slots[index], nil
}

func (d *Directory) Empty() (bool, error) {
	entries, err := d.Entries()
	if err != nil {
		return false, Fatal(err)
	}
	return len(entries) == 0, nil
}

func (d *Directory) addEntry(name string, attr sdfs.DirectoryAttr) (*DirectoryEntry, error) {
	if err := d.ensureLoaded(); err != nil {
		return nil, Fatal(err)
	}
	date, tm, _ := sdfs.DateTime(d.fs.clock.Now())
	return d.appendEntry(name, attr, date, tm)
}

func (d *Directory) appendEntry(name string, attr sdfs.DirectoryAttr, createDate, createTime uint16) (*DirectoryEntry, error) {
	entry := &DirectoryEntry{
		attr:       attr,
		createDate: createDate,
		createTime: createTime,
	}
	if err := d.insert(entry, name); err != nil {
		return nil, Fatal(err)
	}
	return entry, nil
}

// insert places entry in a new slot at the end of d under name. A renamed
// entry is re-homed this way so open files keep following it.
func (d *Directory) insert(entry *DirectoryEntry, name string) error {
	if !validName(name) {
		return Fatalf("invalid name: %s", name)
	}

	usedNames := make([]string, 0, len(d.slots))
	for _, slot := range d.slots {
		if slot == nil {
			continue
		}
		if strings.EqualFold(slot.name, name) {
			return Fatalf("name already exists: %s", name)
		}
		usedNames = append(usedNames, slot.shortName)
	}

	shortName, err := generateShortName(name, usedNames)
	if err != nil {
		return Fatal(err)
	}

	entry.dir = d
	entry.name = name
	entry.shortName = shortName
	entry.index = len(d.slots)
	entry.lfn = !fits83(name)
	d.slots = append(d.slots, entry)
	return nil
}

func (d *Directory) removeEntry(entry *DirectoryEntry) {
	if entry.index < len(d.slots) && d.slots[entry.index] == entry {
		d.slots[entry.index] = nil
	}
}

func (e *DirectoryEntry) Path() string {
	return path.Join(e.dir.path, e.name)
}

func (e *DirectoryEntry) IsDir() bool {
	return e.attr&sdfs.AttrDirectory == sdfs.AttrDirectory
}

func (e *DirectoryEntry) Name() string {
	return e.name
}

// ShortName returns the 8.3 name. Names that already fit 8.3 are returned
// as stored.
func (e *DirectoryEntry) ShortName() string {
	if !e.lfn {
		return e.name
	}
	return e.shortName
}

func (e *DirectoryEntry) Attr() sdfs.DirectoryAttr {
	return e.attr
}

func (e *DirectoryEntry) Index() int {
	return e.index
}

// SetAttr sets or clears one of the user settable attributes. Read-only is
// also carried by the write permission bit of the stored file.
func (e *DirectoryEntry) SetAttr(attr sdfs.DirectoryAttr, state bool) error {
	switch attr {
	case sdfs.AttrHidden:
	case sdfs.AttrSystem:
	case sdfs.AttrReadOnly:
		mode := os.FileMode(0644)
		if e.IsDir() {
			mode = 0755
		}
		if state {
			mode &^= 0222
		}
		if err := e.dir.fs.tree.Chmod(e.Path(), mode); err != nil {
			return Fatal(err)
		}
	default:
		return Fatalf("unsettable attribute")
	}
	if state {
		e.attr |= attr
	} else {
		e.attr &^= attr
	}
	return nil
}

func (e *DirectoryEntry) IsReadOnly() bool {
	return e.attr&sdfs.AttrReadOnly == sdfs.AttrReadOnly
}

func (e *DirectoryEntry) IsSystem() bool {
	return e.attr&sdfs.AttrSystem == sdfs.AttrSystem
}

func (e *DirectoryEntry) IsHidden() bool {
	return e.attr&sdfs.AttrHidden == sdfs.AttrHidden
}
