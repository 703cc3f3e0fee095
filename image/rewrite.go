package image

import (
	"fmt"
	"path"

	"github.com/spf13/afero"

	"github.com/rstms/sdfs"
)

const stageDir = "/stage"

// stage copies the contents of an image into a memory filesystem and
// returns the records needed to restore attributes afterwards.
func (i *Image) stage() (afero.Fs, []FileRecord, error) {
	records, err := i.ScanFiles()
	if err != nil {
		return nil, nil, Fatal(err)
	}
	mem := afero.NewMemMapFs()
	err = mem.MkdirAll(stageDir, 0700)
	if err != nil {
		return nil, nil, Fatal(err)
	}
	for _, record := range records {
		dst := path.Join(stageDir, record.Name)
		if record.Dir {
			err := mem.Mkdir(dst, 0700)
			if err != nil {
				return nil, nil, Fatal(err)
			}
			continue
		}
		data, err := i.ReadFile(record.Name)
		if err != nil {
			return nil, nil, Fatal(err)
		}
		err = afero.WriteFile(mem, dst, data, 0600)
		if err != nil {
			return nil, nil, Fatal(err)
		}
	}
	return mem, records, nil
}

func (i *Image) restore(mem afero.Fs, records []FileRecord) error {
	err := i.importFrom(mem, stageDir)
	if err != nil {
		return Fatal(err)
	}
	for _, record := range records {
		if record.System {
			err := i.SetAttr(record.Name, sdfs.AttrSystem, true)
			if err != nil {
				return Fatal(err)
			}
		}
		if record.Hidden {
			err := i.SetAttr(record.Name, sdfs.AttrHidden, true)
			if err != nil {
				return Fatal(err)
			}
		}
		if record.ReadOnly {
			err := i.SetAttr(record.Name, sdfs.AttrReadOnly, true)
			if err != nil {
				return Fatal(err)
			}
		}
	}
	return nil
}

// Reformat lays the volume out anew with a fresh serial number, keeping
// its files, directories and attributes.
func (i *Image) Reformat() error {
	label, err := i.VolumeLabel()
	if err != nil {
		return Fatal(err)
	}
	oem, err := i.OEMName()
	if err != nil {
		return Fatal(err)
	}
	bs, err := i.bootSector()
	if err != nil {
		return Fatal(err)
	}
	oldTree := path.Join(i.root, fmt.Sprintf("%08X", bs.VolumeID))
	mem, records, err := i.stage()
	if err != nil {
		return Fatal(err)
	}
	i.fs.End()
	err = i.format(label, oem)
	if err != nil {
		return Fatal(err)
	}
	err = i.fs.Begin(i.cfg)
	if err != nil {
		return Fatal(err)
	}
	err = i.store.RemoveAll(oldTree)
	if err != nil {
		return Fatal(err)
	}
	return i.restore(mem, records)
}

// RewriteImage copies the contents of srcFile into a new image of size
// bytes, adding the host files in extra to its root directory.
func RewriteImage(dstFile, srcFile string, size int64, extra []string, opts *Options) error {
	src, err := OpenImage(srcFile, opts)
	if err != nil {
		return Fatal(err)
	}
	defer src.Close()

	volume, err := src.VolumeLabel()
	if err != nil {
		return Fatal(err)
	}
	oem, err := src.OEMName()
	if err != nil {
		return Fatal(err)
	}
	mem, records, err := src.stage()
	if err != nil {
		return Fatal(err)
	}

	if size == 0 {
		info, err := src.host.Stat(srcFile)
		if err != nil {
			return Fatal(err)
		}
		size = info.Size()
		for _, filename := range extra {
			info, err := src.host.Stat(filename)
			if err != nil {
				return Fatal(err)
			}
			size += info.Size() + int64(PAD_BYTES)
		}
	}

	var dstOpts Options
	if opts != nil {
		dstOpts = *opts
		dstOpts.Root = ""
	}
	dst, err := CreateImage(dstFile, volume, oem, size, &dstOpts)
	if err != nil {
		return Fatal(err)
	}
	defer dst.Close()
	err = dst.restore(mem, records)
	if err != nil {
		return Fatal(err)
	}
	for _, filename := range extra {
		err := dst.AddFile(path.Join("/", path.Base(filename)), filename)
		if err != nil {
			return Fatal(err)
		}
	}
	return nil
}
