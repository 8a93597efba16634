package collection

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/fulldump/textdb/schema"
)

// archive writes the data file and both journals as a zstd compressed tar.
func (c *Collection) archive(filename string) error {

	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	defer os.Remove(tmp)

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("backup: %w", err)
	}
	tw := tar.NewWriter(zw)

	files := 0
	for _, name := range []string{c.filename, c.logname, c.backupname} {
		added, err := addFile(tw, name)
		if err != nil {
			zw.Close()
			f.Close()
			return fmt.Errorf("backup %s: %w", filepath.Base(name), err)
		}
		if added {
			files++
		}
	}

	err = tw.Close()
	if zerr := zw.Close(); err == nil {
		err = zerr
	}
	if ferr := f.Close(); err == nil {
		err = ferr
	}
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	c.logger.Info("collection backup", "to", filename, "files", files)
	return nil
}

func addFile(tw *tar.Writer, filename string) (bool, error) {
	f, err := os.Open(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	err = tw.WriteHeader(&tar.Header{
		Name:    filepath.Base(filename),
		Mode:    0666,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
	if err != nil {
		return false, err
	}
	_, err = io.CopyN(tw, f, info.Size())
	return err == nil, err
}

// extract restores an archive made by archive. Entries are matched by
// extension so an archive can be restored under another collection name.
// Every entry is staged next to its target first, live files are only
// replaced once the whole archive has been read. Files missing from the
// archive are removed.
func (c *Collection) extract(filename string) (*schema.Schema, int64, error) {

	f, err := os.Open(filename)
	if err != nil {
		return nil, 0, fmt.Errorf("restore: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("restore: %w", err)
	}
	defer zr.Close()

	targets := map[string]string{}
	for _, name := range []string{c.filename, c.logname, c.backupname} {
		targets[filepath.Ext(name)] = name
	}

	staged := map[string]string{} // target -> staged file
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()

	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("restore: %w", err)
		}
		target, ok := targets[filepath.Ext(header.Name)]
		if !ok {
			return nil, 0, fmt.Errorf("restore: unexpected entry '%s'", header.Name)
		}
		tmp := target + ".restore"
		staged[target] = tmp
		if err := writeFile(tmp, tr); err != nil {
			return nil, 0, fmt.Errorf("restore %s: %w", header.Name, err)
		}
	}

	for _, target := range targets {
		tmp, ok := staged[target]
		if !ok {
			err = os.Remove(target)
			if errors.Is(err, fs.ErrNotExist) {
				err = nil
			}
		} else {
			err = os.Rename(tmp, target)
			delete(staged, target)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("restore: %w", err)
		}
	}

	if c.Kind != Table {
		return nil, 0, nil
	}
	return readHeader(c.filename)
}

func writeFile(filename string, r io.Reader) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}
