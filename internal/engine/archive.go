package engine

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Owner is the numeric owner written into archive headers.
type Owner struct {
	UID int
	GID int
}

// TarTree appends srcDir and everything below it to tw under prefix (a
// slash-separated path without a leading slash). Permission bits are kept;
// ownership is rewritten to owner. Symlinks are stored as links, not
// followed. Sockets, devices and pipes are skipped.
func TarTree(tw *tar.Writer, srcDir, prefix string, owner Owner) error {
	prefix = strings.TrimPrefix(path.Clean("/"+prefix), "/")
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()
		if !mode.IsRegular() && !mode.IsDir() && mode&fs.ModeSymlink == 0 {
			return nil
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		var link string
		if mode&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("archiving %s: %w", p, err)
		}
		hdr.Name = name
		if mode.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = owner.UID, owner.GID
		hdr.Uname, hdr.Gname = "", ""

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !mode.IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// tarDir writes a single directory entry.
func tarDir(tw *tar.Writer, name string, perm int64, owner Owner) error {
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     strings.TrimPrefix(name, "/") + "/",
		Mode:     perm,
		Uid:      owner.UID,
		Gid:      owner.GID,
	})
}
