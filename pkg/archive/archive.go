// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package archive extracts downloaded application bundles: tar (plain, gzip,
// or xz compressed) and zip. The format is detected from the file's content,
// not its name.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	fp "path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	futil "github.com/fedprov/fedprov/pkg/fileutil"
	"github.com/fedprov/fedprov/pkg/log"
)

var (
	EUnsafePath = errors.New("archive entry escapes destination")
	EEmpty      = errors.New("nothing extracted")
)

type Options struct {
	// Drop the first path component of every entry, like tar's
	// --strip-components=1. Entries with nothing left are skipped.
	StripTopDir bool
}

// Extract unpacks src into dest, creating dest if needed. Files are created
// with the modes recorded in the archive. Returns the number of entries
// written.
func Extract(src, dest string, opts Options) (n int, err error) {
	if err = os.MkdirAll(dest, 0755); err != nil {
		return 0, err
	}
	if futil.IsZip(src) {
		n, err = extractZip(src, dest, opts)
	} else {
		n, err = extractTar(src, dest, opts)
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("%s: %w", fp.Base(src), EEmpty)
	}
	return
}

// decompress picks a decompressor from the file's magic bytes.
func decompress(src string, f io.Reader) (io.Reader, error) {
	switch {
	case futil.IsXZ(src):
		return xz.NewReader(f)
	case futil.IsGzip(src):
		return gzip.NewReader(f)
	}
	return f, nil
}

// target maps an entry name to a path under dest; ok is false if the entry
// should be skipped.
func target(dest, name string, opts Options) (path string, ok bool, err error) {
	name = strings.TrimPrefix(fp.ToSlash(name), "./")
	if opts.StripTopDir {
		parts := strings.SplitN(name, "/", 2)
		if len(parts) < 2 || parts[1] == "" {
			return "", false, nil
		}
		name = parts[1]
	}
	if name == "" || name == "." {
		return "", false, nil
	}
	path = fp.Join(dest, name)
	if !within(dest, path) {
		return "", false, fmt.Errorf("%w: %s", EUnsafePath, name)
	}
	if err = noSymlinkParent(dest, path); err != nil {
		return "", false, err
	}
	return path, true, nil
}

func within(dest, path string) bool {
	dest = fp.Clean(dest)
	return path == dest || strings.HasPrefix(path, dest+string(os.PathSeparator))
}

// noSymlinkParent fails if any existing dir between dest and path is a
// symlink, since an earlier entry could have pointed it anywhere.
func noSymlinkParent(dest, path string) error {
	rel, err := fp.Rel(dest, fp.Dir(path))
	if err != nil || rel == "." {
		return err
	}
	cur := fp.Clean(dest)
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = fp.Join(cur, part)
		fi, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symlink", EUnsafePath, cur)
		}
	}
	return nil
}

// checkLink rejects symlinks that are absolute or resolve outside dest.
func checkLink(dest, path, linkname string) error {
	if fp.IsAbs(linkname) || !within(dest, fp.Join(fp.Dir(path), linkname)) {
		return fmt.Errorf("%w: %s -> %s", EUnsafePath, path, linkname)
	}
	return nil
}

func extractTar(src, dest string, opts Options) (n int, err error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	rdr, err := decompress(src, f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fp.Base(src), err)
	}
	tr := tar.NewReader(rdr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%s: %w", fp.Base(src), err)
		}
		path, ok, err := target(dest, hdr.Name, opts)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		mode := hdr.FileInfo().Mode()
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(path, mode.Perm()|0700)
		case tar.TypeReg:
			err = writeFile(path, tr, mode.Perm())
		case tar.TypeSymlink:
			err = symlink(dest, hdr.Linkname, path)
		case tar.TypeLink:
			var old string
			old, ok, err = target(dest, hdr.Linkname, opts)
			if err == nil && ok {
				err = os.Link(old, path)
			}
		default:
			log.Logf("%s: skipping %s, type %c", fp.Base(src), hdr.Name, hdr.Typeflag)
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func extractZip(src, dest string, opts Options) (n int, err error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer zr.Close()
	for _, zf := range zr.File {
		path, ok, err := target(dest, zf.Name, opts)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		mode := zf.Mode()
		switch {
		case mode.IsDir():
			err = os.MkdirAll(path, mode.Perm()|0700)
		case mode&os.ModeSymlink != 0:
			err = zipSymlink(zf, dest, path)
		default:
			err = zipFile(zf, path)
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func zipFile(zf *zip.File, path string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	perm := zf.Mode().Perm()
	if perm == 0 {
		//zips made on windows carry no unix mode
		perm = 0644
	}
	return writeFile(path, rc, perm)
}

func zipSymlink(zf *zip.File, dest, path string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	linkname, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return err
	}
	return symlink(dest, string(linkname), path)
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(fp.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func symlink(dest, linkname, path string) error {
	if err := checkLink(dest, path, linkname); err != nil {
		return err
	}
	if err := os.MkdirAll(fp.Dir(path), 0755); err != nil {
		return err
	}
	os.Remove(path)
	return os.Symlink(linkname, path)
}

// MakeExecutable sets mode 0755 on each of names, relative to dir.
func MakeExecutable(dir string, names ...string) error {
	var errs []error
	for _, n := range names {
		if err := os.Chmod(fp.Join(dir, n), 0755); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
