// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fileutil

import (
	"io/fs"
	"os"
	fp "path/filepath"
	"syscall"

	"github.com/fedprov/fedprov/pkg/log"
)

// ChownTree gives root and everything beneath it to uid:gid. Symlinks are not
// followed. Used to hand files created under sudo back to the operator.
func ChownTree(root string, uid, gid int) error {
	return fp.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, uid, gid)
	})
}

// ChownNew is like os.Lchown but only touches path if it is currently owned
// by root. Errors are logged, not returned.
func ChownNew(path string, uid, gid int) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok || sys.Uid != 0 {
		return
	}
	if err = os.Lchown(path, uid, gid); err != nil {
		log.Logf("error %s setting uid/gid of %s", err, path)
	}
}

// Preserves ownership of orig on path; best effort.
func copyOwner(orig fs.FileInfo, path string) {
	sys, ok := orig.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	if err := os.Lchown(path, int(sys.Uid), int(sys.Gid)); err != nil {
		log.Logf("error %s setting uid/gid of %s", err, path)
	}
}
