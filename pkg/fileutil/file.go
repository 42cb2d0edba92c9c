// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package fileutil contains helpers for reading and editing files on the
// target system. Config file edits go through EnsureLine.
package fileutil

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	fp "path/filepath"
	"strings"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/fedprov/fedprov/pkg/log"
)

var (
	xzId   = [6]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00} // fd 37 7a 58 5a 00 -> xz archive
	gzipId = [2]byte{0x1f, 0x8b}
	zipId  = [4]byte{'P', 'K', 0x03, 0x04}
)

//return n bytes from beginning of file
func ReadHeader(fname string, n int64) (head []byte, err error) {
	f, err := os.Open(fname)
	if err != nil {
		return
	}
	defer f.Close()
	head, err = io.ReadAll(io.LimitReader(f, n))
	if int64(len(head)) < n {
		return nil, io.ErrUnexpectedEOF
	}
	return
}

func hasMagic(fname string, magic []byte) bool {
	head, err := ReadHeader(fname, int64(len(magic)))
	if err != nil {
		log.Logf("failed to read head bytes from %s: %s", fname, err)
		return false
	}
	return bytes.Equal(head, magic)
}

//checks for XZ header
func IsXZ(fname string) bool { return hasMagic(fname, xzId[:]) }

//checks for gzip header
func IsGzip(fname string) bool { return hasMagic(fname, gzipId[:]) }

//checks for zip local file header
func IsZip(fname string) bool { return hasMagic(fname, zipId[:]) }

// Renames old in same dir, using newPfx + random suffix (via os.CreateTemp)
func RenameUnique(old, newPfx string) (success bool) {
	f, err := os.CreateTemp(fp.Dir(old), newPfx)
	if err != nil {
		log.Logf("error %s creating temp file to rename %s", err, old)
		err = os.Remove(old)
		if err != nil {
			log.Logf("error %s deleting %s", err, old)
		}
		return false
	}
	newname := f.Name()
	f.Close()
	err = os.Remove(newname)
	if err != nil {
		log.Logf("error %s deleting temp file %s", err, newname)
	}
	err = os.Rename(old, newname)
	if err != nil {
		log.Logf("error %s renaming %s to %s", err, old, newname)
	}
	return err == nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// WaitForRemoval waits for path to disappear, for example a lock file held by
// another process. Returns true if it is gone, false on timeout or when ctx is
// done. The parent directory is watched for removals; it is also re-checked
// once per second in case the watch cannot be established or misses an event.
func WaitForRemoval(ctx context.Context, path string, timeout time.Duration) (gone bool) {
	if !exists(path) {
		return true
	}
	events := make(chan notify.EventInfo, 16)
	if err := notify.Watch(fp.Dir(path), events, notify.Remove, notify.Rename); err != nil {
		log.Logf("cannot watch %s: %s", fp.Dir(path), err)
	} else {
		defer notify.Stop(events)
	}
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if !exists(path) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !exists(path)
		case <-events:
		case <-tick.C:
		}
	}
}

// ReadConfigLines reads a config file at the given path. Whitespace is
// stripped, as are comments (anything between # and \n). Individual lines
// are returned, up to maxLines.
func ReadConfigLines(path string, maxLines int) ([]string, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	var lines []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		l := strings.TrimSpace(scanner.Text())
		if strings.Contains(l, "#") {
			l = strings.TrimSpace(strings.SplitN(l, "#", 2)[0]) //get rid of the comment
		}
		if len(l) == 0 {
			continue
		}
		lines = append(lines, l)
		if len(lines) == maxLines {
			log.Logf("ReadConfigLines: max lines (%d) read from %s", maxLines, path)
			break
		}
	}
	err = scanner.Err()
	if err != nil {
		return nil, err
	}
	return lines, nil
}
