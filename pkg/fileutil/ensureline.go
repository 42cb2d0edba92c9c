// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fileutil

import (
	"fmt"
	"os"
	fp "path/filepath"
	"regexp"
	"strings"
)

type Mode int

const (
	// The first matching line becomes the desired line, other matching lines
	// are dropped. Appends when nothing matches.
	ModeReplace Mode = iota
	// Appends the desired line only when nothing matches.
	ModeAppendIfAbsent
)

type Change int

const (
	ChangeNone     Change = iota // file already in the desired state
	ChangeSkipped                // file does not exist
	ChangeReplaced               // a matching line was rewritten or duplicates removed
	ChangeAppended
)

func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "unchanged"
	case ChangeSkipped:
		return "skipped"
	case ChangeReplaced:
		return "replaced"
	case ChangeAppended:
		return "appended"
	}
	return fmt.Sprintf("Change(%d)", int(c))
}

// Changed reports whether the file was written.
func (c Change) Changed() bool { return c == ChangeReplaced || c == ChangeAppended }

// EnsureLine makes path contain desired, using match to find the line(s) that
// desired supersedes. A missing file is not an error: ChangeSkipped is
// returned and nothing is created. The file is only rewritten when its content
// changes; writes go to a temp file in the same dir which is then renamed over
// path, keeping permissions and ownership. If path is a symlink, its target
// is edited and the link is left in place.
func EnsureLine(path string, match *regexp.Regexp, desired string, mode Mode) (Change, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ChangeSkipped, nil
	}
	if err != nil {
		return ChangeNone, err
	}
	if path, err = fp.EvalSymlinks(path); err != nil {
		return ChangeNone, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ChangeNone, err
	}
	content := string(data)
	trailingNL := strings.HasSuffix(content, "\n")
	var lines []string
	if len(content) > 0 {
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	change := ChangeNone
	found := false
	out := make([]string, 0, len(lines)+1)
	for _, l := range lines {
		if !match.MatchString(l) {
			out = append(out, l)
			continue
		}
		if mode == ModeAppendIfAbsent {
			return ChangeNone, nil
		}
		if found {
			change = ChangeReplaced
			continue
		}
		found = true
		if l != desired {
			change = ChangeReplaced
		}
		out = append(out, desired)
	}
	if !found {
		out = append(out, desired)
		change = ChangeAppended
		trailingNL = true
	}
	if change == ChangeNone {
		return ChangeNone, nil
	}
	result := strings.Join(out, "\n")
	if trailingNL {
		result += "\n"
	}
	if err = replaceFile(path, info, []byte(result)); err != nil {
		return ChangeNone, err
	}
	return change, nil
}

// LineSatisfied reports whether EnsureLine would leave path unchanged. A
// missing file is not satisfied.
func LineSatisfied(path string, match *regexp.Regexp, desired string, mode Mode) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	matches := 0
	for _, l := range strings.Split(string(data), "\n") {
		if !match.MatchString(l) {
			continue
		}
		if mode == ModeAppendIfAbsent {
			return true, nil
		}
		if matches++; matches > 1 || l != desired {
			return false, nil
		}
	}
	return matches == 1, nil
}

func replaceFile(path string, info os.FileInfo, data []byte) error {
	tmp, err := os.CreateTemp(fp.Dir(path), "."+fp.Base(path)+".")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name) //no-op once renamed
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	copyOwner(info, name)
	return os.Rename(name, path)
}
