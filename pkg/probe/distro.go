// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package probe inspects the host: distribution, desktop environment,
// pending reboots, network, and who the operator is. The result is a Facts
// snapshot that steps use to decide whether they apply.
package probe

import (
	"errors"
	"fmt"
	"strings"

	futil "github.com/fedprov/fedprov/pkg/fileutil"
)

const DefaultOSRelease = "/etc/os-release"

var ErrWrongDistro = errors.New("unsupported distribution")

// Distro holds the interesting fields of os-release(5).
type Distro struct {
	ID         string
	IDLike     []string
	Name       string
	Version    string
	PrettyName string
}

func (d Distro) String() string {
	if d.PrettyName != "" {
		return d.PrettyName
	}
	return strings.TrimSpace(d.Name + " " + d.Version)
}

// Is returns true if id is the distro's ID or one of its ID_LIKE entries.
func (d Distro) Is(id string) bool {
	if d.ID == id {
		return true
	}
	for _, like := range d.IDLike {
		if like == id {
			return true
		}
	}
	return false
}

// ParseOSRelease reads an os-release file. Quotes around values are removed.
func ParseOSRelease(path string) (Distro, error) {
	lines, err := futil.ReadConfigLines(path, 100)
	if err != nil {
		return Distro{}, err
	}
	var d Distro
	for _, l := range lines {
		kv := strings.SplitN(l, "=", 2)
		if len(kv) != 2 {
			continue
		}
		val := strings.Trim(kv[1], "\"'")
		switch kv[0] {
		case "ID":
			d.ID = strings.ToLower(val)
		case "ID_LIKE":
			d.IDLike = strings.Fields(strings.ToLower(val))
		case "NAME":
			d.Name = val
		case "VERSION_ID":
			d.Version = val
		case "PRETTY_NAME":
			d.PrettyName = val
		}
	}
	return d, nil
}

// CheckDistro parses osRelease and verifies that the host belongs to one of
// the given distribution families ("fedora" if none are given). The returned
// error wraps ErrWrongDistro on mismatch.
func CheckDistro(osRelease string, ids ...string) (Distro, error) {
	d, err := ParseOSRelease(osRelease)
	if err != nil {
		return d, fmt.Errorf("%w: cannot read %s: %s", ErrWrongDistro, osRelease, err)
	}
	if len(ids) == 0 {
		ids = []string{"fedora"}
	}
	for _, id := range ids {
		if d.Is(id) {
			return d, nil
		}
	}
	return d, fmt.Errorf("%w: %s (id=%q), need one of %v", ErrWrongDistro, d, d.ID, ids)
}
