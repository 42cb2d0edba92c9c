// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package probe

import (
	"os"
	fp "path/filepath"
	"strings"

	"github.com/fedprov/fedprov/pkg/log"
)

type Desktop int

const (
	Unknown Desktop = iota
	GNOME
	KDE
)

func (d Desktop) String() string {
	switch d {
	case GNOME:
		return "GNOME"
	case KDE:
		return "KDE"
	}
	return "unknown"
}

// Getenv matches os.Getenv; tests substitute a map lookup.
type Getenv func(string) string

// DetectDesktop identifies the desktop environment. Session variables are
// checked first. Under sudo those are often stripped, so as a last resort the
// process table under procRoot is scanned for the shell of each desktop.
func DetectDesktop(env Getenv, procRoot string) Desktop {
	if env == nil {
		env = os.Getenv
	}
	for _, part := range strings.Split(env("XDG_CURRENT_DESKTOP"), ":") {
		switch strings.ToUpper(strings.TrimSpace(part)) {
		case "GNOME":
			return GNOME
		case "KDE":
			return KDE
		}
	}
	for _, v := range []string{"DESKTOP_SESSION", "XDG_SESSION_DESKTOP"} {
		s := strings.ToLower(env(v))
		switch {
		case strings.HasPrefix(s, "gnome"):
			return GNOME
		case strings.HasPrefix(s, "plasma"), strings.HasPrefix(s, "kde"):
			return KDE
		}
	}
	if procRoot == "" {
		procRoot = "/proc"
	}
	return scanProcs(procRoot)
}

func scanProcs(procRoot string) Desktop {
	comms, err := fp.Glob(fp.Join(procRoot, "[0-9]*", "comm"))
	if err != nil {
		log.Logf("scanning %s: %s", procRoot, err)
		return Unknown
	}
	for _, c := range comms {
		data, err := os.ReadFile(c)
		if err != nil {
			//process exited
			continue
		}
		switch strings.TrimSpace(string(data)) {
		case "gnome-shell":
			return GNOME
		case "plasmashell":
			return KDE
		}
	}
	return Unknown
}
