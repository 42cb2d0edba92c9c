// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package flatpak installs containerized desktop applications.
package flatpak

import (
	"context"
	"os/exec"
	"strings"

	"github.com/fedprov/fedprov/pkg/log"
)

type Client interface {
	AddRemote(ctx context.Context, name, url string) error
	HasRemote(ctx context.Context, name string) bool
	Install(ctx context.Context, remote string, ids ...string) error
	Installed(ctx context.Context, id string) bool
	UninstallUnused(ctx context.Context) error
}

// Flatpak runs the flatpak cli, system-wide unless User is set.
type Flatpak struct {
	User bool
}

var _ Client = (*Flatpak)(nil)

func (f *Flatpak) scope() string {
	if f.User {
		return "--user"
	}
	return "--system"
}

func (f *Flatpak) run(ctx context.Context, args ...string) error {
	_, err := log.CmdErr(exec.CommandContext(ctx, "flatpak", args...))
	return err
}

func (f *Flatpak) AddRemote(ctx context.Context, name, url string) error {
	return f.run(ctx, "remote-add", f.scope(), "--if-not-exists", name, url)
}

func (f *Flatpak) HasRemote(ctx context.Context, name string) bool {
	out, ok := log.Cmd(exec.CommandContext(ctx, "flatpak", "remotes", f.scope(), "--columns=name"))
	if !ok {
		return false
	}
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) == name {
			return true
		}
	}
	return false
}

func (f *Flatpak) Installed(ctx context.Context, id string) bool {
	_, ok := log.Cmd(exec.CommandContext(ctx, "flatpak", "info", f.scope(), id))
	return ok
}

// Install installs those of ids that are not yet installed.
func (f *Flatpak) Install(ctx context.Context, remote string, ids ...string) error {
	var missing []string
	for _, id := range ids {
		if !f.Installed(ctx, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	args := append([]string{"install", f.scope(), "-y", "--noninteractive", remote}, missing...)
	return f.run(ctx, args...)
}

func (f *Flatpak) UninstallUnused(ctx context.Context) error {
	return f.run(ctx, "uninstall", f.scope(), "-y", "--noninteractive", "--unused")
}
