// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package settings reads and writes desktop settings: GNOME via gsettings,
// KDE Plasma via kreadconfig/kwriteconfig.
//
// Settings belong to the operator's session. When running as root on the
// operator's behalf, commands are run as the operator with the session bus
// of their login.
package settings

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/probe"
)

// Store is a settings backend. The meaning of ns depends on the backend.
type Store interface {
	Get(ctx context.Context, ns, key string) (string, error)
	Set(ctx context.Context, ns, key, value string) error
}

// Ensure sets key to value unless it already has that value.
func Ensure(ctx context.Context, s Store, ns, key, value string) (changed bool, err error) {
	cur, err := s.Get(ctx, ns, key)
	if err == nil && Same(cur, value) {
		return false, nil
	}
	if err = s.Set(ctx, ns, key, value); err != nil {
		return false, err
	}
	log.Logf("%s %s: %q -> %q", ns, key, cur, value)
	return true, nil
}

// Same compares setting values. gsettings prints strings quoted and
// kreadconfig does not, so quotes are ignored.
func Same(a, b string) bool { return normalize(a) == normalize(b) }

func normalize(v string) string {
	return strings.Trim(strings.TrimSpace(v), "'\"")
}

// command builds a command that runs as u if u is a sudo operator.
func command(ctx context.Context, u *probe.User, name string, args ...string) *exec.Cmd {
	if u == nil || !u.Sudo {
		return exec.CommandContext(ctx, name, args...)
	}
	pre := []string{
		"-u", u.Name, "--",
		"env", "DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/" + strconv.Itoa(u.Uid) + "/bus",
		name,
	}
	return exec.CommandContext(ctx, "runuser", append(pre, args...)...)
}

// GSettings stores settings with gsettings; ns is the schema.
type GSettings struct {
	As *probe.User
}

var _ Store = (*GSettings)(nil)

func (g *GSettings) Get(ctx context.Context, schema, key string) (string, error) {
	out, err := log.CmdErr(command(ctx, g.As, "gsettings", "get", schema, key))
	return strings.TrimSpace(out), err
}

func (g *GSettings) Set(ctx context.Context, schema, key, value string) error {
	_, err := log.CmdErr(command(ctx, g.As, "gsettings", "set", schema, key, value))
	return err
}

// KConfig stores settings with kwriteconfig; ns is file/group, and nested
// groups are separated by further slashes (kwinrc/Plugins or
// kdeglobals/KDE/Nested).
type KConfig struct {
	As      *probe.User
	Version int //major version of the tools; default 6
}

var _ Store = (*KConfig)(nil)

func (k *KConfig) tool(verb string) string {
	v := k.Version
	if v == 0 {
		v = 6
	}
	return fmt.Sprintf("k%sconfig%d", verb, v)
}

func kargs(ns, key string) ([]string, error) {
	parts := strings.Split(ns, "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("kconfig namespace %q: want file/group", ns)
	}
	args := []string{"--file", parts[0]}
	for _, g := range parts[1:] {
		args = append(args, "--group", g)
	}
	return append(args, "--key", key), nil
}

func (k *KConfig) Get(ctx context.Context, ns, key string) (string, error) {
	args, err := kargs(ns, key)
	if err != nil {
		return "", err
	}
	out, err := log.CmdErr(command(ctx, k.As, k.tool("read"), args...))
	return strings.TrimSpace(out), err
}

func (k *KConfig) Set(ctx context.Context, ns, key, value string) error {
	args, err := kargs(ns, key)
	if err != nil {
		return err
	}
	_, err = log.CmdErr(command(ctx, k.As, k.tool("write"), append(args, value)...))
	return err
}
