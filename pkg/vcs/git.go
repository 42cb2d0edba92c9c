// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package vcs keeps local clones of remote git repositories current.
package vcs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	fp "path/filepath"
	"strings"

	futil "github.com/fedprov/fedprov/pkg/fileutil"
	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/probe"
)

type Change int

const (
	Unchanged Change = iota
	Cloned
	Updated
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Cloned:
		return "cloned"
	case Updated:
		return "updated"
	}
	return fmt.Sprintf("Change(%d)", int(c))
}

type Repo interface {
	// Sync clones url into dir, or fast-forwards an existing clone.
	Sync(ctx context.Context, url, dir string) (Change, error)
}

type Git struct {
	Shallow bool        //clone with --depth 1
	As      *probe.User //when a sudo operator, git runs as them and the clone is theirs
}

var _ Repo = (*Git)(nil)

// IsClone reports whether dir is a git working tree.
func IsClone(dir string) bool {
	_, err := os.Stat(fp.Join(dir, ".git"))
	return err == nil
}

func (g *Git) Sync(ctx context.Context, url, dir string) (Change, error) {
	if IsClone(dir) {
		out, err := log.CmdErr(g.command(ctx, "-C", dir, "pull", "--ff-only"))
		if err != nil {
			return Unchanged, err
		}
		if strings.Contains(out, "Already up to date") || strings.Contains(out, "Already up-to-date") {
			return Unchanged, nil
		}
		return Updated, nil
	}
	if err := os.MkdirAll(fp.Dir(dir), 0755); err != nil {
		return Unchanged, err
	}
	if g.As != nil && g.As.Sudo {
		futil.ChownNew(fp.Dir(dir), g.As.Uid, g.As.Gid)
	}
	args := []string{"clone"}
	if g.Shallow {
		args = append(args, "--depth", "1")
	}
	args = append(args, url, dir)
	if _, err := log.CmdErr(g.command(ctx, args...)); err != nil {
		return Unchanged, err
	}
	return Cloned, nil
}

func (g *Git) command(ctx context.Context, args ...string) *exec.Cmd {
	if g.As == nil || !g.As.Sudo {
		return exec.CommandContext(ctx, "git", args...)
	}
	return exec.CommandContext(ctx, "runuser", append([]string{"-u", g.As.Name, "--", "git"}, args...)...)
}
