// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package pkgmgr drives the system package manager (dnf). Transactions wait
// for a lock held by another dnf or PackageKit process to be released first.
package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	fp "path/filepath"
	"strings"
	"time"

	futil "github.com/fedprov/fedprov/pkg/fileutil"
	"github.com/fedprov/fedprov/pkg/log"
)

// Manager is the package manager as seen by provisioning steps.
type Manager interface {
	Upgrade(ctx context.Context) error
	Install(ctx context.Context, ids ...string) error
	InstallFiles(ctx context.Context, paths ...string) error
	Remove(ctx context.Context, ids ...string) error
	Installed(ctx context.Context, id string) bool
	// AddRepoFile writes a .repo file; changed is false if it already had
	// the given content.
	AddRepoFile(name, content string) (changed bool, err error)
	// HasRepoFile is true if AddRepoFile would change nothing.
	HasRepoFile(name, content string) bool
	// AddRepoRPM installs a release rpm that configures repositories, unless
	// probeName is already installed.
	AddRepoRPM(ctx context.Context, url, probeName string) error
	EnableCopr(ctx context.Context, repo string) error
	CoprEnabled(repo string) bool
	Autoremove(ctx context.Context) error
}

var ELocked = errors.New("package manager is locked by another process")

var DefaultLockFiles = []string{
	"/var/lib/dnf/rpmdb_lock.pid",
	"/var/cache/dnf/metadata_lock.pid",
	"/var/cache/dnf/download_lock.pid",
}

const DefaultLockWait = 10 * time.Minute

type Dnf struct {
	ReposDir  string        //default /etc/yum.repos.d
	LockFiles []string      //default DefaultLockFiles
	LockWait  time.Duration //default DefaultLockWait
	Bin       string        //default dnf
}

var _ Manager = (*Dnf)(nil)

func (d *Dnf) reposDir() string {
	if d.ReposDir == "" {
		return "/etc/yum.repos.d"
	}
	return d.ReposDir
}

func (d *Dnf) bin() string {
	if d.Bin == "" {
		return "dnf"
	}
	return d.Bin
}

// waitLock blocks until no lock file exists, up to LockWait.
func (d *Dnf) waitLock(ctx context.Context) error {
	locks := d.LockFiles
	if locks == nil {
		locks = DefaultLockFiles
	}
	wait := d.LockWait
	if wait == 0 {
		wait = DefaultLockWait
	}
	deadline := time.Now().Add(wait)
	for _, l := range locks {
		if _, err := os.Stat(l); err != nil {
			continue
		}
		log.Msgf("waiting for another package manager to finish (%s)", l)
		if !futil.WaitForRemoval(ctx, l, time.Until(deadline)) {
			return fmt.Errorf("%w: %s still present after %s", ELocked, l, wait)
		}
	}
	return nil
}

func (d *Dnf) run(ctx context.Context, args ...string) error {
	if err := d.waitLock(ctx); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, d.bin(), append([]string{"-y"}, args...)...)
	_, err := log.CmdErr(cmd)
	return err
}

func (d *Dnf) Upgrade(ctx context.Context) error {
	return d.run(ctx, "upgrade", "--refresh")
}

// missing filters ids down to those not installed. Group ids (@name) are
// always kept; dnf skips installed groups itself.
func (d *Dnf) missing(ctx context.Context, ids []string) (m []string) {
	for _, id := range ids {
		if strings.HasPrefix(id, "@") || !d.Installed(ctx, id) {
			m = append(m, id)
		}
	}
	return
}

// Install installs those of ids that are not installed yet, in a single
// transaction. dnf aborts the whole transaction if any id is unknown, so when
// it fails each id is retried on its own and the error names only those that
// still failed.
func (d *Dnf) Install(ctx context.Context, ids ...string) error {
	m := d.missing(ctx, ids)
	if len(m) == 0 {
		return nil
	}
	err := d.run(ctx, append([]string{"install"}, m...)...)
	if err == nil || len(m) == 1 || ctx.Err() != nil || errors.Is(err, ELocked) {
		return err
	}
	log.Logf("installing %d packages together failed, retrying one at a time", len(m))
	var errs []error
	for _, id := range m {
		if err := d.run(ctx, "install", id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dnf) InstallFiles(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return d.run(ctx, append([]string{"install"}, paths...)...)
}

func (d *Dnf) Remove(ctx context.Context, ids ...string) error {
	var present []string
	for _, id := range ids {
		if d.Installed(ctx, id) {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return d.run(ctx, append([]string{"remove"}, present...)...)
}

// Installed returns true if an installed package is named or provides id.
func (d *Dnf) Installed(ctx context.Context, id string) bool {
	_, ok := log.Cmd(exec.CommandContext(ctx, "rpm", "-q", "--whatprovides", id))
	return ok
}

func (d *Dnf) repoFile(name, content string) (path, body string) {
	if !strings.HasSuffix(name, ".repo") {
		name += ".repo"
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return fp.Join(d.reposDir(), name), content
}

func (d *Dnf) HasRepoFile(name, content string) bool {
	path, content := d.repoFile(name, content)
	existing, err := os.ReadFile(path)
	return err == nil && string(existing) == content
}

func (d *Dnf) AddRepoFile(name, content string) (bool, error) {
	if d.HasRepoFile(name, content) {
		return false, nil
	}
	path, content := d.repoFile(name, content)
	if err := os.MkdirAll(d.reposDir(), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, err
	}
	log.Logf("wrote %s", path)
	return true, nil
}

func (d *Dnf) AddRepoRPM(ctx context.Context, url, probeName string) error {
	if probeName != "" && d.Installed(ctx, probeName) {
		return nil
	}
	return d.InstallFiles(ctx, url)
}

// CoprRepoFile is the name dnf gives the repo file for a copr project.
func CoprRepoFile(repo string) string {
	return "_copr:copr.fedorainfracloud.org:" + strings.ReplaceAll(repo, "/", ":") + ".repo"
}

// CoprEnabled is true if the repo file for owner/project exists.
func (d *Dnf) CoprEnabled(repo string) bool {
	_, err := os.Stat(fp.Join(d.reposDir(), CoprRepoFile(repo)))
	return err == nil
}

func (d *Dnf) EnableCopr(ctx context.Context, repo string) error {
	if d.CoprEnabled(repo) {
		return nil
	}
	return d.run(ctx, "copr", "enable", repo)
}

func (d *Dnf) Autoremove(ctx context.Context) error {
	return d.run(ctx, "autoremove")
}
