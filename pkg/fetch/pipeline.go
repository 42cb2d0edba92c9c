// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package fetch keeps third-party applications that are distributed outside
// the package manager up to date: it resolves the current download, keeps one
// cached copy per application, and installs it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	fp "path/filepath"
	"strings"

	"github.com/fedprov/fedprov/pkg/archive"
	futil "github.com/fedprov/fedprov/pkg/fileutil"
	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/net/xfer"
	"github.com/fedprov/fedprov/pkg/pkgmgr"
	"github.com/fedprov/fedprov/pkg/probe"
)

type Kind int

const (
	KindRPM Kind = iota
	KindTarball
	KindZip
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindRPM:
		return "rpm"
	case KindTarball:
		return "tarball"
	case KindZip:
		return "zip"
	case KindScript:
		return "script"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindRPM, KindTarball, KindZip, KindScript} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown install kind %q", s)
}

// App describes one application and how to install it.
type App struct {
	ID          string
	Pattern     string //glob matching every cached file for this app, any version
	Probe       VersionProbe
	Kind        Kind
	Dest        string   //install dir for tarball and zip
	Entrypoints []string //relative to Dest; made executable
	StripTopDir bool
	Args        []string    //arguments for KindScript
	Installed   func(context.Context) bool //optional extra check that the app is present
}

// CacheEntry is an artifact in the cache.
type CacheEntry struct {
	App  string
	File string
	Path string
}

// Installed is an application tree on disk.
type Installed struct {
	Dir         string
	Entrypoints []string
}

type Result struct {
	Entry     CacheEntry
	Cached    bool     //no download was needed
	Installed bool     //an install was performed
	Removed   []string //stale cached files deleted
	Tree      *Installed
}

// Pipeline fetches and installs Apps.
type Pipeline struct {
	Fetcher  xfer.Fetcher
	CacheDir string
	Packages pkgmgr.Manager //needed for KindRPM
	Owner    *probe.User    //if a sudo operator, downloaded and installed files are given to them
}

const stampSuffix = ".installed"

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureLatest makes sure the current version of app is cached and installed.
//
// The cached copy doubles as the record of what is installed: if the current
// file is already cached and the app still looks installed, nothing is done.
// Cached files for other versions are deleted before anything is downloaded.
func (p *Pipeline) EnsureLatest(ctx context.Context, app App) (res Result, err error) {
	url, file, err := p.resolve(ctx, app)
	if err != nil {
		return res, err
	}
	if err = os.MkdirAll(p.CacheDir, 0755); err != nil {
		return res, err
	}
	path := fp.Join(p.CacheDir, file)
	res.Entry = CacheEntry{App: app.ID, File: file, Path: path}
	res.Removed = p.removeStale(app, path)

	if exists(path) {
		res.Cached = true
		if p.isInstalled(ctx, app, path) {
			log.Successf("%s: %s already downloaded and installed", app.ID, file)
			res.Tree = app.tree()
			return res, nil
		}
		log.Msgf("%s: %s already downloaded", app.ID, file)
	} else if err = p.Fetcher.Download(ctx, url, path); err != nil {
		return res, fmt.Errorf("%s: %w", app.ID, err)
	}
	p.chown(path)

	if err = p.install(ctx, app, path); err != nil {
		return res, fmt.Errorf("%s: %w", app.ID, err)
	}
	if err = os.WriteFile(path+stampSuffix, nil, 0644); err != nil {
		log.Logf("%s: writing install stamp: %s", app.ID, err)
	}
	res.Installed = true
	res.Tree = app.tree()
	log.Successf("%s: installed %s", app.ID, file)
	return res, nil
}

// Satisfied reports whether EnsureLatest would find nothing to do: the
// current version is cached and the app is installed from it. Stale cached
// files are not considered.
func (p *Pipeline) Satisfied(ctx context.Context, app App) (bool, error) {
	_, file, err := p.resolve(ctx, app)
	if err != nil {
		return false, err
	}
	path := fp.Join(p.CacheDir, file)
	return exists(path) && p.isInstalled(ctx, app, path), nil
}

// resolve finds the current download for app and the name it is cached under.
func (p *Pipeline) resolve(ctx context.Context, app App) (url, file string, err error) {
	url, file, err = app.Probe.Resolve(ctx, p.Fetcher)
	if err != nil {
		return "", "", fmt.Errorf("%s: finding latest version: %w", app.ID, err)
	}
	if file == "" || file == "." || file == "/" || strings.ContainsRune(file, os.PathSeparator) {
		return "", "", fmt.Errorf("%s: cannot derive a file name from %s", app.ID, url)
	}
	return url, file, nil
}

func (a App) tree() *Installed {
	if a.Dest == "" {
		return nil
	}
	return &Installed{Dir: a.Dest, Entrypoints: a.Entrypoints}
}

func (p *Pipeline) isInstalled(ctx context.Context, app App, path string) bool {
	if !exists(path + stampSuffix) {
		return false
	}
	if app.Dest != "" && !exists(app.Dest) {
		return false
	}
	return app.Installed == nil || app.Installed(ctx)
}

// removeStale deletes cached files matching app.Pattern other than keep,
// along with their install stamps. Stamps left without an artifact go too.
func (p *Pipeline) removeStale(app App, keep string) (removed []string) {
	if app.Pattern == "" {
		return nil
	}
	matches, err := fp.Glob(fp.Join(p.CacheDir, app.Pattern))
	if err != nil {
		log.Logf("%s: bad pattern %q: %s", app.ID, app.Pattern, err)
		return nil
	}
	stamps, _ := fp.Glob(fp.Join(p.CacheDir, app.Pattern+stampSuffix))
	for _, st := range append(matches, stamps...) {
		if st == keep+stampSuffix || !strings.HasSuffix(st, stampSuffix) {
			continue
		}
		if !exists(strings.TrimSuffix(st, stampSuffix)) {
			os.Remove(st)
		}
	}
	for _, m := range matches {
		if m == keep || strings.HasSuffix(m, stampSuffix) {
			continue
		}
		if err := os.Remove(m); err != nil {
			log.Logf("%s: removing stale %s: %s", app.ID, m, err)
			continue
		}
		os.Remove(m + stampSuffix)
		log.Msgf("%s: removed outdated %s", app.ID, fp.Base(m))
		removed = append(removed, fp.Base(m))
	}
	return
}

func (p *Pipeline) install(ctx context.Context, app App, path string) error {
	switch app.Kind {
	case KindRPM:
		if p.Packages == nil {
			return errors.New("no package manager configured")
		}
		return p.Packages.InstallFiles(ctx, path)
	case KindTarball, KindZip:
		if app.Dest == "" {
			return errors.New("no install destination")
		}
		if err := os.RemoveAll(app.Dest); err != nil {
			return err
		}
		if _, err := archive.Extract(path, app.Dest, archive.Options{StripTopDir: app.StripTopDir}); err != nil {
			return err
		}
		if err := archive.MakeExecutable(app.Dest, app.Entrypoints...); err != nil {
			return err
		}
		p.chownTree(app.Dest)
		return nil
	case KindScript:
		hit, err := ScanScript(path)
		if err != nil {
			return err
		}
		if hit != "" {
			os.Remove(path)
			log.Criticalf("%s: refusing to run %s, it contains %q", app.ID, fp.Base(path), hit)
			return fmt.Errorf("%w: %q", ErrUnsafeScript, hit)
		}
		_, err = log.CmdErr(p.shell(ctx, path, app.Args...))
		return err
	}
	return fmt.Errorf("unsupported kind %s", app.Kind)
}

// shell runs an installer script, as the operator when under sudo so the
// script installs into their home rather than root's.
func (p *Pipeline) shell(ctx context.Context, path string, args ...string) *exec.Cmd {
	args = append([]string{path}, args...)
	if p.Owner == nil || !p.Owner.Sudo {
		return exec.CommandContext(ctx, "sh", args...)
	}
	return exec.CommandContext(ctx, "runuser", append([]string{"-u", p.Owner.Name, "--", "sh"}, args...)...)
}

func (p *Pipeline) chown(path string) {
	if p.Owner != nil && p.Owner.Sudo {
		futil.ChownNew(path, p.Owner.Uid, p.Owner.Gid)
	}
}

func (p *Pipeline) chownTree(dir string) {
	if p.Owner == nil || !p.Owner.Sudo {
		return
	}
	if err := futil.ChownTree(dir, p.Owner.Uid, p.Owner.Gid); err != nil {
		log.Logf("chown %s: %s", dir, err)
	}
}
