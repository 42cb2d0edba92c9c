// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package provision

import (
	"context"
	"fmt"
	"os"
	fp "path/filepath"

	"github.com/fedprov/fedprov/pkg/fetch"
	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/manifest"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/step"
)

// fetchApp converts the manifest form of an application.
func (p *Provisioner) fetchApp(a manifest.App) (fetch.App, error) {
	app := fetch.App{
		ID:          a.ID,
		Pattern:     a.Pattern,
		Entrypoints: a.Entrypoints,
		StripTopDir: a.StripTopDir,
		Args:        a.Args,
	}
	var err error
	if app.Kind, err = fetch.ParseKind(a.Kind); err != nil {
		return app, err
	}
	switch a.Probe {
	case "", "static":
		app.Probe = fetch.StaticProbe{URL: a.URL}
	case "redirect":
		app.Probe = fetch.RedirectProbe{URL: a.URL}
	case "json":
		app.Probe = fetch.JSONProbe{URL: a.URL, Path: a.JSONPath}
	default:
		return app, fmt.Errorf("unknown probe %q", a.Probe)
	}
	if a.Dest != "" {
		app.Dest = a.Dest
		if !fp.IsAbs(app.Dest) {
			app.Dest = fp.Join(p.AppsDir(), a.Dest)
		}
	}
	if a.Package != "" {
		pkg := a.Package
		app.Installed = func(ctx context.Context) bool { return p.Packages.Installed(ctx, pkg) }
	}
	return app, nil
}

func (p *Provisioner) pipeline() *fetch.Pipeline {
	return &fetch.Pipeline{
		Fetcher:  p.Fetcher,
		CacheDir: p.CacheDir(),
		Packages: p.Packages,
		Owner:    &p.User,
	}
}

func (p *Provisioner) appStep(a manifest.App) step.Step {
	return step.Step{
		Name:  "app: " + a.ID,
		Phase: step.PhaseApps,
		Done: func(ctx context.Context, _ *probe.Facts) (bool, error) {
			app, err := p.fetchApp(a)
			if err != nil {
				return false, err
			}
			ok, err := p.pipeline().Satisfied(ctx, app)
			if err != nil || !ok {
				return false, err
			}
			return !a.Link || app.Dest == "" || p.linked(&fetch.Installed{Dir: app.Dest, Entrypoints: app.Entrypoints}), nil
		},
		Action: func(ctx context.Context, _ *probe.Facts) error {
			app, err := p.fetchApp(a)
			if err != nil {
				return err
			}
			if err = p.mkdirHome(p.CacheDir()); err != nil {
				return err
			}
			res, err := p.pipeline().EnsureLatest(ctx, app)
			if err != nil {
				return err
			}
			if a.Link && res.Tree != nil {
				return p.link(res.Tree)
			}
			return nil
		},
	}
}

// linked reports whether every entrypoint of tree is already linked.
func (p *Provisioner) linked(tree *fetch.Installed) bool {
	for _, e := range tree.Entrypoints {
		cur, err := os.Readlink(fp.Join(p.BinDir(), fp.Base(e)))
		if err != nil || cur != fp.Join(tree.Dir, e) {
			return false
		}
	}
	return true
}

// link points a symlink in BinDir at each entrypoint of tree.
func (p *Provisioner) link(tree *fetch.Installed) error {
	if err := p.mkdirHome(p.BinDir()); err != nil {
		return err
	}
	for _, e := range tree.Entrypoints {
		target := fp.Join(tree.Dir, e)
		l := fp.Join(p.BinDir(), fp.Base(e))
		if cur, err := os.Readlink(l); err == nil && cur == target {
			continue
		}
		if err := os.Remove(l); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Symlink(target, l); err != nil {
			return err
		}
		if p.User.Sudo {
			os.Lchown(l, p.User.Uid, p.User.Gid)
		}
		log.Logf("linked %s -> %s", l, target)
	}
	return nil
}
