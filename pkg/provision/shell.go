// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	fp "path/filepath"
	"regexp"
	"strings"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/manifest"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/step"
	"github.com/fedprov/fedprov/pkg/vcs"
)

func (p *Provisioner) shellSteps() (steps []step.Step) {
	sh := p.M.Shell
	if sh.Package != "" {
		steps = append(steps, step.Step{
			Name:  "shell: " + sh.Package,
			Phase: step.PhaseSetup,
			Done:  p.allInstalled([]string{sh.Package}),
			Action: func(ctx context.Context, _ *probe.Facts) error {
				return p.Packages.Install(ctx, sh.Package)
			},
		})
	}
	if sh.Framework != nil {
		repo := *sh.Framework
		steps = append(steps, step.Step{
			Name:  "shell: framework",
			Phase: step.PhaseSetup,
			Done:  p.cloned(repo),
			Action: func(ctx context.Context, _ *probe.Facts) error {
				return p.sync(ctx, repo)
			},
		})
	}
	extras := append([]manifest.Repo(nil), sh.Plugins...)
	if sh.ThemeRepo != nil {
		extras = append(extras, *sh.ThemeRepo)
	}
	if len(extras) > 0 {
		steps = append(steps, step.Step{
			Name:  "shell: plugins and theme",
			Phase: step.PhaseSetup,
			Done:  p.cloned(extras...),
			Action: func(ctx context.Context, _ *probe.Facts) error {
				var errs []error
				for _, r := range extras {
					if err := p.sync(ctx, r); err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			},
		})
	}
	if edits := p.rcEdits(); len(edits) > 0 {
		st := editStep("shell: "+sh.RcFile, step.PhaseSetup, edits)
		st.Action = func(context.Context, *probe.Facts) error {
			if err := p.seedRc(); err != nil {
				return err
			}
			return applyEdits(edits)
		}
		steps = append(steps, st)
	}
	if sh.Default && sh.Package != "" {
		steps = append(steps, step.Step{
			Name:   "shell: login shell",
			Phase:  step.PhaseSetup,
			Done:   p.loginShellDone,
			Action: p.setLoginShell,
		})
	}
	return
}

// cloned is done once every repo has a clone. Existing clones are only
// pulled when a step runs for a missing one.
func (p *Provisioner) cloned(repos ...manifest.Repo) func(context.Context, *probe.Facts) (bool, error) {
	return func(context.Context, *probe.Facts) (bool, error) {
		for _, r := range repos {
			if !vcs.IsClone(p.home(r.Dir)) {
				return false, nil
			}
		}
		return true, nil
	}
}

func (p *Provisioner) sync(ctx context.Context, r manifest.Repo) error {
	dir := p.home(r.Dir)
	chg, err := p.Git.Sync(ctx, r.URL, dir)
	if err != nil {
		return fmt.Errorf("%s: %w", r.URL, err)
	}
	if chg != vcs.Unchanged {
		log.Msgf("%s: %s", fp.Base(r.Dir), chg)
	}
	return nil
}

func (p *Provisioner) rcPath() string { return p.home(p.M.Shell.RcFile) }

var (
	themeRe   = regexp.MustCompile(`^\s*ZSH_THEME=`)
	pluginsRe = regexp.MustCompile(`^\s*plugins=\(`)
)

func (p *Provisioner) rcEdits() (edits []lineEdit) {
	sh := p.M.Shell
	rc := p.rcPath()
	if sh.Theme != "" {
		edits = append(edits, lineEdit{path: rc, match: themeRe, line: fmt.Sprintf("ZSH_THEME=%q", sh.Theme)})
	}
	if len(sh.Plugins) > 0 {
		names := []string{"git"}
		for _, pl := range sh.Plugins {
			names = append(names, fp.Base(pl.Dir))
		}
		edits = append(edits, lineEdit{path: rc, match: pluginsRe, line: "plugins=(" + strings.Join(names, " ") + ")"})
	}
	for _, a := range sh.Aliases {
		edits = append(edits, lineEdit{
			path:  rc,
			match: regexp.MustCompile(`^\s*alias\s+` + regexp.QuoteMeta(a.Name) + `=`),
			line:  "alias " + a.Name + "=" + shellQuote(a.Command),
		})
	}
	return
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// seedRc copies the framework's template to the rc file if there is no rc
// file yet, so the edits have something to edit.
func (p *Provisioner) seedRc() error {
	rc := p.rcPath()
	if _, err := os.Stat(rc); err == nil || p.M.Shell.Template == "" {
		return nil
	}
	tmpl, err := os.ReadFile(p.home(p.M.Shell.Template))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err = os.WriteFile(rc, tmpl, 0644); err != nil {
		return err
	}
	p.chown(rc)
	log.Logf("created %s from %s", rc, p.M.Shell.Template)
	return nil
}

func (p *Provisioner) shellPath() string {
	if path, err := lookPath(p.M.Shell.Package); err == nil {
		return path
	}
	return "/usr/bin/" + p.M.Shell.Package
}

//replaced in tests
var lookPath = exec.LookPath

// loginShell returns the operator's shell from the passwd database.
func (p *Provisioner) loginShell(ctx context.Context) (string, error) {
	out, err := log.CmdErr(exec.CommandContext(ctx, "getent", "passwd", p.User.Name))
	if err != nil {
		return "", err
	}
	fields := strings.Split(strings.TrimSpace(out), ":")
	if len(fields) < 7 {
		return "", fmt.Errorf("unexpected passwd entry %q", strings.TrimSpace(out))
	}
	return fields[6], nil
}

func (p *Provisioner) loginShellDone(ctx context.Context, _ *probe.Facts) (bool, error) {
	cur, err := p.loginShell(ctx)
	if err != nil {
		return false, err
	}
	return cur == p.shellPath(), nil
}

func (p *Provisioner) setLoginShell(ctx context.Context, _ *probe.Facts) error {
	sh := p.shellPath()
	if _, err := log.CmdErr(exec.CommandContext(ctx, "chsh", "-s", sh, p.User.Name)); err != nil {
		return err
	}
	log.Msgf("login shell for %s is now %s; it takes effect at the next login", p.User.Name, sh)
	return nil
}
