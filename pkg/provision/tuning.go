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

	futil "github.com/fedprov/fedprov/pkg/fileutil"
	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/step"
)

// lineEdit is one fileutil.EnsureLine call.
type lineEdit struct {
	path  string
	match *regexp.Regexp
	line  string
	mode  futil.Mode
}

// keyEdit replaces any "key = ..." line, spaces optional, with line.
func keyEdit(path, key, line string) lineEdit {
	return lineEdit{
		path:  path,
		match: regexp.MustCompile(`^\s*` + regexp.QuoteMeta(key) + `\s*=`),
		line:  line,
	}
}

func editsDone(edits []lineEdit) (bool, error) {
	for _, e := range edits {
		ok, err := futil.LineSatisfied(e.path, e.match, e.line, e.mode)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func applyEdits(edits []lineEdit) error {
	var errs []error
	for _, e := range edits {
		chg, err := futil.EnsureLine(e.path, e.match, e.line, e.mode)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", e.path, err))
		case chg == futil.ChangeSkipped:
			log.Warnf("%s does not exist, not setting %s", e.path, e.line)
		case chg.Changed():
			log.Logf("%s: %s %s", e.path, chg, e.line)
		}
	}
	return errors.Join(errs...)
}

// editStep is a step whose whole job is a set of line edits.
func editStep(name string, phase step.Phase, edits []lineEdit) step.Step {
	return step.Step{
		Name:  name,
		Phase: phase,
		Done: func(context.Context, *probe.Facts) (bool, error) {
			return editsDone(edits)
		},
		Action: func(context.Context, *probe.Facts) error {
			return applyEdits(edits)
		},
	}
}

func (p *Provisioner) dnfEdits() (edits []lineEdit) {
	d := p.M.Dnf
	if d.MaxParallelDownloads > 0 {
		edits = append(edits, keyEdit(d.Conf, "max_parallel_downloads", fmt.Sprintf("max_parallel_downloads=%d", d.MaxParallelDownloads)))
	}
	if d.FastestMirror {
		edits = append(edits, keyEdit(d.Conf, "fastestmirror", "fastestmirror=True"))
	}
	if d.DefaultYes {
		edits = append(edits, keyEdit(d.Conf, "defaultyes", "defaultyes=True"))
	}
	return
}

func (p *Provisioner) tuningSteps() (steps []step.Step) {
	if edits := p.dnfEdits(); len(edits) > 0 {
		steps = append(steps, editStep("dnf tuning", step.PhaseOptimize, edits))
	}
	if len(p.M.Sysctl) > 0 {
		var edits []lineEdit
		for _, s := range p.M.Sysctl {
			edits = append(edits, keyEdit(s.Conf, s.Key, s.Key+" = "+s.Value))
		}
		st := editStep("kernel tunables", step.PhaseOptimize, edits)
		st.Action = func(ctx context.Context, _ *probe.Facts) error {
			if err := applyEdits(edits); err != nil {
				return err
			}
			//persisted above; also apply now
			var errs []error
			for _, s := range p.M.Sysctl {
				if _, err := log.CmdErr(exec.CommandContext(ctx, "sysctl", "-w", s.Key+"="+s.Value)); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}
		steps = append(steps, st)
	}
	if len(p.M.Autostart) > 0 {
		steps = append(steps, step.Step{
			Name:   "autostart suppression",
			Phase:  step.PhaseOptimize,
			Done:   p.autostartDone,
			Action: p.suppressAutostart,
		})
	}
	return
}

func (p *Provisioner) autostartDir() string { return p.home(".config", "autostart") }

var hiddenRe = regexp.MustCompile(`^\s*Hidden\s*=`)

// autostart entries that exist system-wide, paired with the user override
// that hides each
func (p *Provisioner) autostartEdits() (edits []lineEdit) {
	for _, name := range p.M.Autostart {
		if _, err := os.Stat(fp.Join(p.Autostart, name)); err != nil {
			continue
		}
		edits = append(edits, lineEdit{path: fp.Join(p.autostartDir(), name), match: hiddenRe, line: "Hidden=true"})
	}
	return
}

func (p *Provisioner) autostartDone(context.Context, *probe.Facts) (bool, error) {
	return editsDone(p.autostartEdits())
}

// A user entry in ~/.config/autostart replaces the system one of the same
// name; a minimal one with Hidden=true disables it.
func (p *Provisioner) suppressAutostart(context.Context, *probe.Facts) error {
	edits := p.autostartEdits()
	if len(edits) == 0 {
		log.Logf("no listed autostart entries are installed")
		return nil
	}
	if err := p.mkdirHome(p.autostartDir()); err != nil {
		return err
	}
	for _, e := range edits {
		if _, err := os.Stat(e.path); err == nil {
			continue
		}
		content := fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nHidden=true\n", fp.Base(e.path))
		if err := os.WriteFile(e.path, []byte(content), 0644); err != nil {
			return err
		}
		p.chown(e.path)
	}
	return applyEdits(edits)
}

// mkdirHome creates dir under the operator's home, giving any created dirs to
// the operator.
func (p *Provisioner) mkdirHome(dir string) error {
	var created []string
	for d := dir; len(d) > len(p.User.Home); d = fp.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		created = append(created, d)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, d := range created {
		p.chown(d)
	}
	return nil
}

func (p *Provisioner) chown(path string) {
	if p.User.Sudo {
		futil.ChownNew(path, p.User.Uid, p.User.Gid)
	}
}

// fixOwnership hands fedprov's own dirs under home to the operator, in case
// anything in them was created as root.
func (p *Provisioner) fixOwnership(context.Context, *probe.Facts) error {
	var errs []error
	for _, dir := range []string{p.home(".cache", "fedprov"), p.AppsDir(), p.BinDir(), p.autostartDir(), p.home(".local", "state", "fedprov")} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := futil.ChownTree(dir, p.User.Uid, p.User.Gid); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
