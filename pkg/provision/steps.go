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
	"os/exec"
	"strings"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/manifest"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/settings"
	"github.com/fedprov/fedprov/pkg/step"
)

// phases collects steps by phase, so that steps declared out of order in
// the manifest still run in their phase.
type phases map[step.Phase][]step.Step

func (ph phases) add(steps ...step.Step) {
	for _, s := range steps {
		ph[s.Phase] = append(ph[s.Phase], s)
	}
}

func (ph phases) list() (all []step.Step) {
	for p := step.PhaseUpdate; p <= step.PhaseFinalize; p++ {
		all = append(all, ph[p]...)
	}
	return
}

// Steps returns every step for the manifest, in phase order.
func (p *Provisioner) Steps() []step.Step {
	ph := phases{}
	ph.add(
		step.Step{Name: "system update", Phase: step.PhaseUpdate, Action: p.update},
		step.Step{Name: "reboot check", Phase: step.PhaseGate, Action: rebootGate},
		step.Step{Name: "desktop detection", Phase: step.PhaseDetect, Action: reportDesktop},
	)
	for _, g := range p.M.Packages {
		ph.add(p.groupStep(g))
	}
	if len(p.M.Fonts) > 0 {
		ph.add(step.Step{
			Name:   "fonts",
			Phase:  step.PhaseSetup,
			Done:   p.allInstalled(p.M.Fonts),
			Action: p.installFonts,
		})
	}
	ph.add(p.shellSteps()...)
	ph.add(p.tuningSteps()...)
	if len(p.M.Gnome) > 0 {
		ph.add(p.settingsStep("gnome settings", probe.GNOME, p.GSettings, p.M.Gnome))
	}
	if len(p.M.KDE) > 0 {
		ph.add(p.settingsStep("kde settings", probe.KDE, p.KConfig, p.M.KDE))
	}
	ph.add(p.repoSteps()...)
	if len(p.M.Remove) > 0 {
		ph.add(step.Step{
			Name:   "remove unwanted packages",
			Phase:  step.PhasePackages,
			Done:   p.noneInstalled(p.M.Remove),
			Action: func(ctx context.Context, _ *probe.Facts) error { return p.Packages.Remove(ctx, p.M.Remove...) },
		})
	}
	if len(p.M.Flatpak.Apps) > 0 {
		ph.add(step.Step{
			Name:   "flatpak apps",
			Phase:  step.PhaseApps,
			Done:   p.flatpaksInstalled,
			Action: func(ctx context.Context, _ *probe.Facts) error { return p.Flatpak.Install(ctx, p.M.Flatpak.Remote, p.M.Flatpak.Apps...) },
		})
	}
	for _, a := range p.M.Apps {
		ph.add(p.appStep(a))
	}
	for _, c := range p.M.Commands {
		s, err := c.Step(p.CacheDir())
		if err != nil {
			log.Warnf("ignoring command step: %s", err)
			continue
		}
		ph.add(s)
	}
	ph.add(p.finalSteps()...)
	return ph.list()
}

func (p *Provisioner) update(ctx context.Context, _ *probe.Facts) error {
	return p.Packages.Upgrade(ctx)
}

func rebootGate(_ context.Context, f *probe.Facts) error {
	if f.RebootRequired() {
		return step.Halt("A reboot is required: %s.\nReboot, then run fedprov again to continue.",
			strings.Join(f.RebootReasons(), "; "))
	}
	return nil
}

func reportDesktop(_ context.Context, f *probe.Facts) error {
	if f.Desktop() == probe.Unknown {
		log.Warnf("desktop environment not detected; GNOME and KDE steps will be skipped")
		return nil
	}
	log.Msgf("desktop environment: %s", f.Desktop())
	return nil
}

func desktopPredicate(name string) func(*probe.Facts) bool {
	switch name {
	case "gnome":
		return probe.IsDesktop(probe.GNOME)
	case "kde":
		return probe.IsDesktop(probe.KDE)
	}
	return nil
}

func (p *Provisioner) groupStep(g manifest.PackageGroup) step.Step {
	phase := step.PhasePackages
	if g.Phase == "setup" {
		phase = step.PhaseSetup
	}
	return step.Step{
		Name:    "packages: " + g.Name,
		Phase:   phase,
		Applies: desktopPredicate(g.Desktop),
		Done:    p.allInstalled(g.Packages),
		Action: func(ctx context.Context, _ *probe.Facts) error {
			return p.Packages.Install(ctx, g.Packages...)
		},
	}
}

// allInstalled is an idempotence predicate for a package list. Groups (@name)
// cannot be queried, so a list containing one is never done; dnf skips what
// it already has.
func (p *Provisioner) allInstalled(pkgs []string) func(context.Context, *probe.Facts) (bool, error) {
	return func(ctx context.Context, _ *probe.Facts) (bool, error) {
		for _, id := range pkgs {
			if strings.HasPrefix(id, "@") || !p.Packages.Installed(ctx, id) {
				return false, nil
			}
		}
		return true, nil
	}
}

func (p *Provisioner) noneInstalled(pkgs []string) func(context.Context, *probe.Facts) (bool, error) {
	return func(ctx context.Context, _ *probe.Facts) (bool, error) {
		for _, id := range pkgs {
			if p.Packages.Installed(ctx, id) {
				return false, nil
			}
		}
		return true, nil
	}
}

func (p *Provisioner) installFonts(ctx context.Context, _ *probe.Facts) error {
	if err := p.Packages.Install(ctx, p.M.Fonts...); err != nil {
		return err
	}
	p.fontsChanged = true
	return nil
}

func (p *Provisioner) flatpaksInstalled(ctx context.Context, _ *probe.Facts) (bool, error) {
	for _, id := range p.M.Flatpak.Apps {
		if !p.Flatpak.Installed(ctx, id) {
			return false, nil
		}
	}
	return true, nil
}

func (p *Provisioner) settingsStep(name string, d probe.Desktop, store settings.Store, list []manifest.Setting) step.Step {
	return step.Step{
		Name:    name,
		Phase:   step.PhaseOptimize,
		Applies: probe.IsDesktop(d),
		Done: func(ctx context.Context, _ *probe.Facts) (bool, error) {
			for _, s := range list {
				cur, err := store.Get(ctx, s.Namespace, s.Key)
				if err != nil {
					return false, err
				}
				if !settings.Same(cur, s.Value) {
					return false, nil
				}
			}
			return true, nil
		},
		Action: func(ctx context.Context, _ *probe.Facts) error {
			var errs []error
			for _, s := range list {
				if _, err := settings.Ensure(ctx, store, s.Namespace, s.Key, s.Value); err != nil {
					errs = append(errs, fmt.Errorf("%s %s: %w", s.Namespace, s.Key, err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func (p *Provisioner) repoSteps() (steps []step.Step) {
	r := p.M.Repos
	if len(r.RPMs) > 0 {
		steps = append(steps, step.Step{
			Name:  "repository packages",
			Phase: step.PhaseRepos,
			Done: func(ctx context.Context, _ *probe.Facts) (bool, error) {
				for _, rpm := range r.RPMs {
					if !p.Packages.Installed(ctx, rpm.Probe) {
						return false, nil
					}
				}
				return true, nil
			},
			Action: func(ctx context.Context, _ *probe.Facts) error {
				var errs []error
				for _, rpm := range r.RPMs {
					if err := p.Packages.AddRepoRPM(ctx, releasever(rpm.URL, p.Distro), rpm.Probe); err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			},
		})
	}
	if len(r.Files) > 0 {
		steps = append(steps, step.Step{
			Name:  "repository files",
			Phase: step.PhaseRepos,
			Done: func(context.Context, *probe.Facts) (bool, error) {
				for _, f := range r.Files {
					if !p.Packages.HasRepoFile(f.Name, f.Content) {
						return false, nil
					}
				}
				return true, nil
			},
			Action: func(context.Context, *probe.Facts) error {
				var errs []error
				for _, f := range r.Files {
					changed, err := p.Packages.AddRepoFile(f.Name, f.Content)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
					} else if changed {
						log.Msgf("added repository %s", f.Name)
					}
				}
				return errors.Join(errs...)
			},
		})
	}
	if len(r.Copr) > 0 {
		steps = append(steps, step.Step{
			Name:  "copr repositories",
			Phase: step.PhaseRepos,
			Done: func(context.Context, *probe.Facts) (bool, error) {
				for _, c := range r.Copr {
					if !p.Packages.CoprEnabled(c) {
						return false, nil
					}
				}
				return true, nil
			},
			Action: func(ctx context.Context, _ *probe.Facts) error {
				var errs []error
				for _, c := range r.Copr {
					if err := p.Packages.EnableCopr(ctx, c); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", c, err))
					}
				}
				return errors.Join(errs...)
			},
		})
	}
	if len(p.M.Flatpak.Remotes) > 0 {
		steps = append(steps, step.Step{
			Name:  "flatpak remotes",
			Phase: step.PhaseRepos,
			Done: func(ctx context.Context, _ *probe.Facts) (bool, error) {
				for _, rem := range p.M.Flatpak.Remotes {
					if !p.Flatpak.HasRemote(ctx, rem.Name) {
						return false, nil
					}
				}
				return true, nil
			},
			Action: func(ctx context.Context, _ *probe.Facts) error {
				var errs []error
				for _, rem := range p.M.Flatpak.Remotes {
					if err := p.Flatpak.AddRemote(ctx, rem.Name, rem.URL); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", rem.Name, err))
					}
				}
				return errors.Join(errs...)
			},
		})
	}
	return
}

// releasever expands $releasever, which dnf only does inside repo files.
func releasever(url string, d probe.Distro) string {
	if d.Version == "" {
		return url
	}
	return strings.ReplaceAll(url, "$releasever", d.Version)
}

func (p *Provisioner) finalSteps() []step.Step {
	return []step.Step{
		{
			Name:   "autoremove",
			Phase:  step.PhaseFinalize,
			Action: func(ctx context.Context, _ *probe.Facts) error { return p.Packages.Autoremove(ctx) },
		},
		{
			Name:   "unused flatpak runtimes",
			Phase:  step.PhaseFinalize,
			Action: func(ctx context.Context, _ *probe.Facts) error { return p.Flatpak.UninstallUnused(ctx) },
		},
		{
			Name:  "font cache",
			Phase: step.PhaseFinalize,
			Done: func(context.Context, *probe.Facts) (bool, error) {
				return !p.fontsChanged, nil
			},
			Action: func(ctx context.Context, _ *probe.Facts) error {
				_, err := log.CmdErr(exec.CommandContext(ctx, "fc-cache", "-f"))
				return err
			},
		},
		{
			Name:    "home ownership",
			Phase:   step.PhaseFinalize,
			Applies: func(f *probe.Facts) bool { return f.User().Sudo },
			Action:  p.fixOwnership,
		},
	}
}
