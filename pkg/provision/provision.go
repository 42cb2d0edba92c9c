// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package provision turns a manifest into the phase-ordered list of
// provisioning steps and runs it: update, reboot gate, desktop detection,
// setup, tuning, repositories, packages, applications and finalization.
package provision

import (
	"context"
	"os"
	fp "path/filepath"

	futil "github.com/fedprov/fedprov/pkg/fileutil"
	"github.com/fedprov/fedprov/pkg/flatpak"
	"github.com/fedprov/fedprov/pkg/history"
	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/manifest"
	"github.com/fedprov/fedprov/pkg/net"
	"github.com/fedprov/fedprov/pkg/net/xfer"
	"github.com/fedprov/fedprov/pkg/pkgmgr"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/settings"
	"github.com/fedprov/fedprov/pkg/step"
	"github.com/fedprov/fedprov/pkg/vcs"
)

const LogPrefix = "fedprov"

// Options for Main. Zero values select the real collaborators and paths.
type Options struct {
	ManifestPath string
	LogDir       string //default: the operator's home
	OSRelease    string //default probe.DefaultOSRelease
	Env          probe.Getenv
	ProcRoot     string

	User      *probe.User //default probe.Operator
	Packages  pkgmgr.Manager
	Flatpak   flatpak.Client
	Git       vcs.Repo
	Fetcher   xfer.Fetcher
	GSettings settings.Store
	KConfig   settings.Store
	Online    func() bool
	Detect    func(context.Context, probe.DetectOpts) *probe.Facts
	Autostart string //system autostart dir, default /etc/xdg/autostart
}

// Provisioner holds the manifest and the collaborators its steps use.
type Provisioner struct {
	M         *manifest.Manifest
	User      probe.User
	Distro    probe.Distro
	Packages  pkgmgr.Manager
	Flatpak   flatpak.Client
	Git       vcs.Repo
	Fetcher   xfer.Fetcher
	GSettings settings.Store
	KConfig   settings.Store
	History   *history.History
	Env       probe.Getenv
	ProcRoot  string
	Online    func() bool
	Detect    func(context.Context, probe.DetectOpts) *probe.Facts
	Autostart string

	manifestName string
	fontsChanged bool
}

// Main loads the manifest, attaches the run log, checks the distribution and
// runs every step. Problems found before the first step are fatal; the return
// value is the process exit code for when the fatal action returns.
func Main(ctx context.Context, opts Options) int {
	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		log.Fatalf("%s", err)
		return 1
	}
	if opts.Env == nil {
		opts.Env = os.Getenv
	}
	var user probe.User
	if opts.User != nil {
		user = *opts.User
	} else if user, err = probe.Operator(opts.Env); err != nil {
		log.Fatalf("cannot determine who is being provisioned for: %s", err)
		return 1
	}

	if log.GetPrefix() == "" {
		log.SetPrefix(LogPrefix)
	}
	logDir := opts.LogDir
	if logDir == "" {
		logDir = user.Home
	}
	if path, err := log.AddFileLog(logDir); err != nil {
		log.Warnf("not writing a log file in %s: %s", logDir, err)
	} else if user.Sudo {
		futil.ChownNew(path, user.Uid, user.Gid)
	}
	log.FlushMemLog()

	osRelease := opts.OSRelease
	if osRelease == "" {
		osRelease = probe.DefaultOSRelease
	}
	distro, err := probe.CheckDistro(osRelease, m.Distros...)
	if err != nil {
		log.Fatalf("%s", err)
		return 1
	}
	log.Logf("distribution: %s", distro)

	p := New(m, user, distro, opts)
	p.manifestName = opts.ManifestPath
	return ExitCode(p.Run(ctx))
}

// New creates a Provisioner, filling in real collaborators for any that opts
// leaves nil.
func New(m *manifest.Manifest, user probe.User, distro probe.Distro, opts Options) *Provisioner {
	p := &Provisioner{
		M:         m,
		User:      user,
		Distro:    distro,
		Packages:  opts.Packages,
		Flatpak:   opts.Flatpak,
		Git:       opts.Git,
		Fetcher:   opts.Fetcher,
		GSettings: opts.GSettings,
		KConfig:   opts.KConfig,
		Env:       opts.Env,
		ProcRoot:  opts.ProcRoot,
		Online:    opts.Online,
		Detect:    opts.Detect,
		Autostart: opts.Autostart,
	}
	if p.Packages == nil {
		p.Packages = &pkgmgr.Dnf{}
	}
	if p.Flatpak == nil {
		p.Flatpak = &flatpak.Flatpak{}
	}
	if p.Git == nil {
		p.Git = &vcs.Git{Shallow: true, As: &p.User}
	}
	if p.Fetcher == nil {
		p.Fetcher = xfer.New()
	}
	if p.GSettings == nil {
		p.GSettings = &settings.GSettings{As: &p.User}
	}
	if p.KConfig == nil {
		p.KConfig = &settings.KConfig{As: &p.User}
	}
	if p.Env == nil {
		p.Env = os.Getenv
	}
	if p.Online == nil {
		p.Online = net.HaveDefaultRoute
	}
	if p.Detect == nil {
		p.Detect = probe.Detect
	}
	if p.Autostart == "" {
		p.Autostart = "/etc/xdg/autostart"
	}
	p.History = history.Open(history.DefaultPath(user.Home))
	p.History.Owner = &p.User
	return p
}

func (p *Provisioner) home(elem ...string) string {
	return fp.Join(append([]string{p.User.Home}, elem...)...)
}

// CacheDir holds downloaded artifacts.
func (p *Provisioner) CacheDir() string { return p.home(".cache", "fedprov", "artifacts") }

// AppsDir is where tarball and zip applications are unpacked.
func (p *Provisioner) AppsDir() string { return p.home(".local", "opt") }

// BinDir receives symlinks to application entrypoints.
func (p *Provisioner) BinDir() string { return p.home(".local", "bin") }

// Run executes the update phase, captures Facts, then runs everything else.
// The summary is reported and recorded in the run history on return.
func (p *Provisioner) Run(ctx context.Context) (sum step.Summary) {
	if notice := p.History.Notice(); notice != "" {
		log.Msgf("%s", notice)
	}
	p.History.Begin(p.manifestName)
	defer func() {
		p.History.Finish(sum)
		sum.Report(log.FilePath())
	}()

	online := p.Online()
	if !online {
		log.Warnf("no default network route; downloads will probably fail")
	}
	snap := probe.SnapshotCritical(ctx, p.M.CriticalPackages)

	var early, rest []step.Step
	for _, s := range p.Steps() {
		if s.Phase == step.PhaseUpdate {
			early = append(early, s)
		} else {
			rest = append(rest, s)
		}
	}
	sq := &step.Sequencer{Observer: p.History}
	sum = sq.Run(ctx, early, nil)
	if sum.Halted || sum.Interrupted {
		return
	}

	facts := p.Detect(ctx, probe.DetectOpts{
		Distro:   p.Distro,
		Env:      p.Env,
		ProcRoot: p.ProcRoot,
		Reboot:   probe.RebootSignals{KernelPkg: p.M.KernelPackage, Critical: snap},
		User:     p.User,
		Online:   func() bool { return online },
	})
	more := sq.Run(ctx, rest, facts)
	sum.Results = append(sum.Results, more.Results...)
	sum.Halted, sum.HaltReason, sum.Interrupted = more.Halted, more.HaltReason, more.Interrupted
	return
}

// ExitCode maps a summary to the process exit status. Failed steps and a
// reboot pause are normal outcomes; only an interrupted run is not.
func ExitCode(sum step.Summary) int {
	if sum.Interrupted {
		return 130
	}
	return 0
}
