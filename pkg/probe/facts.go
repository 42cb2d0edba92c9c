// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package probe

import (
	"context"
	"os"
	"strings"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/net"
)

// FactsData is the raw content of Facts.
type FactsData struct {
	Distro          Distro
	DistroMatch     bool
	Desktop         Desktop
	RebootReasons   []string
	RunningKernel   string
	InstalledKernel string
	Online          bool
	User            User
}

// Facts is a read-only snapshot of the host, captured once after the update
// phase and shared by every step.
type Facts struct {
	d FactsData
}

// NewFacts wraps d. Detect is the normal way to obtain Facts; this exists for
// callers that already know the answers, such as tests.
func NewFacts(d FactsData) *Facts {
	d.RebootReasons = append([]string(nil), d.RebootReasons...)
	return &Facts{d: d}
}

func (f *Facts) Distro() Distro          { return f.d.Distro }
func (f *Facts) DistroMatch() bool       { return f.d.DistroMatch }
func (f *Facts) Desktop() Desktop        { return f.d.Desktop }
func (f *Facts) RebootRequired() bool    { return len(f.d.RebootReasons) > 0 }
func (f *Facts) RunningKernel() string   { return f.d.RunningKernel }
func (f *Facts) InstalledKernel() string { return f.d.InstalledKernel }
func (f *Facts) Online() bool            { return f.d.Online }
func (f *Facts) User() User              { return f.d.User }

func (f *Facts) RebootReasons() []string {
	return append([]string(nil), f.d.RebootReasons...)
}

// IsDesktop returns a predicate usable as a step's Applies.
func IsDesktop(d Desktop) func(*Facts) bool {
	return func(f *Facts) bool { return f.Desktop() == d }
}

func (f *Facts) String() string {
	var sb strings.Builder
	sb.WriteString("distro=" + f.d.Distro.String())
	sb.WriteString(" desktop=" + f.d.Desktop.String())
	sb.WriteString(" kernel=" + f.d.RunningKernel)
	if f.d.InstalledKernel != "" && f.d.InstalledKernel != f.d.RunningKernel {
		sb.WriteString(" (installed " + f.d.InstalledKernel + ")")
	}
	if f.RebootRequired() {
		sb.WriteString(" reboot=required")
	}
	if !f.d.Online {
		sb.WriteString(" offline")
	}
	sb.WriteString(" user=" + f.d.User.Name)
	return sb.String()
}

type DetectOpts struct {
	Distro   Distro //as returned by CheckDistro
	Env      Getenv //defaults to os.Getenv
	ProcRoot string //defaults to /proc
	Reboot   RebootSignals
	User     User
	Online   func() bool //defaults to net.HaveDefaultRoute
}

// Detect gathers Facts. It does not fail; anything it cannot determine is
// logged and left at the zero value.
func Detect(ctx context.Context, opts DetectOpts) *Facts {
	if opts.Env == nil {
		opts.Env = os.Getenv
	}
	if opts.Online == nil {
		opts.Online = net.HaveDefaultRoute
	}
	d := FactsData{
		Distro:      opts.Distro,
		DistroMatch: true,
		Desktop:     DetectDesktop(opts.Env, opts.ProcRoot),
		Online:      opts.Online(),
		User:        opts.User,
	}
	rs := opts.Reboot.check(ctx)
	d.RunningKernel, d.InstalledKernel, d.RebootReasons = rs.running, rs.installed, rs.reasons
	f := NewFacts(d)
	log.Logf("facts: %s", f)
	return f
}
