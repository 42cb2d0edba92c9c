// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package probe

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/fedprov/fedprov/pkg/fileutil/kver"
	"github.com/fedprov/fedprov/pkg/log"
)

// Snapshot maps package name to installed version-release.
type Snapshot map[string]string

//replaced in tests
var (
	lookPath      = osLookPath
	runningKernel = unameRelease
)

var osLookPath = exec.LookPath

func unameRelease() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		log.Logf("uname: %s", err)
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}

// rpmQuery returns one line of output per installed instance of pkg.
func rpmQuery(ctx context.Context, pkg, format string) []string {
	cmd := exec.CommandContext(ctx, "rpm", "-q", pkg, "--qf", format+"\n")
	out, ok := log.Cmd(cmd)
	if !ok {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// SnapshotCritical records the installed versions of pkgs. Call before
// updating; compare the result with Changed afterwards.
func SnapshotCritical(ctx context.Context, pkgs []string) Snapshot {
	snap := make(Snapshot, len(pkgs))
	for _, p := range pkgs {
		vers := rpmQuery(ctx, p, "%{VERSION}-%{RELEASE}")
		sort.Strings(vers)
		snap[p] = strings.Join(vers, ",")
	}
	return snap
}

// Changed lists packages whose version differs between before and after.
// Packages absent from before are ignored.
func (before Snapshot) Changed(after Snapshot) (changed []string) {
	for p, v := range before {
		if a, ok := after[p]; ok && a != v {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return
}

// RebootSignals gathers the reasons a reboot is needed. An empty result
// means none was found.
type RebootSignals struct {
	KernelPkg string   //package providing kernels, normally kernel-core
	Critical  Snapshot //taken before the update phase; may be nil
}

type rebootState struct {
	running, installed string
	reasons            []string
}

func (rs RebootSignals) check(ctx context.Context) (st rebootState) {
	pkg := rs.KernelPkg
	if pkg == "" {
		pkg = "kernel-core"
	}
	st.running = runningKernel()
	st.installed = kver.Newest(rpmQuery(ctx, pkg, "%{VERSION}-%{RELEASE}.%{ARCH}"))
	if st.running != "" && st.installed != "" && kver.Compare(st.installed, st.running) > 0 {
		st.reasons = append(st.reasons, fmt.Sprintf("kernel %s is installed but %s is running", st.installed, st.running))
	}
	if reason := needsRestarting(ctx); reason != "" {
		st.reasons = append(st.reasons, reason)
	}
	if rs.Critical != nil {
		pkgs := make([]string, 0, len(rs.Critical))
		for p := range rs.Critical {
			pkgs = append(pkgs, p)
		}
		if changed := rs.Critical.Changed(SnapshotCritical(ctx, pkgs)); len(changed) > 0 {
			st.reasons = append(st.reasons, "updated: "+strings.Join(changed, ", "))
		}
	}
	return
}

// needs-restarting -r exits 1 when a reboot is needed
func needsRestarting(ctx context.Context) string {
	if _, err := lookPath("needs-restarting"); err != nil {
		return ""
	}
	cmd := exec.CommandContext(ctx, "needs-restarting", "-r")
	out, ok := log.Cmd(cmd)
	if ok {
		return ""
	}
	if strings.Contains(out, "Reboot is required") ||
		(cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1) {
		return "needs-restarting reports core libraries or services were updated"
	}
	return ""
}
