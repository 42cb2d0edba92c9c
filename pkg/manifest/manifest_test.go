// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package manifest

import (
	"errors"
	"os"
	fp "path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tl "github.com/fedprov/fedprov/pkg/log/testlog"
	"github.com/fedprov/fedprov/pkg/step/cmdstep"
)

func TestDefault(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	m, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"fedora"}, m.Distros)
	assert.Equal(t, "kernel-core", m.KernelPackage)
	assert.Equal(t, "/etc/dnf/dnf.conf", m.Dnf.Conf)
	assert.Equal(t, 10, m.Dnf.MaxParallelDownloads)
	require.NotEmpty(t, m.Sysctl)
	assert.Equal(t, "/etc/sysctl.conf", m.Sysctl[0].Conf)
	assert.Equal(t, "flathub", m.Flatpak.Remote)
	assert.Equal(t, ".zshrc", m.Shell.RcFile)
	require.NotNil(t, m.Shell.Framework)
	assert.NotEmpty(t, m.Gnome)
	assert.NotEmpty(t, m.KDE)

	var desktops []string
	for _, g := range m.Packages {
		if g.Desktop != "" {
			desktops = append(desktops, g.Desktop)
		}
	}
	assert.ElementsMatch(t, []string{"gnome", "kde"}, desktops)

	kinds := map[string]bool{}
	for _, a := range m.Apps {
		kinds[a.Kind] = true
	}
	assert.True(t, kinds["tarball"] && kinds["rpm"] && kinds["script"], "%v", kinds)
	for _, c := range m.Commands {
		_, err := c.Step("")
		assert.NoError(t, err, c.Name)
	}
}

func TestLoad(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	dir := t.TempDir()
	path := fp.Join(dir, "m.yaml")
	doc := `
distros: [fedora, nobara]
critical_packages: []
commands:
  - name: hello
    phase: packages
    commands:
      - command: echo hi
        exit_status: dontcare
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"fedora", "nobara"}, m.Distros)
	assert.Empty(t, m.CriticalPackages)
	require.Len(t, m.Commands, 1)
	assert.Equal(t, cmdstep.ESDontCare, m.Commands[0].Commands[0].ExitStatus)

	_, err = Load(fp.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, EInvalid))
}

func TestInvalid(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	for name, doc := range map[string]string{
		"not yaml":       "distros: [fedora\n",
		"no distros":     "fonts: [a]\n",
		"unknown key":    "distros: [fedora]\nflavour: mint\n",
		"bad desktop":    "distros: [fedora]\npackages:\n  - name: x\n    desktop: xfce\n    packages: [a]\n",
		"bad app kind":   "distros: [fedora]\napps:\n  - id: x\n    kind: deb\n    url: https://example.com/x.deb\n",
		"bad copr":       "distros: [fedora]\nrepos:\n  copr: [nouser]\n",
		"json no path":   "distros: [fedora]\napps:\n  - id: x\n    kind: rpm\n    probe: json\n    url: https://example.com/api\n",
		"tarball nodest": "distros: [fedora]\napps:\n  - id: x\n    kind: tarball\n    url: https://example.com/x.tgz\n",
		"dup app":        "distros: [fedora]\napps:\n  - {id: x, kind: rpm, url: 'https://a/x.rpm'}\n  - {id: x, kind: rpm, url: 'https://a/y.rpm'}\n",
		"kde namespace":  "distros: [fedora]\nkde:\n  - {namespace: kdeglobals, key: a, value: b}\n",
		"exit status":    "distros: [fedora]\ncommands:\n  - name: x\n    commands:\n      - {command: x, exit_status: maybe}\n",
		"gate phase":     "distros: [fedora]\ncommands:\n  - name: x\n    phase: gate\n    commands:\n      - {command: x}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.True(t, errors.Is(err, EInvalid), "%v", err)
		})
	}
}

func TestSchemaCompiles(t *testing.T) {
	_, err := compile()
	require.NoError(t, err)
	assert.Contains(t, string(Schema()), `"Manifest"`)
}
