// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package cmdstep

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/log/testlog"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/step"
)

func TestRun(t *testing.T) {
	var s Spec
	var err error
	ctx := context.Background()
	t.Run("Execute", func(t *testing.T) {
		//test that a command will execute - in this case, printing to stdout
		//also tests ESDontCare + success
		tlog := testlog.NewTestLog(t, true, false)
		s = Spec{
			Name:     "echo",
			Commands: []Cmd{{Command: `echo -e 'this\040works'`, ExitStatus: ESDontCare}},
			Verbose:  true,
		}
		err = s.Run(ctx, TmplData{})
		tlog.Freeze()
		require.NoError(t, err)
		l := tlog.String()
		//Running [echo -e this\040works]...
		assert.Contains(t, l, "040works", "has input string been changed? needs to include an escape sequence...")
		assert.Contains(t, l, "command output: this works")
	})
	t.Run("ShouldFail", func(t *testing.T) {
		s.Commands[0].ExitStatus = ESMustFail
		tlog := testlog.NewTestLog(t, true, false)
		err = s.Run(ctx, TmplData{})
		tlog.Freeze()
		assert.ErrorIs(t, err, EEXECSUCCESS)
	})
	t.Run("DoesFail", func(t *testing.T) {
		s.Commands[0].Command = `false`
		tlog := testlog.NewTestLog(t, true, false)
		err = s.Run(ctx, TmplData{})
		tlog.Freeze()
		assert.NoError(t, err)
	})
	t.Run("ShouldSucceed", func(t *testing.T) {
		s.Commands[0].ExitStatus = ESMustSucceed
		tlog := testlog.NewTestLog(t, true, false)
		err = s.Run(ctx, TmplData{})
		tlog.Freeze()
		assert.ErrorIs(t, err, EEXECFAIL)
	})
	t.Run("FailsDontCare", func(t *testing.T) {
		s.Commands[0].ExitStatus = ESDontCare
		tlog := testlog.NewTestLog(t, true, false)
		err = s.Run(ctx, TmplData{})
		tlog.Freeze()
		assert.NoError(t, err)
	})
}

func TestTemplate(t *testing.T) {
	tlog := testlog.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(testlog.CmdMap{}, testlog.OK)

	s := Spec{Name: "tmpl", Commands: []Cmd{{Command: `ln -sf "{{.CacheDir}}/x" "{{.Home}}/.local/bin/x"`}}}
	require.NoError(t, s.Run(context.Background(), TmplData{Home: "/home/alex", CacheDir: "/home/alex/.cache/fedprov"}))
	assert.Equal(t, [][]string{{"ln", "-sf", "/home/alex/.cache/fedprov/x", "/home/alex/.local/bin/x"}}, tlog.Commands())

	s.Commands[0].Command = "echo {{.Nope}}"
	assert.Error(t, s.Run(context.Background(), TmplData{}))
	s.Commands[0].Command = "   "
	assert.ErrorIs(t, s.Run(context.Background(), TmplData{}), ENoCommand)
}

func TestAddPath(t *testing.T) {
	tlog := testlog.NewTestLogNoBG(t)
	defer tlog.Freeze()
	var env []string
	log.Cmd = func(cmd *exec.Cmd) (string, bool) {
		env = cmd.Env
		return "", true
	}
	s := Spec{Name: "path", Commands: []Cmd{{Command: "tool", AddPath: "{{.Home}}/bin"}}}
	require.NoError(t, s.Run(context.Background(), TmplData{Home: "/h"}))
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = e
		}
	}
	assert.True(t, strings.HasPrefix(path, "PATH=/h/bin"), path)
}

const manifestSnippet = `
name: enable fstrim
phase: optimize
check: systemctl is-enabled fstrim.timer
commands:
  - command: systemctl enable --now fstrim.timer
  - command: systemctl status fstrim.timer
    exit_status: dontcare
`

func TestStep(t *testing.T) {
	tlog := testlog.NewTestLogNoBG(t)
	defer tlog.Freeze()

	var s Spec
	require.NoError(t, yaml.Unmarshal([]byte(manifestSnippet), &s))
	assert.Equal(t, ESDontCare, s.Commands[1].ExitStatus)
	st, err := s.Step("/cache")
	require.NoError(t, err)
	assert.Equal(t, step.PhaseOptimize, st.Phase)
	assert.Nil(t, st.Applies)

	facts := probe.NewFacts(probe.FactsData{})
	tlog.UseFakeCmdHijacker(testlog.CmdMap{
		testlog.CmdKey("systemctl", "is-enabled", "fstrim.timer"): testlog.Stub(testlog.Fail, testlog.OK),
	}, testlog.OK)
	done, err := st.Done(context.Background(), facts)
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, st.Action(context.Background(), facts))
	done, err = st.Done(context.Background(), facts)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = Spec{Name: "x", Phase: "later"}.Step("")
	assert.Error(t, err)
	_, err = Spec{Name: "x", Desktop: "xfce"}.Step("")
	assert.Error(t, err)
	kde, err := Spec{Name: "x", Desktop: "KDE"}.Step("")
	require.NoError(t, err)
	assert.False(t, kde.Applies(facts))
}
