// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package history

import (
	"errors"
	"os"
	fp "path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tl "github.com/fedprov/fedprov/pkg/log/testlog"
	"github.com/fedprov/fedprov/pkg/step"
)

func TestMoaf(t *testing.T) {
	a, b, c := &Run{ID: "a"}, &Run{ID: "b"}, &Run{ID: "c"}
	rl := RunList{a, b}
	rl.moveOrAddFront(c)
	rl.moveOrAddFront(b)
	var ids []string
	for _, r := range rl {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestRoundTrip(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	path := DefaultPath(t.TempDir())
	h := Open(path)
	assert.Nil(t, h.Previous())
	assert.Empty(t, h.Notice())

	r := h.Begin("default")
	require.NotEmpty(t, r.ID)
	h.StepFinished(step.Result{Name: "update", Status: step.Succeeded})
	h.StepFinished(step.Result{Name: "reboot gate", Status: step.Halted, Err: step.Halt("new kernel")})

	//killed here: the file already has the partial record
	h2 := Open(path)
	require.Len(t, h2.Runs(), 1)
	assert.Equal(t, r.ID, h2.Runs()[0].ID)
	assert.False(t, h2.Runs()[0].Complete())
	assert.Equal(t, "reboot gate", h2.Runs()[0].LastStep)

	h.Finish(step.Summary{
		Results: []step.Result{
			{Name: "update", Status: step.Succeeded},
			{Name: "reboot gate", Status: step.Halted},
		},
		Halted:     true,
		HaltReason: "new kernel",
	})

	h3 := Open(path)
	h3.Begin("default")
	require.Len(t, h3.Runs(), 2)
	prev := h3.Previous()
	require.NotNil(t, prev)
	assert.Equal(t, r.ID, prev.ID)
	assert.True(t, prev.Complete())
	assert.Equal(t, 1, prev.Succeeded)
	assert.Contains(t, h3.Notice(), "paused for reboot: new kernel")
}

func TestNotice(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	h := Open(fp.Join(t.TempDir(), histName))
	h.Begin("")
	h.StepFinished(step.Result{Name: "packages", Status: step.Failed, Err: errors.New("x")})
	assert.Empty(t, h.Notice(), "the current run is not the previous one")
	h.Finish(step.Summary{Results: []step.Result{{Name: "packages", Status: step.Failed}}})

	h.Begin("")
	assert.Contains(t, h.Notice(), `1 failed step(s): [packages]`)
	assert.Equal(t, []string{"packages"}, h.Previous().Failures)

	h.Finish(step.Summary{Interrupted: true})
	h.Begin("")
	assert.Contains(t, h.Notice(), "was interrupted")

	h.StepFinished(step.Result{Name: "fonts", Status: step.Succeeded})
	h.Begin("")
	assert.Contains(t, h.Notice(), `did not finish; last completed step was "fonts"`)
}

func TestMaxRuns(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	old := MaxRuns
	MaxRuns = 3
	defer func() { MaxRuns = old }()

	path := fp.Join(t.TempDir(), histName)
	h := Open(path)
	for i := 0; i < 5; i++ {
		h.Begin("")
		h.Finish(step.Summary{})
	}
	assert.Len(t, Open(path).Runs(), 3)
}

func TestCorrupt(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	dir := t.TempDir()
	path := fp.Join(dir, histName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	h := Open(path)
	assert.Empty(t, h.Runs())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), histName+"_bad"), entries[0].Name())
	assert.Len(t, tlog.Filter(tl.FilterPfx(tl.PfxWarn)), 1)
}
