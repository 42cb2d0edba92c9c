// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package flatpak

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tl "github.com/fedprov/fedprov/pkg/log/testlog"
)

func TestInstall(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(tl.CmdMap{
		tl.CmdKey("flatpak", "info", "--system", "org.videolan.VLC"): tl.Stub(tl.OK),
	}, tl.Fail)
	fp := &Flatpak{}

	err := fp.Install(context.Background(), "flathub", "org.videolan.VLC", "com.spotify.Client")
	require.Error(t, err, "install is not stubbed so it fails")
	cmds := tlog.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, []string{"flatpak", "install", "--system", "-y", "--noninteractive", "flathub", "com.spotify.Client"}, cmds[2])
}

func TestRemoteAndCleanup(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)
	fp := &Flatpak{User: true}

	require.NoError(t, fp.AddRemote(context.Background(), "flathub", "https://dl.flathub.org/repo/flathub.flatpakrepo"))
	require.NoError(t, fp.UninstallUnused(context.Background()))
	assert.Equal(t, 1, tlog.Ran("flatpak", "remote-add", "--user", "--if-not-exists", "flathub"))
	assert.Equal(t, 1, tlog.Ran("flatpak", "uninstall", "--user"))
}

func TestHasRemote(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(tl.CmdMap{
		tl.CmdKey("flatpak", "remotes", "--system", "--columns=name"): tl.Stub(tl.Result{Res: "fedora\nflathub\n", Success: true}),
	}, tl.Fail)
	fp := &Flatpak{}

	assert.True(t, fp.HasRemote(context.Background(), "flathub"))
	assert.False(t, fp.HasRemote(context.Background(), "flathub-beta"))
	assert.False(t, (&Flatpak{User: true}).HasRemote(context.Background(), "flathub"), "listing fails")
	assert.Empty(t, tlog.WithoutContext())
}
