// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package provision

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	fp "path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedprov/fedprov/pkg/fetch"
	"github.com/fedprov/fedprov/pkg/history"
	"github.com/fedprov/fedprov/pkg/log"
	tl "github.com/fedprov/fedprov/pkg/log/testlog"
	"github.com/fedprov/fedprov/pkg/manifest"
	"github.com/fedprov/fedprov/pkg/pkgmgr"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/step"
	"github.com/fedprov/fedprov/pkg/step/cmdstep"
	"github.com/fedprov/fedprov/pkg/vcs"
)

type fakePkgs struct {
	installed map[string]bool
	fail      map[string]bool //Install fails if any of these is requested
	repos     map[string]string
	copr      map[string]bool
	calls     []string
}

var _ pkgmgr.Manager = (*fakePkgs)(nil)

func newFakePkgs() *fakePkgs {
	return &fakePkgs{installed: map[string]bool{}, fail: map[string]bool{}, repos: map[string]string{}, copr: map[string]bool{}}
}

func (f *fakePkgs) Upgrade(context.Context) error {
	f.calls = append(f.calls, "upgrade")
	return nil
}

func (f *fakePkgs) Install(_ context.Context, ids ...string) error {
	f.calls = append(f.calls, "install "+strings.Join(ids, " "))
	for _, id := range ids {
		if f.fail[id] {
			return errors.New("No match for argument: " + id)
		}
	}
	for _, id := range ids {
		f.installed[id] = true
	}
	return nil
}

func (f *fakePkgs) InstallFiles(_ context.Context, paths ...string) error {
	f.calls = append(f.calls, "install-files "+strings.Join(paths, " "))
	return nil
}

func (f *fakePkgs) Remove(_ context.Context, ids ...string) error {
	f.calls = append(f.calls, "remove "+strings.Join(ids, " "))
	for _, id := range ids {
		delete(f.installed, id)
	}
	return nil
}

func (f *fakePkgs) Installed(_ context.Context, id string) bool { return f.installed[id] }

func (f *fakePkgs) AddRepoFile(name, content string) (bool, error) {
	if f.HasRepoFile(name, content) {
		return false, nil
	}
	f.calls = append(f.calls, "repo "+name)
	f.repos[name] = content
	return true, nil
}

func (f *fakePkgs) HasRepoFile(name, content string) bool {
	c, ok := f.repos[name]
	return ok && c == content
}

func (f *fakePkgs) AddRepoRPM(_ context.Context, url, probeName string) error {
	f.calls = append(f.calls, "repo-rpm "+url)
	f.installed[probeName] = true
	return nil
}

func (f *fakePkgs) EnableCopr(_ context.Context, repo string) error {
	f.calls = append(f.calls, "copr "+repo)
	f.copr[repo] = true
	return nil
}

func (f *fakePkgs) CoprEnabled(repo string) bool { return f.copr[repo] }

func (f *fakePkgs) Autoremove(context.Context) error {
	f.calls = append(f.calls, "autoremove")
	return nil
}

type fakeFlatpak struct {
	installed map[string]bool
	remotes   []string
}

func (f *fakeFlatpak) AddRemote(_ context.Context, name, _ string) error {
	f.remotes = append(f.remotes, name)
	return nil
}

func (f *fakeFlatpak) HasRemote(_ context.Context, name string) bool {
	for _, r := range f.remotes {
		if r == name {
			return true
		}
	}
	return false
}

func (f *fakeFlatpak) Install(_ context.Context, _ string, ids ...string) error {
	for _, id := range ids {
		f.installed[id] = true
	}
	return nil
}

func (f *fakeFlatpak) Installed(_ context.Context, id string) bool { return f.installed[id] }
func (f *fakeFlatpak) UninstallUnused(context.Context) error         { return nil }

// fakeGit "clones" by creating the dir and its .git; a framework clone gets
// an rc template.
type fakeGit struct {
	synced []string
}

func (g *fakeGit) Sync(_ context.Context, url, dir string) (vcs.Change, error) {
	g.synced = append(g.synced, url)
	if _, err := os.Stat(dir); err == nil {
		return vcs.Unchanged, nil
	}
	for _, sub := range []string{".git", "templates"} {
		if err := os.MkdirAll(fp.Join(dir, sub), 0755); err != nil {
			return vcs.Unchanged, err
		}
	}
	tmpl := "export ZSH=\"$HOME/.oh-my-zsh\"\nZSH_THEME=\"robbyrussell\"\nplugins=(git)\nsource $ZSH/oh-my-zsh.sh\n"
	err := os.WriteFile(fp.Join(dir, "templates", "zshrc.zsh-template"), []byte(tmpl), 0644)
	return vcs.Cloned, err
}

type fakeStore map[string]string

func (s fakeStore) Get(_ context.Context, ns, key string) (string, error) { return s[ns+" "+key], nil }
func (s fakeStore) Set(_ context.Context, ns, key, value string) error {
	s[ns+" "+key] = value
	return nil
}

// fakeFetcher serves payloads by url.
type fakeFetcher struct {
	payloads  map[string][]byte
	downloads []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	if b, ok := f.payloads[url]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%s: not found", url)
}

func (f *fakeFetcher) Resolve(_ context.Context, url string) (string, error) { return url, nil }

func (f *fakeFetcher) Download(ctx context.Context, url, dest string) error {
	b, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	f.downloads = append(f.downloads, url)
	return os.WriteFile(dest, b, 0644)
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type env struct {
	home, etc, xdg string
	user           probe.User
	pkgs           *fakePkgs
	flatpak        *fakeFlatpak
	git            *fakeGit
	fetcher        *fakeFetcher
	gnome, kde     fakeStore
	desktop        probe.Desktop
	reboot         []string
}

func newEnv(t *testing.T) *env {
	e := &env{
		home:    t.TempDir(),
		etc:     t.TempDir(),
		xdg:     t.TempDir(),
		pkgs:    newFakePkgs(),
		flatpak: &fakeFlatpak{installed: map[string]bool{}},
		git:     &fakeGit{},
		fetcher: &fakeFetcher{payloads: map[string][]byte{}},
		gnome:   fakeStore{},
		kde:     fakeStore{},
		desktop: probe.GNOME,
	}
	e.user = probe.User{Name: "tester", Uid: os.Getuid(), Gid: os.Getgid(), Home: e.home}
	require.NoError(t, os.WriteFile(fp.Join(e.etc, "dnf.conf"), []byte("[main]\ngpgcheck=True\nmax_parallel_downloads=3\n"), 0644))
	require.NoError(t, os.WriteFile(fp.Join(e.etc, "sysctl.conf"), []byte("# sysctl settings are defined through files in /usr/lib/sysctl.d/\n"), 0644))
	require.NoError(t, os.WriteFile(fp.Join(e.xdg, "org.gnome.Software.desktop"), []byte("[Desktop Entry]\nName=Software\n"), 0644))
	return e
}

func (e *env) opts() Options {
	return Options{
		User:      &e.user,
		Packages:  e.pkgs,
		Flatpak:   e.flatpak,
		Git:       e.git,
		Fetcher:   e.fetcher,
		GSettings: e.gnome,
		KConfig:   e.kde,
		Online:    func() bool { return true },
		Autostart: e.xdg,
		Detect: func(_ context.Context, o probe.DetectOpts) *probe.Facts {
			return probe.NewFacts(probe.FactsData{
				Distro:        o.Distro,
				DistroMatch:   true,
				Desktop:       e.desktop,
				RebootReasons: e.reboot,
				User:          o.User,
				Online:        o.Online(),
			})
		},
	}
}

func (e *env) manifest() *manifest.Manifest {
	return &manifest.Manifest{
		Distros:          []string{"fedora"},
		KernelPackage:    "kernel-core",
		CriticalPackages: []string{"glibc"},
		Dnf:              manifest.Dnf{Conf: fp.Join(e.etc, "dnf.conf"), MaxParallelDownloads: 10, FastestMirror: true},
		Sysctl:           []manifest.Sysctl{{Conf: fp.Join(e.etc, "sysctl.conf"), Key: "vm.swappiness", Value: "10"}},
		Packages: []manifest.PackageGroup{
			{Name: "base", Phase: "setup", Packages: []string{"git", "htop"}},
			{Name: "gnome", Desktop: "gnome", Packages: []string{"gnome-tweaks"}},
			{Name: "kde", Desktop: "kde", Packages: []string{"kate"}},
		},
		Fonts: []string{"fira-code-fonts"},
		Flatpak: manifest.Flatpak{
			Remotes: []manifest.Remote{{Name: "flathub", URL: "https://dl.flathub.org/repo/flathub.flatpakrepo"}},
			Remote:  "flathub",
			Apps:    []string{"org.signal.Signal"},
		},
		Shell: manifest.Shell{
			Package:   "zsh",
			Framework: &manifest.Repo{URL: "https://github.com/ohmyzsh/ohmyzsh.git", Dir: ".oh-my-zsh"},
			Plugins:   []manifest.Repo{{URL: "https://github.com/zsh-users/zsh-autosuggestions.git", Dir: ".oh-my-zsh/custom/plugins/zsh-autosuggestions"}},
			Theme:     "agnoster",
			RcFile:    ".zshrc",
			Template:  ".oh-my-zsh/templates/zshrc.zsh-template",
			Aliases:   []manifest.Alias{{Name: "update", Command: "sudo dnf upgrade --refresh && flatpak update -y"}},
		},
		Gnome:     []manifest.Setting{{Namespace: "org.gnome.desktop.interface", Key: "color-scheme", Value: "'prefer-dark'"}},
		KDE:       []manifest.Setting{{Namespace: "kdeglobals/KDE", Key: "SingleClick", Value: "false"}},
		Autostart: []string{"org.gnome.Software.desktop", "not-installed.desktop"},
	}
}

func (e *env) run(t *testing.T, m *manifest.Manifest) step.Summary {
	p := New(m, e.user, probe.Distro{ID: "fedora", Version: "41"}, e.opts())
	return p.Run(context.Background())
}

func status(t *testing.T, sum step.Summary, name string) step.Status {
	t.Helper()
	r, ok := sum.Result(name)
	require.True(t, ok, "no result for %s", name)
	return r.Status
}

func readAll(t *testing.T, paths ...string) map[string]string {
	out := map[string]string{}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		out[p] = string(data)
	}
	return out
}

func TestIdempotent(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)

	e := newEnv(t)
	m := e.manifest()
	m.Repos = manifest.Repos{
		Files: []manifest.RepoFile{{Name: "vscode", Content: "[code]\nbaseurl=https://packages.microsoft.com/yumrepos/vscode\n"}},
		RPMs:  []manifest.RepoRPM{{URL: "https://example.com/rpmfusion-free-release-$releasever.noarch.rpm", Probe: "rpmfusion-free-release"}},
		Copr:  []string{"atim/starship"},
	}
	m.Apps = []manifest.App{
		{ID: "installer", Kind: "script", URL: "https://example.com/install.sh", Args: []string{"--yes"}},
		{ID: "tb", Kind: "tarball", URL: "https://example.com/tb-1.0.tar.gz", Pattern: "tb-*.tar.gz",
			Dest: "tb", Entrypoints: []string{"bin/tb"}, StripTopDir: true, Link: true},
	}
	e.fetcher.payloads["https://example.com/install.sh"] = []byte("#!/bin/sh\necho installing\n")
	e.fetcher.payloads["https://example.com/tb-1.0.tar.gz"] = tarGz(t, map[string]string{"tb-1.0/bin/tb": "#!/bin/sh\n"})
	sum := e.run(t, m)
	require.Empty(t, sum.Failures(), strings.Join(sum.Lines(), "\n"))
	assert.Contains(t, e.pkgs.calls, "repo-rpm https://example.com/rpmfusion-free-release-41.noarch.rpm")
	assert.False(t, sum.Halted)

	rc := fp.Join(e.home, ".zshrc")
	override := fp.Join(e.home, ".config", "autostart", "org.gnome.Software.desktop")
	files := []string{m.Dnf.Conf, m.Sysctl[0].Conf, rc, override}
	first := readAll(t, files...)

	assert.Equal(t, "[main]\ngpgcheck=True\nmax_parallel_downloads=10\nfastestmirror=True\n", first[m.Dnf.Conf])
	assert.Contains(t, first[m.Sysctl[0].Conf], "\nvm.swappiness = 10\n")
	assert.Contains(t, first[rc], "ZSH_THEME=\"agnoster\"\n")
	assert.Contains(t, first[rc], "plugins=(git zsh-autosuggestions)\n")
	assert.Contains(t, first[rc], `alias update='sudo dnf upgrade --refresh && flatpak update -y'`)
	assert.NotContains(t, first[rc], "robbyrussell")
	assert.Contains(t, first[override], "Hidden=true")
	_, err := os.Stat(fp.Join(e.home, ".config", "autostart", "not-installed.desktop"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "'prefer-dark'", e.gnome["org.gnome.desktop.interface color-scheme"])
	assert.Empty(t, e.kde)
	assert.Equal(t, 1, tlog.Ran("sysctl", "-w", "vm.swappiness=10"))
	assert.Equal(t, 1, tlog.Ran("fc-cache"))
	script := fp.Join(e.home, ".cache", "fedprov", "artifacts", "install.sh")
	assert.Equal(t, 1, tlog.Ran("sh", script, "--yes"))
	target, err := os.Readlink(fp.Join(e.home, ".local", "bin", "tb"))
	require.NoError(t, err)
	assert.Equal(t, fp.Join(e.home, ".local", "opt", "tb", "bin", "tb"), target)

	second := e.run(t, m)
	require.Empty(t, second.Failures())
	assert.Equal(t, first, readAll(t, files...), "second run changed files")
	for _, name := range []string{
		"dnf tuning", "kernel tunables", "shell: .zshrc", "autostart suppression",
		"gnome settings", "packages: base", "packages: gnome", "fonts", "shell: zsh",
		"flatpak apps", "font cache", "repository files", "repository packages",
		"copr repositories", "flatpak remotes", "app: installer", "app: tb",
		"shell: framework", "shell: plugins and theme",
	} {
		assert.Equal(t, step.AlreadyDone, status(t, second, name), name)
	}
	assert.Equal(t, step.NotApplicable, status(t, second, "kde settings"))
	assert.Equal(t, step.NotApplicable, status(t, second, "home ownership"))
	assert.Equal(t, 1, tlog.Ran("sysctl"), "tunable re-applied")
	assert.Equal(t, 1, tlog.Ran("fc-cache"), "font cache rebuilt without new fonts")
	assert.Len(t, e.fetcher.downloads, 2)
	assert.Equal(t, 1, tlog.Ran("sh", script), "installer script run again")
	assert.Len(t, e.git.synced, 2)

	h := history.Open(history.DefaultPath(e.home))
	require.Len(t, h.Runs(), 2)
	assert.True(t, h.Runs()[0].Complete())
	assert.Equal(t, second.Count(step.Succeeded), h.Runs()[0].Succeeded)
	assert.Equal(t, second.Count(step.AlreadyDone), h.Runs()[0].AlreadyDone)
}

func TestRebootGate(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)

	e := newEnv(t)
	e.reboot = []string{"kernel 6.11.4-301.fc41.x86_64 is installed but 6.10.6-200.fc40.x86_64 is running"}
	sum := e.run(t, e.manifest())

	assert.True(t, sum.Halted)
	assert.Contains(t, sum.HaltReason, "kernel 6.11.4")
	var names []string
	for _, r := range sum.Results {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"system update", "reboot check"}, names)
	assert.Equal(t, []string{"upgrade"}, e.pkgs.calls)
	assert.Equal(t, 0, ExitCode(sum))
	_, err := os.Stat(fp.Join(e.home, ".zshrc"))
	assert.True(t, os.IsNotExist(err))

	//after the reboot
	e.reboot = nil
	tlog.Buf.Reset()
	sum = e.run(t, e.manifest())
	assert.False(t, sum.Halted)
	assert.Len(t, tlog.Filter(tl.FilterRe(`^MSG:previous run .* paused for reboot`)), 1)
}

func TestDesktopBranching(t *testing.T) {
	for _, tc := range []struct {
		desktop       probe.Desktop
		gnome, kde    step.Status
		installedKate bool
	}{
		{probe.KDE, step.NotApplicable, step.Succeeded, true},
		{probe.Unknown, step.NotApplicable, step.NotApplicable, false},
	} {
		t.Run(tc.desktop.String(), func(t *testing.T) {
			tlog := tl.NewTestLogNoBG(t)
			defer tlog.Freeze()
			tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)

			e := newEnv(t)
			e.desktop = tc.desktop
			sum := e.run(t, e.manifest())
			require.Empty(t, sum.Failures())

			assert.Equal(t, tc.gnome, status(t, sum, "gnome settings"))
			assert.Equal(t, tc.gnome, status(t, sum, "packages: gnome"))
			assert.Equal(t, tc.kde, status(t, sum, "kde settings"))
			assert.Equal(t, tc.kde, status(t, sum, "packages: kde"))
			assert.Equal(t, tc.installedKate, e.pkgs.installed["kate"])
			assert.False(t, e.pkgs.installed["gnome-tweaks"])
			assert.Empty(t, e.gnome)

			warned := tlog.Filter(tl.FilterRe(`^WARN:desktop environment not detected`))
			if tc.desktop == probe.Unknown {
				assert.Len(t, warned, 1)
			} else {
				assert.Empty(t, warned)
				assert.Equal(t, "false", e.kde["kdeglobals/KDE SingleClick"])
			}
		})
	}
}

func TestFailureIsolation(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)

	e := newEnv(t)
	e.pkgs.fail["htop"] = true
	sum := e.run(t, e.manifest())

	require.Len(t, sum.Failures(), 1)
	assert.Equal(t, "packages: base", sum.Failures()[0].Name)
	assert.Contains(t, sum.Failures()[0].Err.Error(), "No match for argument: htop")
	assert.Equal(t, step.Succeeded, status(t, sum, "flatpak apps"))
	assert.True(t, e.flatpak.installed["org.signal.Signal"])
	assert.False(t, sum.Halted)
	assert.Equal(t, 0, ExitCode(sum))
	assert.Len(t, tlog.Filter(tl.FilterRe(`^CRIT:packages: base failed`)), 1)
}

func TestStepOrder(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	e := newEnv(t)
	m := e.manifest()
	m.Repos = manifest.Repos{Copr: []string{"atim/starship"}}
	m.Commands = []cmdstep.Spec{
		{Name: "late", Commands: []cmdstep.Cmd{{Command: "true"}}},
		{Name: "early", Phase: "optimize", Commands: []cmdstep.Cmd{{Command: "true"}}},
	}
	steps := New(m, e.user, probe.Distro{ID: "fedora"}, e.opts()).Steps()
	require.NoError(t, step.Validate(steps))

	idx := map[string]int{}
	for i, s := range steps {
		idx[s.Name] = i
	}
	assert.Equal(t, 0, idx["system update"])
	assert.Less(t, idx["reboot check"], idx["packages: base"])
	assert.Less(t, idx["early"], idx["copr repositories"])
	assert.Less(t, idx["copr repositories"], idx["packages: gnome"])
	assert.Less(t, idx["flatpak apps"], idx["late"])
	assert.Less(t, idx["late"], idx["autoremove"])
}

func TestFetchApp(t *testing.T) {
	e := newEnv(t)
	p := New(e.manifest(), e.user, probe.Distro{}, e.opts())

	app, err := p.fetchApp(manifest.App{ID: "tb", Kind: "tarball", Probe: "json", URL: "https://example.com/api", JSONPath: "a.0.b", Dest: "toolbox", Entrypoints: []string{"bin/tb"}})
	require.NoError(t, err)
	assert.Equal(t, fetch.KindTarball, app.Kind)
	assert.Equal(t, fetch.JSONProbe{URL: "https://example.com/api", Path: "a.0.b"}, app.Probe)
	assert.Equal(t, fp.Join(e.home, ".local", "opt", "toolbox"), app.Dest)
	assert.Nil(t, app.Installed)

	app, err = p.fetchApp(manifest.App{ID: "zoom", Kind: "rpm", URL: "https://example.com/zoom.rpm", Package: "zoom", Dest: "/opt/zoom"})
	require.NoError(t, err)
	assert.Equal(t, fetch.StaticProbe{URL: "https://example.com/zoom.rpm"}, app.Probe)
	assert.Equal(t, "/opt/zoom", app.Dest)
	require.NotNil(t, app.Installed)
	assert.False(t, app.Installed(context.Background()))
	e.pkgs.installed["zoom"] = true
	assert.True(t, app.Installed(context.Background()))

	_, err = p.fetchApp(manifest.App{ID: "x", Kind: "deb"})
	assert.Error(t, err)
}

func TestLink(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()

	e := newEnv(t)
	p := New(e.manifest(), e.user, probe.Distro{}, e.opts())
	tree := &fetch.Installed{Dir: fp.Join(p.AppsDir(), "tb"), Entrypoints: []string{"bin/tb"}}
	require.NoError(t, p.link(tree))
	require.NoError(t, p.link(tree))
	target, err := os.Readlink(fp.Join(e.home, ".local", "bin", "tb"))
	require.NoError(t, err)
	assert.Equal(t, fp.Join(p.AppsDir(), "tb", "bin", "tb"), target)
	assert.Len(t, tlog.Filter(tl.FilterRe(`^LOG:linked `)), 1)
}

func TestReleasever(t *testing.T) {
	u := "https://mirrors.rpmfusion.org/free/fedora/rpmfusion-free-release-$releasever.noarch.rpm"
	assert.Equal(t, "https://mirrors.rpmfusion.org/free/fedora/rpmfusion-free-release-41.noarch.rpm", releasever(u, probe.Distro{Version: "41"}))
	assert.Equal(t, u, releasever(u, probe.Distro{}))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'ls -lah'`, shellQuote("ls -lah"))
	assert.Equal(t, `'echo '\''hi'\'''`, shellQuote("echo 'hi'"))
}

func writeOSRelease(t *testing.T, id string) string {
	path := fp.Join(t.TempDir(), "os-release")
	content := "NAME=\"" + id + "\"\nID=" + id + "\nVERSION_ID=41\nPRETTY_NAME=\"" + id + " 41\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestWrongDistroIsFatal(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.FatalIsNotErr = true
	tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)

	e := newEnv(t)
	opts := e.opts()
	opts.OSRelease = writeOSRelease(t, "ubuntu")
	opts.LogDir = t.TempDir()

	assert.Equal(t, 1, Main(context.Background(), opts))
	assert.Equal(t, 1, tlog.FatalCount)
	assert.Empty(t, e.pkgs.calls)
	assert.Empty(t, e.git.synced)
	assert.Empty(t, tlog.Commands())
	_, err := os.Stat(history.DefaultPath(e.home))
	assert.True(t, os.IsNotExist(err), "history written before precondition passed")
}

func TestBadManifestIsFatal(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.FatalIsNotErr = true

	e := newEnv(t)
	opts := e.opts()
	opts.ManifestPath = fp.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(opts.ManifestPath, []byte("distros: []\n"), 0644))

	assert.Equal(t, 1, Main(context.Background(), opts))
	assert.Equal(t, 1, tlog.FatalCount)
	assert.Empty(t, e.pkgs.calls)
}

func TestMainRuns(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)

	e := newEnv(t)
	opts := e.opts()
	opts.OSRelease = writeOSRelease(t, "fedora")
	opts.LogDir = t.TempDir()
	opts.ManifestPath = fp.Join(t.TempDir(), "m.yaml")
	require.NoError(t, os.WriteFile(opts.ManifestPath, []byte("distros: [fedora]\ncritical_packages: []\nfonts: [fira-code-fonts]\n"), 0644))

	assert.Equal(t, 0, Main(context.Background(), opts))
	assert.True(t, e.pkgs.installed["fira-code-fonts"])

	logs, err := fp.Glob(fp.Join(opts.LogDir, "fedprov_*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	data, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "provisioning complete")

	h := history.Open(history.DefaultPath(e.home))
	require.Len(t, h.Runs(), 1)
	assert.Equal(t, opts.ManifestPath, h.Runs()[0].Manifest)
}

func TestMainFlushesEarlyLog(t *testing.T) {
	tlog := tl.NewTestLogNoBG(t)
	defer tlog.Freeze()
	tlog.FatalIsNotErr = true
	tlog.UseFakeCmdHijacker(tl.CmdMap{}, tl.OK)
	require.NoError(t, log.AddMemLog())
	log.Logf("logged before the log file exists")

	e := newEnv(t)
	opts := e.opts()
	opts.OSRelease = writeOSRelease(t, "ubuntu")
	opts.LogDir = t.TempDir()
	assert.Equal(t, 1, Main(context.Background(), opts))

	assert.False(t, log.InStack(log.MemLogIdent), "early entries still buffered in memory")
	logs, err := fp.Glob(fp.Join(opts.LogDir, "*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	data, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "logged before the log file exists")
}
