// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package manifest holds what fedprov installs and configures: packages,
// repositories, flatpaks, desktop settings, third-party apps, and extra
// command steps. A default manifest is compiled in; another can be loaded
// from a file. Either way the YAML is checked against a JSON schema before it
// is decoded.
package manifest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/step/cmdstep"
)

//go:embed default.yaml
var defaultManifest []byte

//go:embed schema.json
var schemaJSON []byte

var EInvalid = errors.New("invalid manifest")

type Manifest struct {
	Distros          []string       `yaml:"distros" json:"distros" jsonschema:"required"`
	KernelPackage    string         `yaml:"kernel_package,omitempty" json:"kernel_package,omitempty"`
	CriticalPackages []string       `yaml:"critical_packages,omitempty" json:"critical_packages,omitempty"`
	Dnf              Dnf            `yaml:"dnf,omitempty" json:"dnf,omitempty"`
	Sysctl           []Sysctl       `yaml:"sysctl,omitempty" json:"sysctl,omitempty"`
	Repos            Repos          `yaml:"repos,omitempty" json:"repos,omitempty"`
	Packages         []PackageGroup `yaml:"packages,omitempty" json:"packages,omitempty"`
	Remove           []string       `yaml:"remove,omitempty" json:"remove,omitempty"`
	Fonts            []string       `yaml:"fonts,omitempty" json:"fonts,omitempty"`
	Flatpak          Flatpak        `yaml:"flatpak,omitempty" json:"flatpak,omitempty"`
	Shell            Shell          `yaml:"shell,omitempty" json:"shell,omitempty"`
	Gnome            []Setting      `yaml:"gnome,omitempty" json:"gnome,omitempty"`
	KDE              []Setting      `yaml:"kde,omitempty" json:"kde,omitempty"`
	Autostart        []string       `yaml:"autostart_disable,omitempty" json:"autostart_disable,omitempty"`
	Apps             []App          `yaml:"apps,omitempty" json:"apps,omitempty"`
	Commands         []cmdstep.Spec `yaml:"commands,omitempty" json:"commands,omitempty"`
}

// Dnf tuning written to dnf.conf.
type Dnf struct {
	Conf                 string `yaml:"conf,omitempty" json:"conf,omitempty"`
	MaxParallelDownloads int    `yaml:"max_parallel_downloads,omitempty" json:"max_parallel_downloads,omitempty"`
	FastestMirror        bool   `yaml:"fastestmirror,omitempty" json:"fastestmirror,omitempty"`
	DefaultYes           bool   `yaml:"defaultyes,omitempty" json:"defaultyes,omitempty"`
}

// Sysctl is one kernel tunable, e.g. vm.swappiness.
type Sysctl struct {
	Conf  string `yaml:"conf,omitempty" json:"conf,omitempty"`
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

type Repos struct {
	Files []RepoFile `yaml:"files,omitempty" json:"files,omitempty"`
	RPMs  []RepoRPM  `yaml:"rpms,omitempty" json:"rpms,omitempty"`
	Copr  []string   `yaml:"copr,omitempty" json:"copr,omitempty"`
}

type RepoFile struct {
	Name    string `yaml:"name" json:"name"`
	Content string `yaml:"content" json:"content"`
}

// RepoRPM is a release package that configures repositories, such as
// rpmfusion. Probe is the package name it installs.
type RepoRPM struct {
	URL   string `yaml:"url" json:"url"`
	Probe string `yaml:"probe" json:"probe"`
}

// PackageGroup is installed in the packages phase, after repositories are
// configured, unless Phase is setup.
type PackageGroup struct {
	Name     string   `yaml:"name" json:"name"`
	Phase    string   `yaml:"phase,omitempty" json:"phase,omitempty"`
	Desktop  string   `yaml:"desktop,omitempty" json:"desktop,omitempty"`
	Packages []string `yaml:"packages" json:"packages"`
}

type Flatpak struct {
	Remotes []Remote `yaml:"remotes,omitempty" json:"remotes,omitempty"`
	Remote  string   `yaml:"remote,omitempty" json:"remote,omitempty"` //remote apps are installed from
	Apps    []string `yaml:"apps,omitempty" json:"apps,omitempty"`
}

type Remote struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

type Shell struct {
	Package   string  `yaml:"package,omitempty" json:"package,omitempty"`
	Default   bool    `yaml:"default,omitempty" json:"default,omitempty"` //make it the operator's login shell
	Framework *Repo   `yaml:"framework,omitempty" json:"framework,omitempty"`
	Plugins   []Repo  `yaml:"plugins,omitempty" json:"plugins,omitempty"`
	Theme     string  `yaml:"theme,omitempty" json:"theme,omitempty"`
	ThemeRepo *Repo   `yaml:"theme_repo,omitempty" json:"theme_repo,omitempty"`
	RcFile    string  `yaml:"rc_file,omitempty" json:"rc_file,omitempty"`
	Template  string  `yaml:"rc_template,omitempty" json:"rc_template,omitempty"` //copied to RcFile if that does not exist
	Aliases   []Alias `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Repo is a git repository cloned to Dir, relative to the operator's home.
type Repo struct {
	URL string `yaml:"url" json:"url"`
	Dir string `yaml:"dir" json:"dir"`
}

type Alias struct {
	Name    string `yaml:"name" json:"name"`
	Command string `yaml:"command" json:"command"`
}

// Setting is a desktop setting. For gnome, Namespace is the gsettings schema;
// for kde it is file/group.
type Setting struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Key       string `yaml:"key" json:"key"`
	Value     string `yaml:"value" json:"value"`
}

// App is a third-party application fetched over the network.
type App struct {
	ID          string   `yaml:"id" json:"id"`
	Kind        string   `yaml:"kind" json:"kind"`
	Probe       string   `yaml:"probe,omitempty" json:"probe,omitempty"` //static (default), redirect, json
	URL         string   `yaml:"url" json:"url"`
	JSONPath    string   `yaml:"json_path,omitempty" json:"json_path,omitempty"`
	Pattern     string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Dest        string   `yaml:"dest,omitempty" json:"dest,omitempty"` //relative to the applications dir unless absolute
	Entrypoints []string `yaml:"entrypoints,omitempty" json:"entrypoints,omitempty"`
	Link        bool     `yaml:"link,omitempty" json:"link,omitempty"` //symlink entrypoints into ~/.local/bin
	StripTopDir bool     `yaml:"strip_top_dir,omitempty" json:"strip_top_dir,omitempty"`
	Package     string   `yaml:"package,omitempty" json:"package,omitempty"` //rpm name, for kind rpm
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`       //for kind script
}

// Schema returns the embedded JSON schema.
func Schema() []byte { return schemaJSON }

// Default returns the compiled-in manifest.
func Default() (*Manifest, error) { return Parse(defaultManifest) }

// Load reads the manifest at path, or the default if path is empty.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", EInvalid, err)
	}
	log.Logf("using manifest %s", path)
	return Parse(data)
}

func compile() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("manifest.schema.json")
}

// Parse validates and decodes a YAML manifest, then fills in defaults.
func Parse(data []byte) (*Manifest, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s", EInvalid, err)
	}
	sch, err := compile()
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if err = sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", EInvalid, err)
	}
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %s", EInvalid, err)
	}
	m.defaults()
	if err = m.check(); err != nil {
		return nil, fmt.Errorf("%w: %s", EInvalid, err)
	}
	return &m, nil
}

func (m *Manifest) defaults() {
	if m.KernelPackage == "" {
		m.KernelPackage = "kernel-core"
	}
	if m.CriticalPackages == nil {
		m.CriticalPackages = []string{"glibc", "systemd"}
	}
	if m.Dnf.Conf == "" {
		m.Dnf.Conf = "/etc/dnf/dnf.conf"
	}
	for i := range m.Sysctl {
		if m.Sysctl[i].Conf == "" {
			m.Sysctl[i].Conf = "/etc/sysctl.conf"
		}
	}
	if m.Flatpak.Remote == "" {
		m.Flatpak.Remote = "flathub"
	}
	if m.Shell.RcFile == "" {
		m.Shell.RcFile = ".zshrc"
	}
}

// check catches what the schema cannot express.
func (m *Manifest) check() error {
	var errs []error
	seen := map[string]bool{}
	for _, a := range m.Apps {
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("duplicate app id %s", a.ID))
		}
		seen[a.ID] = true
		if a.Probe == "json" && a.JSONPath == "" {
			errs = append(errs, fmt.Errorf("app %s: json probe needs json_path", a.ID))
		}
		if (a.Kind == "tarball" || a.Kind == "zip") && a.Dest == "" {
			errs = append(errs, fmt.Errorf("app %s: %s needs dest", a.ID, a.Kind))
		}
	}
	for _, c := range m.Commands {
		if _, err := c.Step(""); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range m.KDE {
		if !strings.Contains(s.Namespace, "/") {
			errs = append(errs, fmt.Errorf("kde setting %s: namespace must be file/group", s.Key))
		}
	}
	return errors.Join(errs...)
}
