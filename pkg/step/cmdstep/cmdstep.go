// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package cmdstep implements provisioning steps declared in the manifest as a
// list of shell-like commands. Individual command success/failure can be
// required, ignored, or required to fail. An optional check command serves
// as the step's idempotence predicate: if it exits 0, the step is done.
//
// Commands first have templating resolved, then are split into args via
// github.com/google/shlex. No shell is involved; use "sh -c '...'" for pipes.
//
// Template fields: {{.Home}} {{.User}} {{.Desktop}} {{.CacheDir}}.
package cmdstep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"

	"github.com/google/shlex"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/step"
)

type ExitStatus int

const (
	ESMustSucceed ExitStatus = iota
	ESDontCare
	ESMustFail
)

func (es ExitStatus) MarshalText() ([]byte, error) {
	switch es {
	case ESMustSucceed:
		return []byte("mustsucceed"), nil
	case ESDontCare:
		return []byte("dontcare"), nil
	case ESMustFail:
		return []byte("mustfail"), nil
	}
	return nil, fmt.Errorf("bad exit status %d", int(es))
}

func (es *ExitStatus) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "mustsucceed", "esmustsucceed", "":
		*es = ESMustSucceed
	case "dontcare", "esdontcare":
		*es = ESDontCare
	case "mustfail", "esmustfail":
		*es = ESMustFail
	default:
		return fmt.Errorf("unable to translate %s into an exit status type", string(b))
	}
	return nil
}

// A command to be executed during a Step. Command and AddPath are subject to
// template expansion.
type Cmd struct {
	Command    string     `yaml:"command" json:"command"`
	ExitStatus ExitStatus `yaml:"exit_status,omitempty" json:"exit_status,omitempty"`
	AddPath    string     `yaml:"add_path,omitempty" json:"add_path,omitempty"`
}

// Spec is the manifest form of a command step.
type Spec struct {
	Name     string `yaml:"name" json:"name"`
	Phase    string `yaml:"phase,omitempty" json:"phase,omitempty"`     //default finalize
	Desktop  string `yaml:"desktop,omitempty" json:"desktop,omitempty"` //gnome or kde; empty for any
	Check    string `yaml:"check,omitempty" json:"check,omitempty"`
	Commands []Cmd  `yaml:"commands" json:"commands"`
	Verbose  bool   `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// Data available to templates.
type TmplData struct {
	Home, User, Desktop, CacheDir string
}

var (
	EEXECSUCCESS = errors.New("execution succeeded but must fail")
	EEXECFAIL    = errors.New("execution failed but must succeed")
	ENoCommand   = errors.New("empty command")
)

// Step converts s into a step.Step. cacheDir is exposed to templates.
func (s Spec) Step(cacheDir string) (step.Step, error) {
	st := step.Step{Name: s.Name, Phase: step.PhaseFinalize}
	if s.Name == "" {
		return st, errors.New("command step without a name")
	}
	if s.Phase != "" {
		p, err := step.ParsePhase(s.Phase)
		if err != nil {
			return st, fmt.Errorf("step %s: %w", s.Name, err)
		}
		st.Phase = p
	}
	switch strings.ToLower(s.Desktop) {
	case "":
	case "gnome":
		st.Applies = probe.IsDesktop(probe.GNOME)
	case "kde":
		st.Applies = probe.IsDesktop(probe.KDE)
	default:
		return st, fmt.Errorf("step %s: unknown desktop %q", s.Name, s.Desktop)
	}
	if s.Check != "" {
		st.Done = func(ctx context.Context, f *probe.Facts) (bool, error) {
			err := s.runCmd(ctx, Cmd{Command: s.Check}, tmplData(f, cacheDir))
			if errors.Is(err, EEXECFAIL) {
				return false, nil
			}
			return err == nil, err
		}
	}
	st.Action = func(ctx context.Context, f *probe.Facts) error {
		return s.Run(ctx, tmplData(f, cacheDir))
	}
	return st, nil
}

func tmplData(f *probe.Facts, cacheDir string) TmplData {
	d := TmplData{CacheDir: cacheDir}
	if f != nil {
		d.Home = f.User().Home
		d.User = f.User().Name
		d.Desktop = strings.ToLower(f.Desktop().String())
	}
	return d
}

// Run executes the commands in order, stopping at the first whose exit status
// does not match what is required.
func (s Spec) Run(ctx context.Context, data TmplData) (err error) {
	for _, c := range s.Commands {
		if err = s.runCmd(ctx, c, data); err != nil {
			return fmt.Errorf("step %s: %q: %w", s.Name, c.Command, err)
		}
	}
	return nil
}

func (s Spec) runCmd(ctx context.Context, c Cmd, data TmplData) error {
	out, err := s.applyTmpl(c.Command, data)
	if err != nil {
		return err
	}
	args, err := shlex.Split(out)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return ENoCommand
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if c.AddPath != "" {
		p, err := s.applyTmpl(c.AddPath, data)
		if err != nil {
			return err
		}
		addEnv(cmd, "PATH", p)
	}
	out, success := log.Cmd(cmd)
	if success && s.Verbose {
		log.Logf("command output: %s", out)
	}
	if success && c.ExitStatus == ESMustFail {
		err = EEXECSUCCESS
	} else if !success && c.ExitStatus == ESMustSucceed {
		err = EEXECFAIL
	}
	return err
}

func (s Spec) applyTmpl(in string, data TmplData) (string, error) {
	tmpl, err := template.New("").Option("missingkey=error").Parse(in)
	if err != nil {
		if s.Verbose {
			log.Logf("Step %s: Error parsing templated command %s: %s", s.Name, in, err)
		}
		return "", err
	}
	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// prepends val to the variable in cmd's environment
func addEnv(cmd *exec.Cmd, key, val string) {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	pfx := key + "="
	for i, e := range cmd.Env {
		if strings.HasPrefix(e, pfx) {
			cmd.Env[i] = pfx + val + ":" + strings.TrimPrefix(e, pfx)
			return
		}
	}
	cmd.Env = append(cmd.Env, pfx+val)
}
