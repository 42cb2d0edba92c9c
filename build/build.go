// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build mage
// +build mage

/*
 build file for mage build system
 list tgts with
go run magerunner.go -l

 build tgt with
go run magerunner.go tgt
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	fp "path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"

	"github.com/fedprov/fedprov/build/paths"
)

var Default = Bins.Fedprov

// BuildAll builds every binary and checks the manifest schema.
func BuildAll(ctx context.Context) {
	mg.CtxDeps(ctx, Bins.Fedprov, Bins.Util, Schema.Check)
}

type Bins mg.Namespace

// Builds fedprov into the work dir, stamped with build info.
func (Bins) Fedprov(ctx context.Context) error {
	mg.CtxDeps(ctx, workdir)
	out := fp.Join(paths.WorkDir, "fedprov")
	rebuild, err := target.Dir(out, fp.Join(paths.RepoRoot, "cmd"), fp.Join(paths.RepoRoot, "pkg"))
	if err == nil && !rebuild {
		fmt.Println("fedprov is up to date")
		return nil
	}
	return buildeach(map[string]string{"CGO_ENABLED": "0"}, paths.Pkglist(paths.Cmds...)...)
}

// Builds development utilities.
func (Bins) Util(ctx context.Context) error {
	mg.CtxDeps(ctx, workdir)
	return buildeach(nil, paths.Pkglist(paths.UtilCmds...)...)
}

type Schema mg.Namespace

// Writes the schema reflected from the manifest types to the work dir, for
// comparison with pkg/manifest/schema.json when fields change.
func (Schema) Reflect(ctx context.Context) error {
	mg.CtxDeps(ctx, Bins.Util)
	out, err := sh.Output(fp.Join(paths.WorkDir, "manifest-schema"))
	if err != nil {
		return err
	}
	dest := fp.Join(paths.WorkDir, "manifest.schema.reflected.json")
	fmt.Println("writing", dest)
	return os.WriteFile(dest, []byte(out+"\n"), 0644)
}

// Validates the built-in manifest against the embedded schema.
func (Schema) Check(ctx context.Context) error {
	return gotest(ctx, nil, "-run", "TestDefault|TestSchemaCompiles", paths.ImportPath+"/pkg/manifest")
}

// Runs go vet on everything.
func Vet(ctx context.Context) error {
	return sh.RunV("go", "vet", "./...")
}

// build info, in the form user@host:path/to/repo commit_hash date
func buildInfo() string {
	var info []string
	user := os.Getenv("USER")
	host, _ := os.Hostname()
	info = append(info, fmt.Sprintf("%s@%s:%s", user, host, paths.RepoRoot))
	commit, err := sh.Output("git", "-C", paths.RepoRoot, "describe", "--always", "--dirty")
	if err == nil {
		info = append(info, commit)
	}
	info = append(info, time.Now().UTC().Format("2006-01-02T15:04"))
	return strings.Join(info, " ")
}

// builds each package, writing binaries to the work dir
func buildeach(env map[string]string, pkgs ...string) error {
	ldflags := fmt.Sprintf("-X 'main.buildId=%s' -s -w", buildInfo())
	for _, p := range pkgs {
		out := fp.Join(paths.WorkDir, fp.Base(p))
		err := sh.RunWith(env, "go", "build", "-trimpath", "-ldflags", ldflags, "-o", out, p)
		if err != nil {
			return err
		}
	}
	return nil
}

func workdir() {
	//ignore errors
	_ = os.Mkdir(paths.WorkDir, 0755)
}

func gotest(ctx context.Context, env map[string]string, args ...string) error {
	cmd := exec.CommandContext(ctx, "go", append([]string{"test"}, args...)...)
	cmd.Dir = paths.RepoRoot
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if mg.Verbose() {
		fmt.Println(strings.Join(cmd.Args, " "))
	}
	return cmd.Run()
}
