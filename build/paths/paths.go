// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package paths locates the repo and the build output dir for mage. It must
// not import anything from the rest of the repo, so that mage can compile
// before anything is generated.
package paths

import (
	"fmt"
	"os"
	fp "path/filepath"
)

const ImportPath = "github.com/fedprov/fedprov"

var (
	RepoRoot string
	WorkDir  string

	// Commands that get built and shipped.
	Cmds = []string{"cmd/fedprov"}
	// Commands only used at development time.
	UtilCmds = []string{"cmd/util/manifest-schema"}
)

func init() {
	var err error
	RepoRoot, err = repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot locate repo root: %s\n", err)
		os.Exit(1)
	}
	WorkDir = workDir()
}

// Find repo root - from FEDPROV_ROOT env var, if set. Otherwise search
// parents for our go.mod.
func repoRoot() (string, error) {
	if rr := os.Getenv("FEDPROV_ROOT"); len(rr) > 0 {
		return rr, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for len(wd) > 1 {
		if _, err := os.Stat(fp.Join(wd, "go.mod")); err == nil {
			if _, err := os.Stat(fp.Join(wd, "cmd", "fedprov")); err == nil {
				return wd, os.Setenv("FEDPROV_ROOT", wd)
			}
		}
		wd = fp.Dir(wd)
	}
	return "", os.ErrNotExist
}

// Work dir is from FEDPROV_WORKDIR if set, otherwise a dir adjacent to repo
// root so that 'go test ./...' doesn't wander through build output.
func workDir() string {
	if wd := os.Getenv("FEDPROV_WORKDIR"); len(wd) > 0 {
		return wd
	}
	return fp.Join(fp.Dir(RepoRoot), "fedprov_work")
}

// Pkglist converts repo-relative dirs into import paths.
func Pkglist(dirs ...string) []string {
	var pkgs []string
	for _, d := range dirs {
		pkgs = append(pkgs, ImportPath+"/"+d)
	}
	return pkgs
}
