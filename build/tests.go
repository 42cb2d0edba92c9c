// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build mage
// +build mage

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/magefile/mage/mg"

	"github.com/fedprov/fedprov/build/paths"
)

/* Env vars
RUN - passed to go test -run. Only tests that match the given regex will run.
COUNT - passed to go test -count. Use 1 to bypass test result caching, and
    higher values to repeat tests.
*/

type Tests mg.Namespace

// runs unit tests
func (Tests) Unit(ctx context.Context) error {
	args, err := testArgs(ctx, []string{"./..."})
	if err != nil {
		return err
	}
	return gotest(ctx, nil, args...)
}

// runs unit tests with the race detector
func (Tests) Race(ctx context.Context) error {
	args, err := testArgs(ctx, []string{"./..."})
	if err != nil {
		return err
	}
	return gotest(ctx, map[string]string{"CGO_ENABLED": "1"}, append([]string{"-race"}, args...)...)
}

// provisioning tests only: sequencer, history, and the provisioner itself
func (Tests) Provision(ctx context.Context) error {
	args, err := testArgs(ctx, paths.Pkglist("pkg/step/...", "pkg/history", "pkg/provision"))
	if err != nil {
		return err
	}
	return gotest(ctx, nil, args...)
}

// args for 'go test': -timeout, -run, -count, pkgs
func testArgs(ctx context.Context, pkgs []string) ([]string, error) {
	var args []string
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < time.Second {
			return nil, fmt.Errorf("insufficient time remaining: %s", remaining)
		}
		args = append(args, "-timeout", remaining.String())
	}
	if run, ok := os.LookupEnv("RUN"); ok {
		args = append(args, "-run", run)
	}
	if c, ok := os.LookupEnv("COUNT"); ok {
		if _, err := strconv.Atoi(c); err != nil {
			return nil, fmt.Errorf("COUNT=%q: %w", c, err)
		}
		args = append(args, "-count", c)
	}
	return append(args, pkgs...), nil
}
