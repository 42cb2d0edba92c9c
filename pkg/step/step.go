// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package step runs named, idempotent provisioning steps in order.
//
// Each step is first checked for applicability, then for whether its effect
// is already present, and only then is its action run. A failing step does
// not stop the run; a step returning a *HaltError does.
package step

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fedprov/fedprov/pkg/probe"
)

type Phase int

const (
	PhaseUpdate Phase = iota
	PhaseGate
	PhaseDetect
	PhaseSetup
	PhaseOptimize
	PhaseRepos
	PhasePackages
	PhaseApps
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseUpdate:
		return "update"
	case PhaseGate:
		return "gate"
	case PhaseDetect:
		return "detect"
	case PhaseSetup:
		return "setup"
	case PhaseOptimize:
		return "optimize"
	case PhaseRepos:
		return "repos"
	case PhasePackages:
		return "packages"
	case PhaseApps:
		return "apps"
	case PhaseFinalize:
		return "finalize"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Step is one unit of provisioning work.
//
// Applies nil means the step always applies. When the facts passed to the
// sequencer are nil, steps with an Applies predicate do not apply.
//
// Done nil means the step cannot tell; its Action must then be safe to repeat.
type Step struct {
	Name    string
	Phase   Phase
	Applies func(*probe.Facts) bool
	Done    func(context.Context, *probe.Facts) (bool, error)
	Action  func(context.Context, *probe.Facts) error
}

type Status int

const (
	NotStarted Status = iota
	NotApplicable
	AlreadyDone
	Succeeded
	Failed
	Halted
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case NotApplicable:
		return "not applicable"
	case AlreadyDone:
		return "already done"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Halted:
		return "halted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Result struct {
	Name     string
	Phase    Phase
	Status   Status
	Err      error
	Duration time.Duration
}

// HaltError stops the run. It is not a failure: the process exits normally
// and the operator is told what to do before running again.
type HaltError struct {
	Reason string
}

func (e *HaltError) Error() string { return "halted: " + e.Reason }

// Halt returns a *HaltError with the given reason.
func Halt(f string, va ...interface{}) error {
	return &HaltError{Reason: fmt.Sprintf(f, va...)}
}

// IsHalt reports whether err is or wraps a *HaltError.
func IsHalt(err error) bool {
	var he *HaltError
	return errors.As(err, &he)
}

var ErrPanic = errors.New("step panicked")

// Observer is notified as the sequencer works through the step list.
type Observer interface {
	StepStarted(s Step)
	StepFinished(r Result)
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for p := PhaseUpdate; p <= PhaseFinalize; p++ {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}
