// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package step

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/probe"
)

var (
	EDupName    = errors.New("duplicate step name")
	EPhaseOrder = errors.New("steps out of phase order")
)

// Validate checks that names are unique and phases never go backwards.
func Validate(steps []Step) error {
	var errs []error
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%w: %s", EDupName, s.Name))
		}
		seen[s.Name] = true
		if i > 0 && s.Phase < steps[i-1].Phase {
			errs = append(errs, fmt.Errorf("%w: %s (%s) follows %s (%s)", EPhaseOrder, s.Name, s.Phase, steps[i-1].Name, steps[i-1].Phase))
		}
	}
	return errors.Join(errs...)
}

// Sequencer runs steps strictly in the order given, one at a time.
type Sequencer struct {
	Observer Observer //optional
}

// Run executes steps and returns what happened. It stops early when a step
// halts or ctx is done; the step in progress is always allowed to finish.
// A configuration problem found by Validate is logged and the run goes ahead
// in declaration order.
func (sq *Sequencer) Run(ctx context.Context, steps []Step, facts *probe.Facts) (sum Summary) {
	if err := Validate(steps); err != nil {
		log.Warnf("step list: %s", err)
	}
	for _, s := range steps {
		if ctx.Err() != nil {
			sum.Interrupted = true
			log.Warnf("interrupted; not starting %s", s.Name)
			break
		}
		res := sq.runOne(ctx, s, facts)
		sum.Results = append(sum.Results, res)
		if sq.Observer != nil {
			sq.Observer.StepFinished(res)
		}
		if res.Status == Halted {
			var he *HaltError
			errors.As(res.Err, &he)
			sum.Halted = true
			sum.HaltReason = he.Reason
			log.Bannerf("%s", he.Reason)
			break
		}
	}
	return
}

func (sq *Sequencer) runOne(ctx context.Context, s Step, facts *probe.Facts) (res Result) {
	res = Result{Name: s.Name, Phase: s.Phase}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if s.Applies != nil && (facts == nil || !s.Applies(facts)) {
		res.Status = NotApplicable
		return
	}
	if s.Done != nil {
		var done bool
		err := protect(s.Name, func() (err error) {
			done, err = s.Done(ctx, facts)
			return
		})
		switch {
		case err != nil:
			log.Warnf("%s: cannot tell whether already done (%s); running anyway", s.Name, err)
		case done:
			log.Successf("%s: already done", s.Name)
			res.Status = AlreadyDone
			return
		}
	}
	if sq.Observer != nil {
		sq.Observer.StepStarted(s)
	}
	log.Msgf("%s...", s.Name)
	var err error
	if s.Action != nil {
		err = protect(s.Name, func() error { return s.Action(ctx, facts) })
	}
	res.Err = err
	switch {
	case err == nil:
		res.Status = Succeeded
		log.Successf("%s: done", s.Name)
	case IsHalt(err):
		res.Status = Halted
		log.Logf("%s: %s", s.Name, err)
	default:
		res.Status = Failed
		log.Criticalf("%s failed: %s", s.Name, err)
	}
	return
}

// protect converts a panic in fn into an error wrapping ErrPanic.
func protect(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Logf("%s: panic: %v\n%s", name, r, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
