// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

/*
Package history records each provisioning run to a JSON file in the operator's
state dir. The record is rewritten as every step finishes, so a run that is
killed part way still leaves a trace, and the next run can tell the operator
how the previous one ended.
*/
package history

import (
	"encoding/json"
	"fmt"
	"os"
	fp "path/filepath"
	"time"

	"github.com/google/uuid"

	futil "github.com/fedprov/fedprov/pkg/fileutil"
	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/probe"
	"github.com/fedprov/fedprov/pkg/step"
)

const histName = "history.json"

// MaxRuns is the number of runs kept in the file, newest first.
var MaxRuns = 20

// Run is the record of one invocation.
type Run struct {
	ID            string
	Started       time.Time
	Finished      time.Time
	Manifest      string `json:",omitempty"`
	LastStep      string `json:",omitempty"`
	Succeeded     int
	AlreadyDone   int
	Failed        int
	NotApplicable int
	Halted        bool     `json:",omitempty"`
	HaltReason    string   `json:",omitempty"`
	Interrupted   bool     `json:",omitempty"`
	Failures      []string `json:",omitempty"`
}

// Complete is true once Finish has been called for r.
func (r *Run) Complete() bool { return !r.Finished.IsZero() }

type RunList []*Run

//makes the json look nice
type serializationFmt struct {
	Runs RunList
}

// History is the run list plus the run in progress. It implements
// step.Observer.
type History struct {
	path    string
	runs    RunList
	current *Run
	Owner   *probe.User //if a sudo operator, the file is given to them
}

var _ step.Observer = (*History)(nil)

// DefaultPath is the history file under home.
func DefaultPath(home string) string {
	return fp.Join(home, ".local", "state", "fedprov", histName)
}

// Open loads the history at path. A missing file is an empty history; an
// unreadable one is renamed out of the way and replaced.
func Open(path string) *History {
	h := &History{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Logf("error %s reading %s", err, path)
		}
		return h
	}
	var content serializationFmt
	if err = json.Unmarshal(data, &content); err != nil {
		log.Warnf("run history %s is corrupt (%s), starting a new one", path, err)
		futil.RenameUnique(path, histName+"_bad")
		return h
	}
	for _, r := range content.Runs {
		if r != nil {
			h.runs = append(h.runs, r)
		}
	}
	return h
}

// Runs returns recorded runs, newest first.
func (h *History) Runs() RunList { return h.runs }

// Previous returns the most recent run before the current one, or nil.
func (h *History) Previous() *Run {
	for _, r := range h.runs {
		if r != h.current {
			return r
		}
	}
	return nil
}

// Notice describes how the previous run ended, if that is worth telling the
// operator. It returns "" otherwise.
func (h *History) Notice() string {
	prev := h.Previous()
	switch {
	case prev == nil:
		return ""
	case prev.Halted:
		return fmt.Sprintf("previous run (%s) paused for reboot: %s", prev.Started.Format(time.RFC3339), prev.HaltReason)
	case !prev.Complete():
		if prev.LastStep != "" {
			return fmt.Sprintf("previous run (%s) did not finish; last completed step was %q", prev.Started.Format(time.RFC3339), prev.LastStep)
		}
		return fmt.Sprintf("previous run (%s) did not finish", prev.Started.Format(time.RFC3339))
	case prev.Interrupted:
		return fmt.Sprintf("previous run (%s) was interrupted", prev.Started.Format(time.RFC3339))
	case prev.Failed > 0:
		return fmt.Sprintf("previous run (%s) had %d failed step(s): %v", prev.Started.Format(time.RFC3339), prev.Failed, prev.Failures)
	}
	return ""
}

// Begin starts a record for this run and writes it.
func (h *History) Begin(manifest string) *Run {
	h.current = &Run{
		ID:       uuid.NewString(),
		Started:  time.Now().UTC(),
		Manifest: manifest,
	}
	h.runs.moveOrAddFront(h.current)
	log.Logf("run id %s", h.current.ID)
	h.write()
	return h.current
}

// Current returns the run in progress, or nil before Begin.
func (h *History) Current() *Run { return h.current }

func (h *History) StepStarted(step.Step) {}

func (h *History) StepFinished(res step.Result) {
	r := h.current
	if r == nil {
		return
	}
	r.LastStep = res.Name
	switch res.Status {
	case step.Succeeded:
		r.Succeeded++
	case step.AlreadyDone:
		r.AlreadyDone++
	case step.Failed:
		r.Failed++
		r.Failures = append(r.Failures, res.Name)
	case step.NotApplicable:
		r.NotApplicable++
	case step.Halted:
		r.Halted = true
	}
	h.write()
}

// Finish copies the final outcome from sum into the current run and writes
// the file.
func (h *History) Finish(sum step.Summary) {
	r := h.current
	if r == nil {
		return
	}
	r.Finished = time.Now().UTC()
	r.Succeeded = sum.Count(step.Succeeded)
	r.AlreadyDone = sum.Count(step.AlreadyDone)
	r.Failed = sum.Count(step.Failed)
	r.NotApplicable = sum.Count(step.NotApplicable)
	r.Halted = sum.Halted
	r.HaltReason = sum.HaltReason
	r.Interrupted = sum.Interrupted
	r.Failures = nil
	for _, f := range sum.Failures() {
		r.Failures = append(r.Failures, f.Name)
	}
	h.write()
}

func (h *History) write() {
	if len(h.runs) > MaxRuns {
		h.runs = h.runs[:MaxRuns]
	}
	data, err := json.MarshalIndent(serializationFmt{Runs: h.runs}, "", "  ")
	if err != nil {
		log.Logf("error %s marshalling run history", err)
		return
	}
	dir := fp.Dir(h.path)
	if err = os.MkdirAll(dir, 0755); err != nil {
		log.Logf("error %s creating dir %s for %s", err, dir, histName)
		return
	}
	tmp := h.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		log.Logf("error %s writing data to %s", err, tmp)
		return
	}
	if err = os.Rename(tmp, h.path); err != nil {
		log.Logf("error %s renaming %s", err, tmp)
		return
	}
	if h.Owner != nil && h.Owner.Sudo {
		//the file and any dirs created under home
		for p := h.path; len(p) > len(h.Owner.Home); p = fp.Dir(p) {
			futil.ChownNew(p, h.Owner.Uid, h.Owner.Gid)
		}
	}
}

// if item exists in list, make it the first item. otherwise insert as first item.
func (rl *RunList) moveOrAddFront(item *Run) {
	for i := range *rl {
		if (*rl)[i] == item {
			copy((*rl)[i:], (*rl)[i+1:])
			(*rl)[len(*rl)-1] = nil
			(*rl) = (*rl)[:len(*rl)-1]
			break
		}
	}
	*rl = append(RunList{item}, (*rl)...)
}
