// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package step

import (
	"fmt"
	"strings"
	"time"

	"github.com/fedprov/fedprov/pkg/log"
)

// Summary is the outcome of a run.
type Summary struct {
	Results     []Result
	Halted      bool
	HaltReason  string
	Interrupted bool
}

// Count returns the number of results with status st.
func (s Summary) Count(st Status) (n int) {
	for _, r := range s.Results {
		if r.Status == st {
			n++
		}
	}
	return
}

// Failures returns the results with status Failed.
func (s Summary) Failures() (f []Result) {
	for _, r := range s.Results {
		if r.Status == Failed {
			f = append(f, r)
		}
	}
	return
}

func (s Summary) Result(name string) (Result, bool) {
	for _, r := range s.Results {
		if r.Name == name {
			return r, true
		}
	}
	return Result{}, false
}

func marker(st Status) string {
	switch st {
	case AlreadyDone:
		return "[done]"
	case Succeeded:
		return "[ ok ]"
	case Failed:
		return "[FAIL]"
	case Halted:
		return "[HALT]"
	}
	return "[ -- ]"
}

// Lines renders the end-of-run table, one line per step that was considered
// and applied, followed by totals.
func (s Summary) Lines() []string {
	width := 0
	for _, r := range s.Results {
		if r.Status != NotApplicable && len(r.Name) > width {
			width = len(r.Name)
		}
	}
	var lines []string
	for _, r := range s.Results {
		if r.Status == NotApplicable {
			continue
		}
		l := fmt.Sprintf("%s %-*s %8s", marker(r.Status), width, r.Name, r.Duration.Round(time.Second))
		if r.Status == Failed && r.Err != nil {
			l += "  " + firstLine(r.Err.Error())
		}
		lines = append(lines, l)
	}
	lines = append(lines, fmt.Sprintf("%d succeeded, %d already done, %d failed, %d not applicable",
		s.Count(Succeeded), s.Count(AlreadyDone), s.Count(Failed), s.Count(NotApplicable)))
	return lines
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// Report logs the summary for the operator. logPath, if not empty, is where
// the full log can be found.
func (s Summary) Report(logPath string) {
	log.Msgf("Summary:\n%s", strings.Join(s.Lines(), "\n"))
	switch {
	case s.Halted:
		log.Warnf("run paused: %s", s.HaltReason)
	case s.Interrupted:
		log.Warnf("run interrupted; run again to finish")
	case s.Count(Failed) > 0:
		log.Warnf("%d step(s) failed; fix the cause and run again, completed steps will be skipped", s.Count(Failed))
	default:
		log.Successf("provisioning complete")
	}
	if logPath != "" {
		log.Msgf("full log: %s", logPath)
	}
}
