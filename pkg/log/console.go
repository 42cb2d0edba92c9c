// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fedprov/fedprov/pkg/log/flags"
)

type consoleLog struct {
	flags flags.Flag
	out   io.Writer
	next  StackableLogger
}

// Adds a consoleLog to the stack. Flags determine which events will log to the
// console. Typically this would be flags.NA (everything) or ConsoleDefault.
// Output goes to stderr.
func AddConsoleLog(flags flags.Flag) {
	_ = AddLogger(&consoleLog{flags: flags, out: os.Stderr}, true)
}

// The set of flags shown on a console unless verbose output is requested.
const ConsoleDefault = flags.EndUser | flags.Success | flags.Warning | flags.Critical | flags.Fatal | flags.Banner

var _ StackableLogger = (*consoleLog)(nil)

func (l *consoleLog) AddEntry(e LogEntry) {
	if l.flags == 0 || e.Flags&l.flags > 0 {
		if e.Flags&flags.Banner != 0 {
			fmt.Fprintln(l.out, frame(e.Text()))
		} else {
			fmt.Fprintln(l.out, e.String())
		}
	}
	if l.next != nil {
		l.next.AddEntry(e)
	}
}

// surround text with a line of asterisks above and below
func frame(text string) string {
	width := 0
	for _, line := range strings.Split(text, "\n") {
		if len(line) > width {
			width = len(line)
		}
	}
	stars := strings.Repeat("*", width+4)
	var sb strings.Builder
	sb.WriteString(stars + "\n")
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString("* " + line + strings.Repeat(" ", width-len(line)) + " *\n")
	}
	sb.WriteString(stars)
	return sb.String()
}

func (l *consoleLog) ForwardTo(sl StackableLogger) {
	if l.next == nil || sl == nil {
		l.next = sl
	} else {
		panic("next already set")
	}
}

const ConsoleLogIdent = "consoleLog"

func (*consoleLog) Ident() string           { return ConsoleLogIdent }
func (l *consoleLog) Next() StackableLogger { return l.next }

func (l *consoleLog) Finalize() {
	if l.next != nil {
		l.next.Finalize()
	}
}
