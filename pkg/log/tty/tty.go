// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package tty is a StackableLog that renders events on an interactive
// terminal, colouring them by severity. Entries flagged with flags.Banner are
// drawn in a box. Use Available() to decide between this and the plain console
// log.
package tty

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/log/flags"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	criticalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	bannerStyle   = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EF4444")).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("#F59E0B")).
			Padding(1, 3)
)

// Available reports whether stderr is a terminal.
func Available() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// AddTtyLog adds a TtyLog writing to stderr. Events with none of opts set are
// not shown; opts == 0 shows everything.
func AddTtyLog(opts flags.Flag) error {
	return log.AddLogger(&TtyLog{opts: opts, out: os.Stderr}, true)
}

type TtyLog struct {
	opts flags.Flag
	out  io.Writer
	next log.StackableLogger
}

var _ log.StackableLogger = (*TtyLog)(nil)

func (l *TtyLog) AddEntry(e log.LogEntry) {
	if l.opts == 0 || e.Flags&l.opts != 0 {
		fmt.Fprintln(l.out, Render(e))
	}
	if l.next != nil {
		l.next.AddEntry(e)
	}
}

// Render returns the styled form of e.
func Render(e log.LogEntry) string {
	if e.Flags&flags.Banner != 0 {
		return bannerStyle.Render(e.Text())
	}
	line := e.Marker() + e.Text()
	switch e.Flags.Severity() {
	case flags.Fatal, flags.Critical:
		return criticalStyle.Render(line)
	case flags.Warning:
		return warningStyle.Render(line)
	case flags.Success:
		return successStyle.Render(line)
	}
	if e.Flags&flags.EndUser == 0 {
		return infoStyle.Render(line)
	}
	return line
}

func (l *TtyLog) ForwardTo(sl log.StackableLogger) {
	if l.next == nil || sl == nil {
		l.next = sl
	} else {
		panic("next already set")
	}
}

const TtyLogIdent = "ttyLog"

func (*TtyLog) Ident() string               { return TtyLogIdent }
func (l *TtyLog) Next() log.StackableLogger { return l.next }

func (l *TtyLog) Finalize() {
	if l.next != nil {
		l.next.Finalize()
	}
}
