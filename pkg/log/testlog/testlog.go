// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package testlog hijacks the output of github.com/fedprov/fedprov/pkg/log,
// and can hijack log.Cmd(). By default, this output prints through testing
// functions but it can be stored in a buffer as well - for example, for
// analysis as part of the test.
//
// Cmd() hijacking (via UseMappedCmdHijacker or UseFakeCmdHijacker) lets code
// that drives dnf, flatpak, gsettings, etc be tested without those tools.
package testlog

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/log/flags"
)

//Conforms to log.StackableLogger interface. Constructed via NewTestLog().
type TstLog struct {
	events        leChan
	t             *testing.T    //log here if Buf is nil
	Buf           *bytes.Buffer //if non-nil, output goes here
	MsgCount      int           //counts number of calls to Msgf() and friends
	LogCount      int           //counts number of calls to Logf()
	FatalCount    int           //counts number of calls to Fatalf()
	FatalIsNotErr bool          //if true, do not call t.Errorf() for Fatalf()
	freeze        bool          //do not write any more to Buf
	stderr        bool          //also immediately write to stderr
	mu            sync.RWMutex  //still needed, not 1:1 match for mutex in log pkg
	bgWg          sync.WaitGroup

	cmdMu sync.Mutex
	cmds  [][]string //args of each hijacked command, in order
	noCtx [][]string //those of cmds built without a context
}

//Returns a new TstLog. If bufferLog is true, logging goes to a buffer rather
//than passing directly to t.Log()/t.Error(). Do not share one TstLog between
//tests - create a new one each time.
func NewTestLog(t *testing.T, bufferLog, stderr bool) (tlog *TstLog) {
	tlog = &TstLog{
		events: make(leChan, 1024),
		t:      t,
		stderr: stderr,
	}
	if bufferLog {
		tlog.Buf = new(bytes.Buffer)
	}
	tlog.bgWg.Add(1)
	go tlog.bgProc()
	log.NewLogStack(tlog)
	log.SetFatalAction(log.FailAction{Terminator: func() {}})
	return
}

//Like NewTestLog, but does not use a channel or background thread, and always
//buffers. Provides more trackable output.
func NewTestLogNoBG(t *testing.T) (tlog *TstLog) {
	tlog = &TstLog{t: t, Buf: new(bytes.Buffer)}
	log.NewLogStack(tlog)
	log.SetFatalAction(log.FailAction{Terminator: func() {}})
	return
}

var _ log.StackableLogger = (*TstLog)(nil)

// Prefixes added to buffered lines, by severity.
const (
	PfxMsg   = "MSG:"
	PfxLog   = "LOG:"
	PfxOK    = "OK:"
	PfxWarn  = "WARN:"
	PfxCrit  = "CRIT:"
	PfxFatal = ">>FATAL()<< "
)

func prefix(f flags.Flag) string {
	switch f.Severity() {
	case flags.Fatal:
		return PfxFatal
	case flags.Critical:
		return PfxCrit
	case flags.Warning:
		return PfxWarn
	case flags.Success:
		return PfxOK
	}
	if f&flags.EndUser != 0 {
		return PfxMsg
	}
	return PfxLog
}

func (tlog *TstLog) AddEntry(e log.LogEntry) {
	tlog.mu.RLock()
	freeze := tlog.freeze
	tlog.mu.RUnlock()
	if freeze {
		return
	}
	if tlog.events != nil {
		tlog.events <- e
	} else {
		tlog.t.Helper()
		tlog.handleEvt(e)
	}
}

const TstLogIdent = "tstLog"

func (*TstLog) Ident() string                      { return TstLogIdent }
func (tl *TstLog) Next() log.StackableLogger       { return nil }
func (*TstLog) Finalize()                          {}
func (tl *TstLog) ForwardTo(_ log.StackableLogger) {}

type leChan chan log.LogEntry

//background process started by NewTestLog() but not NewTestLogNoBG()
func (tlog *TstLog) bgProc() {
	tlog.t.Helper()
	defer tlog.bgWg.Done()
	for evt := range tlog.events {
		tlog.handleEvt(evt)
	}
}

func (tlog *TstLog) handleEvt(evt log.LogEntry) {
	tlog.t.Helper()
	line := prefix(evt.Flags) + evt.Text()
	switch {
	case evt.Flags&flags.Fatal != 0:
		tlog.FatalCount++
		if !tlog.FatalIsNotErr {
			tlog.t.Error(line)
			return
		}
	case evt.Flags&flags.EndUser != 0:
		tlog.MsgCount++
	default:
		tlog.LogCount++
	}
	if tlog.stderr {
		fmt.Fprintf(os.Stderr, "@%s: %s\n", evt.Time.Format(stampMilli), line)
	}
	if tlog.Buf != nil {
		tlog.mu.Lock()
		tlog.Buf.WriteString(line + "\n")
		tlog.mu.Unlock()
	} else {
		tlog.t.Logf("@%s: %s", evt.Time.Format(stampMilli), line)
	}
}

const stampMilli = "15:04:05.000" //time format used for stderr. like time.StampMilli, but leaves off date

//sometimes used in testing to inject separators
func (tlog *TstLog) Logf(f string, va ...interface{}) {
	tlog.t.Helper()
	tlog.AddEntry(log.LogEntry{
		Time: time.Now(),
		Msg:  f,
		Args: va,
	})
}

//call at end of test to sync log and shut down bgProc. Also restores log.Cmd.
func (tlog *TstLog) Freeze() {
	tlog.mu.Lock()
	freeze := tlog.freeze
	tlog.mu.Unlock()
	if freeze {
		return
	}
	log.DefaultLogStack()
	log.SetFatalAction(log.DefaultFatal)
	log.Cmd = log.DefaultCmd

	tlog.mu.Lock()
	tlog.freeze = true
	tlog.mu.Unlock()
	if tlog.events == nil {
		return
	}
	for len(tlog.events) > 0 {
		time.Sleep(time.Millisecond)
	}
	close(tlog.events)
	tlog.bgWg.Wait()
}

// String returns buffered output. Call Freeze first.
func (tlog *TstLog) String() string {
	tlog.mu.RLock()
	defer tlog.mu.RUnlock()
	if tlog.Buf == nil {
		return ""
	}
	return tlog.Buf.String()
}
