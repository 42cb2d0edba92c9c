// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package testlog

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fedprov/fedprov/pkg/log"
)

//represents a Cmd in CmdMap
type Key string

//generates key for given command
func CmdKey(args ...string) Key {
	k := ""
	for _, arg := range args {
		k += fmt.Sprintf("%s|", arg)
	}
	return Key(k)
}

//execution result
type Result struct {
	Res     string
	Success bool
}

// Convenience results.
var (
	OK   = Result{Success: true}
	Fail = Result{Success: false}
)

//data for use with the hijackers
type HijackerData struct {
	Result   Result        //if NoRun is false, this is updated with result on each run
	Results  []Result      //if non-empty, consumed one per run (before Result is used)
	RunCount int           //number of times the command has been invoked
	NoRun    bool          //if true,returns already-stored Result
	Pause    time.Duration //in addition to any execution time, pause this long before returning
}

//map passed to the hijackers
type CmdMap map[Key]HijackerData

// Stub returns a CmdMap entry value that never runs and yields the given
// results in order, repeating the last one.
func Stub(results ...Result) HijackerData {
	hd := HijackerData{NoRun: true}
	switch len(results) {
	case 0:
		hd.Result = OK
	case 1:
		hd.Result = results[0]
	default:
		hd.Results = results[:len(results)-1]
		hd.Result = results[len(results)-1]
	}
	return hd
}

//Using a map of commands, either record results or replay given results.
//Commands not in the map are executed for real.
func (tlog *TstLog) UseMappedCmdHijacker(m CmdMap) {
	tlog.hijack(m, nil)
}

// UseFakeCmdHijacker is like UseMappedCmdHijacker, but nothing is ever
// executed: commands missing from the map return dflt.
func (tlog *TstLog) UseFakeCmdHijacker(m CmdMap, dflt Result) {
	tlog.hijack(m, &dflt)
}

func (tlog *TstLog) hijack(m CmdMap, dflt *Result) {
	log.Cmd = func(cmd *exec.Cmd) (res string, success bool) {
		tlog.t.Helper()
		tlog.cmdMu.Lock()
		defer tlog.cmdMu.Unlock()
		tlog.cmds = append(tlog.cmds, append([]string(nil), cmd.Args...))
		if cmd.Cancel == nil {
			tlog.noCtx = append(tlog.noCtx, append([]string(nil), cmd.Args...))
		}
		key := CmdKey(cmd.Args...)
		log.Logf("Running %v...", cmd.Args)
		data, mapped := m[key]
		data.RunCount++
		switch {
		case !mapped && dflt != nil:
			res, success = dflt.Res, dflt.Success
		case data.NoRun && len(data.Results) > 0:
			res, success = data.Results[0].Res, data.Results[0].Success
			data.Results = data.Results[1:]
		case data.NoRun:
			res, success = data.Result.Res, data.Result.Success
		default:
			out, err := cmd.CombinedOutput()
			res = string(out)
			if err == nil {
				success = true
			} else {
				log.Logf("Running %v: error %s\noutput:\n%s\n", cmd.Args, err, res)
			}
			data.Result.Res, data.Result.Success = res, success
		}
		if mapped || dflt == nil {
			m[key] = data
		}
		time.Sleep(data.Pause)
		return
	}
}

// Commands returns the args of every hijacked command, in execution order.
func (tlog *TstLog) Commands() [][]string {
	tlog.cmdMu.Lock()
	defer tlog.cmdMu.Unlock()
	return append([][]string(nil), tlog.cmds...)
}

// WithoutContext returns the args of hijacked commands that were not created
// with exec.CommandContext, and so would outlive a cancelled run.
func (tlog *TstLog) WithoutContext() [][]string {
	tlog.cmdMu.Lock()
	defer tlog.cmdMu.Unlock()
	return append([][]string(nil), tlog.noCtx...)
}

// Ran reports how many hijacked commands started with the given args.
func (tlog *TstLog) Ran(prefix ...string) (n int) {
	want := strings.Join(prefix, " ")
	for _, c := range tlog.Commands() {
		if strings.HasPrefix(strings.Join(c, " "), want) {
			n++
		}
	}
	return
}
