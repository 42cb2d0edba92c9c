// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

type CommandFunc func(cmd *exec.Cmd) (res string, success bool)

//Wrapper for exec.Command(...).CombinedOutput(). If this is used, exec's can
//be mocked/tracked by testlog.
var Cmd CommandFunc = DefaultCmd

// Default impl of Cmd(); runs a command, capturing output, logging in the
// event of failure. On failure, returns the output and false.
func DefaultCmd(cmd *exec.Cmd) (res string, success bool) {
	Logf("Running %v...", cmd.Args)
	out, err := cmd.CombinedOutput()
	res = string(out)
	if err == nil {
		success = true
		return
	}
	Logf("Running %v: error %s\noutput:\n%s\n", cmd.Args, err, res)
	return
}

// ECmd is wrapped by errors from CmdErr.
var ECmd = errors.New("command failed")

// CmdErr is like Cmd, but failure is reported as an error wrapping ECmd that
// names the command and carries the tail of its output.
func CmdErr(cmd *exec.Cmd) (string, error) {
	res, success := Cmd(cmd)
	if success {
		return res, nil
	}
	return res, fmt.Errorf("%w: %s: %s", ECmd, strings.Join(cmd.Args, " "), tail(res, 5))
}

// last n non-empty lines of s, joined with "; "
func tail(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 0 {
		return "no output"
	}
	return strings.Join(lines, "; ")
}
