// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package flags

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Flag int

const (
	NA Flag = 0

	//ok to display message to the operator
	EndUser Flag = 1 << (iota - 1) //iota increments with first ConstSpec in the const declaration, so subtract 1
	//logging a fatal error
	Fatal
	//do not write to local file log
	NotFile
	//something completed as intended
	Success
	//something is off, but the run continues
	Warning
	//something failed; the run may still continue
	Critical
	//render prominently (boxed) on consoles that support it
	Banner
)

var named = []Flag{EndUser, Fatal, NotFile, Success, Warning, Critical, Banner}

func (f Flag) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }
func (f Flag) String() string {
	switch f {
	case NA:
		return ""
	case EndUser:
		return "user"
	case Fatal:
		return "fatal"
	case NotFile:
		return "not file"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	case Banner:
		return "banner"
	}
	for _, bit := range named {
		if f&bit > 0 {
			return strings.Join([]string{bit.String(), (f &^ bit).String()}, "|")
		}
	}
	return fmt.Sprintf("0x%x", int(f))
}

// Severity returns the most severe of Fatal, Critical, Warning, Success that
// is set, or NA.
func (f Flag) Severity() Flag {
	for _, bit := range []Flag{Fatal, Critical, Warning, Success} {
		if f&bit != 0 {
			return bit
		}
	}
	return NA
}
