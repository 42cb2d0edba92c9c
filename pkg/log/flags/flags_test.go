// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package flags

import (
	"testing"
)

func TestString(t *testing.T) {
	for i, td := range []struct {
		f    Flag
		want string
	}{
		{f: EndUser | Fatal, want: "user|fatal"},
		{f: EndUser, want: "user"},
		{f: NA, want: ""},
		{f: Flag(0), want: ""},
		{f: Flag(0x1), want: "user"},
		{f: Flag(0x2), want: "fatal"},
		{f: Flag(0x4), want: "not file"},
		{f: Flag(0x8), want: "success"},
		{f: Flag(0x10), want: "warning"},
		{f: Flag(0x20), want: "critical"},
		{f: Flag(0x40), want: "banner"},
		{f: Critical | Banner, want: "critical|banner"},
		{f: Flag(0x1202), want: "fatal|0x1200"},
		{f: Flag(0x7800), want: "0x7800"},
	} {
		got := td.f.String()
		if got != td.want {
			t.Errorf("%d: want %s got %s", i, td.want, got)
		}
	}
}

func TestSeverity(t *testing.T) {
	for _, td := range []struct {
		f, want Flag
	}{
		{EndUser, NA},
		{EndUser | Success, Success},
		{Warning | Success, Warning},
		{Critical | Banner | EndUser, Critical},
		{Fatal | Critical, Fatal},
	} {
		if got := td.f.Severity(); got != td.want {
			t.Errorf("%s: want %s got %s", td.f, td.want, got)
		}
	}
}
