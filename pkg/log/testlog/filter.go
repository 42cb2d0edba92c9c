// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package testlog

import (
	"bufio"
	"regexp"
	"strings"
)

//a function that returns true if 'in' should be included in entries compared
type LineFilterer func(in string) (match bool)

//filter passing only lines with given prefix (note prefixes added by severity)
func FilterPfx(pfx string) LineFilterer {
	return func(in string) bool { return strings.HasPrefix(in, pfx) }
}

//filter with given regex
func FilterRe(re string) LineFilterer {
	rx := regexp.MustCompile(re)
	return func(in string) bool {
		return rx.MatchString(in)
	}
}

//Filter buffered log using lf as test. Return matches. Buffer is not modified.
//Assumes each entry is a single line.
func (tlog *TstLog) Filter(lf LineFilterer) []string {
	tlog.mu.RLock()
	defer tlog.mu.RUnlock()
	if tlog.Buf == nil {
		tlog.t.Error("nil buffer")
		return nil
	}
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(tlog.Buf.String()))
	for scanner.Scan() {
		if lf(scanner.Text()) {
			lines = append(lines, scanner.Text())
		}
	}
	return lines
}
