// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fetch

import (
	"errors"
	"os"
	"regexp"
)

var ErrUnsafeScript = errors.New("script contains a destructive command")

// Obviously destructive commands. This is a tripwire for accidents, not a
// security boundary: anything can be obfuscated past it.
var denylist = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-(rf|fr)\s+/\*?(\s|;|&|$)`),
	regexp.MustCompile(`\brm\s+-(rf|fr)\s+~/?(\s|;|&|$)`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bof=/dev/(sd|nvme|vd|mmcblk)`),
	regexp.MustCompile(`>\s*/dev/(sd|nvme|vd)`),
	regexp.MustCompile(`:\(\)\s*\{`),
}

// ScanScript returns the first denylisted text found in the file at path, or
// "" if there is none.
func ScanScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, re := range denylist {
		if m := re.Find(data); m != nil {
			return string(m), nil
		}
	}
	return "", nil
}
