// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package kver parses and compares kernel release strings, as reported by
// uname -r or rpm's VERSION-RELEASE.ARCH for kernel packages.
package kver

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/fedprov/fedprov/pkg/log"
)

var EParse = errors.New("parse error")

type KInfo struct {
	//6.8.9-300.fc40.x86_64
	//maj.min.patch-localver
	Release         string
	Maj, Min, Patch uint64
	LocalVer        string //300.fc40.x86_64 in the example above
}

//Parse a release string such as 6.8.9-300.fc40.x86_64. Patch may be absent.
func ParseRelease(rel string) (KInfo, error) {
	ki := KInfo{Release: strings.TrimSpace(rel)}
	elements := strings.SplitN(ki.Release, "-", 2)
	if len(elements) == 2 {
		ki.LocalVer = elements[1]
	}
	nums := strings.Split(elements[0], ".")
	if len(nums) < 2 || len(nums) > 3 {
		log.Logf("unable to parse %s, wrong number of dots in version %s", rel, elements[0])
		return KInfo{}, EParse
	}
	dest := []*uint64{&ki.Maj, &ki.Min, &ki.Patch}
	for i, n := range nums {
		v, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			log.Logf("unable to parse %s, bad uint %s: %s", rel, n, err)
			return KInfo{}, EParse
		}
		*dest[i] = v
	}
	return ki, nil
}

// Compare returns -1, 0, or 1 as a is older than, equal to, or newer than b.
// Numeric fields compare numerically; LocalVer is compared segment by segment
// the way rpm compares release strings.
func (a KInfo) Compare(b KInfo) int {
	for _, p := range [][2]uint64{{a.Maj, b.Maj}, {a.Min, b.Min}, {a.Patch, b.Patch}} {
		if p[0] != p[1] {
			if p[0] < p[1] {
				return -1
			}
			return 1
		}
	}
	return compareSegments(a.LocalVer, b.LocalVer)
}

// Compare parses and compares two release strings. Unparseable strings sort
// before parseable ones, and compare to each other lexically.
func Compare(a, b string) int {
	ka, errA := ParseRelease(a)
	kb, errB := ParseRelease(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return ka.Compare(kb)
}

// Newest returns the highest release in rels, or "" if there are none.
func Newest(rels []string) (newest string) {
	for _, r := range rels {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if newest == "" || Compare(r, newest) > 0 {
			newest = r
		}
	}
	return
}

//split into runs of digits and runs of letters; everything else separates
func segments(s string) (segs []string) {
	cur := []rune{}
	flush := func() {
		if len(cur) > 0 {
			segs = append(segs, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case !unicode.IsDigit(r) && !unicode.IsLetter(r):
			flush()
		case len(cur) > 0 && unicode.IsDigit(cur[0]) != unicode.IsDigit(r):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return
}

func compareSegments(a, b string) int {
	sa, sb := segments(a), segments(b)
	for i := 0; i < len(sa) && i < len(sb); i++ {
		x, y := sa[i], sb[i]
		xNum, yNum := unicode.IsDigit(rune(x[0])), unicode.IsDigit(rune(y[0]))
		switch {
		case xNum && !yNum:
			return 1
		case !xNum && yNum:
			return -1
		case xNum:
			x, y = strings.TrimLeft(x, "0"), strings.TrimLeft(y, "0")
			if len(x) != len(y) {
				if len(x) < len(y) {
					return -1
				}
				return 1
			}
		}
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
	}
	switch {
	case len(sa) < len(sb):
		return -1
	case len(sa) > len(sb):
		return 1
	}
	return 0
}
