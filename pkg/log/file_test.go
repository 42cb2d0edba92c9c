// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log_test

// Note that this is package log_test, not log. Ensures that we expose enough
// functions to make testing possible from other packages.

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/log/flags"
)

func TestFileLog(t *testing.T) {
	log.DefaultLogStack()
	defer log.DefaultLogStack() //cleanup when test is done
	T, err := time.Parse("2006", "1999")
	if err != nil {
		t.Fatal(err)
	}
	e := log.LogEntry{
		Time:  T,
		Msg:   "interesting event",
		Flags: flags.EndUser,
	}
	stack := log.Stack()
	stack.AddEntry(e)
	//add another event, this time one that should not make it into the file
	e.Time = T.Add(time.Minute)
	e.Msg = "sensitive event"
	e.Flags = flags.EndUser | flags.NotFile
	stack.AddEntry(e)
	if entries := log.StoredEntries(); len(entries) != 2 {
		t.Error("wrong entries", entries)
	}

	tmp := t.TempDir()
	log.SetPrefix("gotest")
	fname, err := log.AddFileLog(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if log.FilePath() != fname {
		t.Errorf("FilePath: want %s, got %s", fname, log.FilePath())
	}
	if !strings.HasPrefix(fname, tmp+"/gotest_") || !strings.HasSuffix(fname, ".log") {
		t.Errorf("unexpected name %s", fname)
	}

	//entries must be on disk before Finalize
	log.Warnf("disk is %d%% full", 91)
	buf, err := os.ReadFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(buf), "?! disk is 91% full") {
		t.Errorf("entry not written through:\n%s", string(buf))
	}

	log.Finalize()
	buf, err = os.ReadFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	want := "-- 19990101_000000 -- interesting event\n"
	if !strings.HasPrefix(string(buf), want) {
		t.Errorf("file:\nwant prefix %q\ngot  %q", want, string(buf))
	}
	if strings.Contains(string(buf), "sensitive") {
		t.Error("NotFile entry written to file")
	}
}

func TestFileLogNoPrefix(t *testing.T) {
	log.DefaultLogStack()
	defer log.DefaultLogStack()
	log.SetPrefix("")
	if _, err := log.AddFileLog(t.TempDir()); err != log.EPrefix {
		t.Errorf("want EPrefix, got %v", err)
	}
}
