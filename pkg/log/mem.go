// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

// memLog holds entries logged before any other sink exists, so that the run
// log file can be back-filled once the operator's home dir is known. It keeps
// at most MemLogLimit entries; older ones are dropped and counted.
type memLog struct {
	entries []LogEntry
	dropped int
	next    StackableLogger
}

var _ StackableLogger = (*memLog)(nil)

const (
	MemLogIdent = "memLog"
	MemLogLimit = 4096
)

func AddMemLog() error { return AddLogger(&memLog{}, false) }

func (ml *memLog) AddEntry(e LogEntry) {
	if len(ml.entries) == MemLogLimit {
		copy(ml.entries, ml.entries[1:])
		ml.entries = ml.entries[:MemLogLimit-1]
		ml.dropped++
	}
	ml.entries = append(ml.entries, e)
	if ml.next != nil {
		ml.next.AddEntry(e)
	}
}

func (ml *memLog) ForwardTo(sl StackableLogger) {
	if ml.next == nil || sl == nil {
		ml.next = sl
	} else {
		panic("next already set")
	}
}

func (ml *memLog) Ident() string         { return MemLogIdent }
func (ml *memLog) Next() StackableLogger { return ml.next }

func (ml *memLog) Finalize() {
	ml.entries = nil
	ml.dropped = 0
	if ml.next != nil {
		ml.next.Finalize()
	}
}

// replay feeds the buffered entries to sl, oldest first.
func (ml *memLog) replay(sl StackableLogger) {
	if ml.dropped > 0 {
		sl.AddEntry(LogEntry{Time: ml.entries[0].Time, Msg: "(%d earlier entries not retained)", Args: []interface{}{ml.dropped}})
	}
	for _, e := range ml.entries {
		sl.AddEntry(e)
	}
}

// StoredEntries returns a copy of what the memLog holds, or nil if there is
// none in the stack.
func StoredEntries() []LogEntry {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	ml, ok := findIn(logStack, MemLogIdent).(*memLog)
	if !ok {
		return nil
	}
	return append([]LogEntry(nil), ml.entries...)
}

// FlushMemLog stops buffering. Call once every sink that wants the early
// entries has been added.
func FlushMemLog() {
	RemoveLogger(MemLogIdent)
}
