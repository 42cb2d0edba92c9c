// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package log is a flexible logging mechanism allowing multiple log sinks,
// outputting to one or more of: the console, a styled terminal, a file, etc.
//
// By default, events are retained in memory so they can be re-played into
// new log sinks if/when they are added later on. This is how the run log file
// ends up containing events logged before the operator's home dir was known.
//
// Severity is carried in flags; see Successf, Warnf, Criticalf.
package log

import "github.com/fedprov/fedprov/pkg/log/flags"

var logPrefix string

// Sets the log prefix, which is used in the file name and other places. Must
// be set before calling AddFileLog()
func SetPrefix(pfx string) {
	logPrefix = pfx
}

// Gets the log prefix
func GetPrefix() string { return logPrefix }

// Msgf is for use with messages suitable for display to the operator. Short,
// non-technical.
func Msgf(f string, va ...interface{}) { FlaggedLogf(flags.EndUser, f, va...) }

// See Msgf
func Msg(message string) { Msgf(message) }

// Logf is for use with more technical, or more trivial, messages. Only shown on
// the console in verbose mode; always in the file.
func Logf(f string, va ...interface{}) { FlaggedLogf(flags.NA, f, va...) }

// See Logf
func Log(message string) { Logf(message) }

// Successf reports something that completed as intended.
func Successf(f string, va ...interface{}) { FlaggedLogf(flags.EndUser|flags.Success, f, va...) }

// Warnf reports a condition the operator should know about. The run continues.
func Warnf(f string, va ...interface{}) { FlaggedLogf(flags.EndUser|flags.Warning, f, va...) }

// Criticalf reports a failure. Unlike Fatalf, it returns.
func Criticalf(f string, va ...interface{}) { FlaggedLogf(flags.EndUser|flags.Critical, f, va...) }

// Bannerf is like Criticalf, but sinks that are able to will render it
// prominently.
func Bannerf(f string, va ...interface{}) {
	FlaggedLogf(flags.EndUser|flags.Critical|flags.Banner, f, va...)
}
