// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"log"
	"strings"

	"github.com/fedprov/fedprov/pkg/log/flags"
)

// AdaptStdlog redirects output from the system pkg "log" to this logger, so
// that messages from libraries (net/http, etc) land in the run log.
//
// Time-related flags on the std logger are cleared since entries carry their
// own timestamp. Use nil for logger if the logger in question is the
// predefined "standard" one.
func AdaptStdlog(logger *log.Logger, level flags.Flag) {
	sa := &stdAdapter{level: level}
	if logger == nil {
		log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime | log.Lmicroseconds))
		log.SetOutput(sa)
	} else {
		logger.SetFlags(logger.Flags() &^ (log.Ldate | log.Ltime | log.Lmicroseconds))
		logger.SetOutput(sa)
	}
}

type stdAdapter struct {
	level flags.Flag
}

func (sa *stdAdapter) Write(b []byte) (int, error) {
	FlaggedLogf(sa.level, strings.TrimRight(string(b), "\n"))
	return len(b), nil
}
