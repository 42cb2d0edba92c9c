// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package xfer

import (
	"os"
	"time"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/log/flags"
)

var progressInterval = 3 * time.Second

// ShowProgress reports the size of path until done is closed. Messages are
// shown to the operator but kept out of the log file.
func ShowProgress(done chan struct{}, activityDesc, path string, total int64) {
	noErr := true //only log stat error once
	for {
		select {
		case <-done:
			return
		case <-time.After(progressInterval):
		}
		fi, err := os.Stat(path)
		if err != nil {
			if noErr {
				log.Logf("ShowProgress: Stat() reports %s", err)
				noErr = false
			}
			continue
		}
		size := fi.Size() / (1024 * 1024)
		if total > 0 {
			log.FlaggedLogf(flags.EndUser|flags.NotFile, "%s... %dM of %dM", activityDesc, size, total/(1024*1024))
		} else {
			log.FlaggedLogf(flags.EndUser|flags.NotFile, "%s... %dM", activityDesc, size)
		}
	}
}
