// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Command fedprov brings a freshly installed Fedora workstation to a
// configured state. It is safe to run repeatedly: finished work is skipped,
// and a run paused for a reboot picks up where it stopped.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fedprov/fedprov/pkg/log"
	"github.com/fedprov/fedprov/pkg/log/flags"
	"github.com/fedprov/fedprov/pkg/log/tty"
	"github.com/fedprov/fedprov/pkg/provision"
)

//in any binary with main.buildId string, it is set at compile time to $BUILD_INFO
var buildId string

var (
	manifestPath string
	logDir       string
	verbose      bool

	rootCmd = &cobra.Command{
		Use:           "fedprov",
		Short:         "Provision a Fedora workstation after installation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest to use instead of the built-in one")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for the run log (default: your home directory)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed progress on the console")
}

func setupLogging() {
	log.SetPrefix(provision.LogPrefix)
	var show flags.Flag = log.ConsoleDefault
	if verbose {
		show = flags.NA
	}
	if tty.Available() {
		if err := tty.AddTtyLog(show); err != nil {
			log.AddConsoleLog(show)
		}
	} else {
		log.AddConsoleLog(show)
	}
	log.AdaptStdlog(nil, flags.NA)
	log.SetFatalAction(log.FailAction{MsgPfx: "ERROR: ", Terminator: log.DefaultFatalAction})
}

func run(cmd *cobra.Command, _ []string) error {
	setupLogging()
	defer log.Finalize()
	if buildId != "" {
		log.Logf("buildId: %s", buildId)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := provision.Main(ctx, provision.Options{
		ManifestPath: manifestPath,
		LogDir:       logDir,
	})
	if code != 0 {
		log.Finalize()
		os.Exit(code)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Stderr.WriteString("fedprov: " + err.Error() + "\n")
		os.Exit(2)
	}
}
