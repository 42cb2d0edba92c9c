// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Subpackages contain code for post-install provisioning of a Fedora
// workstation: bringing a fresh install to a known, fully configured state,
// safely re-runnable any number of times.
//
// A run is a fixed sequence of idempotent steps, each of which first checks
// whether its goal already holds:
//
//    - update: full system upgrade, then a check for a pending reboot. If one
//      is needed the run stops there, and the next run picks up where it
//      left off since everything before the gate is already done.
//
//    - setup: base packages, fonts, and the login shell with its framework,
//      plugins and rc file.
//
//    - optimize: dnf and kernel tuning, GNOME or KDE Plasma settings, and
//      suppression of unwanted autostart entries.
//
//    - repos, packages: third-party repositories, copr, flatpak remotes, then
//      package groups (some only for one desktop) and removals.
//
//    - apps, finalize: flatpaks and apps fetched from upstream (newest
//      version, cached, old versions pruned), manifest commands, cleanup.
//
// What gets installed is described by a yaml manifest; pkg/manifest carries
// the built-in one and its schema. cmd/fedprov is the command line tool.
// Each run leaves a log file and a line in the run history, which the next
// run reports on.
//
// Use `mage` (build/magerunner.go) to build and test.
//
package fedprov
