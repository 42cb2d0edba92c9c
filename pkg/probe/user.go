// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package probe

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// User is the person the machine is being provisioned for. When running
// under sudo this is the invoking user, not root.
type User struct {
	Name     string
	Uid, Gid int
	Home     string
	Sudo     bool //running as root on behalf of this user
}

//replaced in tests
var (
	lookupId = user.LookupId
	current  = user.Current
	geteuid  = os.Geteuid
)

// Operator determines the operator from SUDO_UID/SUDO_GID if running as root
// via sudo, or the current user otherwise.
func Operator(env Getenv) (User, error) {
	if env == nil {
		env = os.Getenv
	}
	if sudoUid := env("SUDO_UID"); sudoUid != "" && geteuid() == 0 {
		u, err := lookupId(sudoUid)
		if err != nil {
			return User{}, fmt.Errorf("SUDO_UID %s: %w", sudoUid, err)
		}
		usr, err := fromUser(u)
		if err != nil {
			return User{}, err
		}
		if g := env("SUDO_GID"); g != "" {
			if usr.Gid, err = strconv.Atoi(g); err != nil {
				return User{}, fmt.Errorf("SUDO_GID %s: %w", g, err)
			}
		}
		usr.Sudo = true
		return usr, nil
	}
	u, err := current()
	if err != nil {
		return User{}, err
	}
	return fromUser(u)
}

func fromUser(u *user.User) (User, error) {
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return User{}, fmt.Errorf("uid %s: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return User{}, fmt.Errorf("gid %s: %w", u.Gid, err)
	}
	return User{Name: u.Username, Uid: uid, Gid: gid, Home: u.HomeDir}, nil
}
