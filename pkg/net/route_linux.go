// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package net answers questions about the host's network state.
package net

import (
	"github.com/vishvananda/netlink"

	"github.com/fedprov/fedprov/pkg/log"
)

//replaced in tests
var routeList = netlink.RouteList

// HaveDefaultRoute returns true if the main table has an ipv4 or ipv6 default
// route. This is the cheapest reasonable proxy for "online": no packets are
// sent.
func HaveDefaultRoute() bool {
	for _, fam := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		routes, err := routeList(nil, fam)
		if err != nil {
			log.Logf("listing routes (family %d): %s", fam, err)
			continue
		}
		for _, r := range routes {
			if isDefault(r) {
				log.Logf("default route via %s", r.Gw)
				return true
			}
		}
	}
	return false
}

func isDefault(r netlink.Route) bool {
	if r.Dst == nil {
		return r.Gw != nil || r.LinkIndex > 0
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0 && r.Dst.IP.IsUnspecified()
}
