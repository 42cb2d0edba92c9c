// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Manifest-schema generates a json schema for
// github.com/fedprov/fedprov/pkg/manifest. The output is the starting point
// for pkg/manifest/schema.json, which is then edited by hand.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/alecthomas/jsonschema"

	"github.com/fedprov/fedprov/pkg/manifest"
)

const Warn = `WARNING:
	schema will need to be hand-edited, as the output isn't perfect
	* jsonschema doesn't realize that exit_status is marshalled as a string
	* enums (app kind, probe, desktop, phase) and patterns are not generated
`

func main() {
	loose := flag.Bool("loose", false, "allow additional properties")
	flag.Parse()
	fmt.Fprint(os.Stderr, Warn)
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  *loose,
	}
	schem := r.Reflect(&manifest.Manifest{})
	data, err := json.MarshalIndent(schem, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", data)
}
