// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fedprov/fedprov/pkg/net/xfer"
)

// VersionProbe finds the current download for an application: the URL to
// fetch and the file name it should be cached under. The file name carries
// the version, which is what makes cached copies recognizably stale.
type VersionProbe interface {
	Resolve(ctx context.Context, f xfer.Fetcher) (url, file string, err error)
}

// StaticProbe always downloads URL.
type StaticProbe struct {
	URL string
}

func (p StaticProbe) Resolve(_ context.Context, _ xfer.Fetcher) (string, string, error) {
	return p.URL, xfer.FileName(p.URL), nil
}

// RedirectProbe follows one redirect from a "latest" URL without downloading
// anything; the file name comes from the redirect target.
type RedirectProbe struct {
	URL string
}

func (p RedirectProbe) Resolve(ctx context.Context, f xfer.Fetcher) (string, string, error) {
	u, err := f.Resolve(ctx, p.URL)
	if err != nil {
		return "", "", err
	}
	return u, xfer.FileName(u), nil
}

// JSONProbe reads a small JSON document and takes the download URL from the
// value at Path: dot-separated object keys, with numbers indexing arrays
// (TBA.0.downloads.linux.link).
type JSONProbe struct {
	URL  string
	Path string
}

func (p JSONProbe) Resolve(ctx context.Context, f xfer.Fetcher) (string, string, error) {
	body, err := f.Get(ctx, p.URL)
	if err != nil {
		return "", "", err
	}
	var doc interface{}
	if err = json.Unmarshal(body, &doc); err != nil {
		return "", "", fmt.Errorf("%s: %w", p.URL, err)
	}
	v, err := lookup(doc, p.Path)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", p.URL, err)
	}
	u, ok := v.(string)
	if !ok || u == "" {
		return "", "", fmt.Errorf("%s: %s is %T, not a url", p.URL, p.Path, v)
	}
	return u, xfer.FileName(u), nil
}

func lookup(doc interface{}, path string) (interface{}, error) {
	cur := doc
	for _, k := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]interface{}:
			v, ok := c[k]
			if !ok {
				return nil, fmt.Errorf("no key %q in path %s", k, path)
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(c) {
				return nil, fmt.Errorf("bad index %q in path %s", k, path)
			}
			cur = c[i]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q in path %s", cur, k, path)
		}
	}
	return cur, nil
}
