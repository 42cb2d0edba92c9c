// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package xfer handles robust file transfers over http(s): retries with
// exponential backoff, redirect resolution, and download progress.
package xfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	fp "path/filepath"
	"strings"
	"time"

	"github.com/fedprov/fedprov/pkg/log"
)

// Fetcher is what the rest of the program needs from the network.
type Fetcher interface {
	// Get returns the body of url. Intended for small documents.
	Get(ctx context.Context, url string) ([]byte, error)
	// Resolve returns the URL that url redirects to, or url itself.
	Resolve(ctx context.Context, url string) (string, error)
	// Download writes the body of url to dest, atomically.
	Download(ctx context.Context, url, dest string) error
}

var (
	ENotHttp  = errors.New("url must be http or https")
	ETooLarge = errors.New("document too large")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Url  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.Url, e.Code, http.StatusText(e.Code))
}

// Retriable server errors; 4xx will not fix themselves.
func (e *StatusError) temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

const maxDocSize = 4 << 20

// Client implements Fetcher.
type Client struct {
	Http      *http.Client
	Attempts  int           //total attempts per transfer
	Backoff   time.Duration //sleep after first failure; doubles each time
	UserAgent string
	Progress  bool //report download size periodically
}

var _ Fetcher = (*Client)(nil)

// New returns a Client with defaults suitable for large downloads.
func New() *Client {
	return &Client{
		//no deadline otherwise; this guards against hung connections
		Http:      &http.Client{Timeout: 30 * time.Minute},
		Attempts:  4,
		Backoff:   5 * time.Second,
		UserAgent: "fedprov",
		Progress:  true,
	}
}

func checkUrl(u string) error {
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("%w: '%s'", ENotHttp, u)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// retry runs fn with exponential backoff until it succeeds, fails with a
// permanent error, or attempts are exhausted.
func (c *Client) retry(ctx context.Context, what string, fn func() error) error {
	sleepTime := c.Backoff
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; ; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		log.Logf("retrieval of %s, attempt %d: %s", what, i, err)
		var se *StatusError
		if errors.As(err, &se) && !se.temporary() {
			return err
		}
		if i >= attempts || ctx.Err() != nil {
			break
		}
		log.Msgf("failed to retrieve %s; retry in %s", what, sleepTime)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepTime):
		}
		sleepTime *= 2
	}
	return fmt.Errorf("gave up retrieving %s: %w", what, err)
}

func (c *Client) Get(ctx context.Context, u string) (content []byte, err error) {
	if err = checkUrl(u); err != nil {
		return nil, err
	}
	err = c.retry(ctx, u, func() error {
		req, err := c.request(ctx, http.MethodGet, u)
		if err != nil {
			return err
		}
		res, err := c.Http.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode/100 != 2 {
			return &StatusError{Url: u, Code: res.StatusCode}
		}
		content, err = io.ReadAll(io.LimitReader(res.Body, maxDocSize+1))
		if err == nil && len(content) > maxDocSize {
			err = ETooLarge
		}
		return err
	})
	return
}

// Resolve returns the Location of a redirect from u, without following it
// any further, or u itself if the response is not a redirect.
func (c *Client) Resolve(ctx context.Context, u string) (resolved string, err error) {
	if err = checkUrl(u); err != nil {
		return "", err
	}
	noFollow := *c.Http
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	err = c.retry(ctx, u, func() error {
		req, err := c.request(ctx, http.MethodHead, u)
		if err != nil {
			return err
		}
		res, err := noFollow.Do(req)
		if err != nil {
			return err
		}
		res.Body.Close()
		switch {
		case res.StatusCode/100 == 3:
			loc, err := res.Location()
			if err != nil {
				return fmt.Errorf("redirect from %s: %w", u, err)
			}
			resolved = loc.String()
		case res.StatusCode/100 == 2:
			resolved = u
		default:
			return &StatusError{Url: u, Code: res.StatusCode}
		}
		return nil
	})
	return
}

// Download writes to a temp file alongside dest and renames it into place on
// success, so a partial download never looks like a cached artifact.
func (c *Client) Download(ctx context.Context, u, dest string) error {
	if err := checkUrl(u); err != nil {
		return err
	}
	if err := os.MkdirAll(fp.Dir(dest), 0755); err != nil {
		return err
	}
	part := dest + ".part"
	defer os.Remove(part)
	log.Msgf("downloading %s", fp.Base(dest))
	err := c.retry(ctx, u, func() error { return c.download(ctx, u, part) })
	if err != nil {
		return err
	}
	return os.Rename(part, dest)
}

func (c *Client) download(ctx context.Context, u, part string) error {
	req, err := c.request(ctx, http.MethodGet, u)
	if err != nil {
		return err
	}
	res, err := c.Http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return &StatusError{Url: u, Code: res.StatusCode}
	}
	dst, err := os.OpenFile(part, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	if c.Progress {
		writeDone := make(chan struct{})
		go ShowProgress(writeDone, "Downloading "+fp.Base(u), part, res.ContentLength)
		defer close(writeDone)
	}
	n, err := io.Copy(dst, res.Body)
	if err != nil {
		return err
	}
	if res.ContentLength > 0 && n != res.ContentLength {
		return fmt.Errorf("short read: %d of %d bytes", n, res.ContentLength)
	}
	return dst.Sync()
}

// FileName returns the last path element of u, unescaped.
func FileName(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return fp.Base(u)
	}
	return fp.Base(parsed.Path)
}
