/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version exposes the build version and a background checker that
// polls GitHub for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is overridden at build time:
//
//	-X github.com/friendsincode/dagr/internal/version.Version=X.Y.Z
var Version = "0.1.0"

const (
	githubRepo  = "friendsincode/dagr"
	checkPeriod = 12 * time.Hour
)

// UpdateInfo is a snapshot of the last successful release check.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
	ReleaseNotes    string
	CheckedAt       time.Time
}

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

// Checker polls the GitHub releases API and caches the result.
type Checker struct {
	mu       sync.RWMutex
	info     UpdateInfo
	logger   zerolog.Logger
	client   *http.Client
	endpoint string
	cancel   context.CancelFunc
}

// NewChecker returns a checker seeded with the running version. No network
// traffic happens until Start.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		logger:   logger.With().Str("component", "update-checker").Logger(),
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", githubRepo),
		info:     UpdateInfo{CurrentVersion: Version},
	}
}

// Start runs one check right away and then rechecks on a fixed period until
// the context is cancelled or Stop is called.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.check(ctx)

	go func() {
		ticker := time.NewTicker(checkPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()
}

// Stop cancels the polling loop.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Info returns the most recent snapshot.
func (c *Checker) Info() UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *Checker) check(ctx context.Context) {
	rel, err := c.fetchLatest(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("release check failed")
		return
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	snapshot := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: semverLess(Version, latest),
		ReleaseURL:      rel.HTMLURL,
		ReleaseNotes:    summarize(rel.Body, 200),
		CheckedAt:       time.Now(),
	}

	c.mu.Lock()
	c.info = snapshot
	c.mu.Unlock()

	if snapshot.UpdateAvailable {
		c.logger.Info().
			Str("current", Version).
			Str("latest", latest).
			Str("url", rel.HTMLURL).
			Msg("new version available")
	}
}

func (c *Checker) fetchLatest(ctx context.Context) (*release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "Dagr/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github responded %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &rel, nil
}

// semverLess reports whether version a is older than b. Both accept an
// optional "v" prefix; missing or malformed components count as zero.
func semverLess(a, b string) bool {
	av, bv := splitVersion(a), splitVersion(b)
	for i := range av {
		if av[i] != bv[i] {
			return av[i] < bv[i]
		}
	}
	return false
}

func splitVersion(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}

// summarize keeps the first line of the release notes, capped at maxLen.
func summarize(s string, maxLen int) string {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		return line[:maxLen-3] + "..."
	}
	return line
}
