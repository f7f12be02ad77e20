package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-micmonitor/internal/types"
	"github.com/oszuidwest/zwfm-micmonitor/internal/util"
	"golang.org/x/mod/semver"
)

const (
	githubRepo           = "oszuidwest/zwfm-micmonitor"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second
	versionCheckTimeout  = 30 * time.Second
	versionCheckAttempts = 3
)

// VersionChecker polls the GitHub releases feed once a day and reports
// whether a newer build is available. It is safe for concurrent use.
type VersionChecker struct {
	mu     sync.RWMutex
	latest string
	etag   string
	stopCh chan struct{}
}

// NewVersionChecker starts the release poller.
func NewVersionChecker() *VersionChecker {
	vc := &VersionChecker{stopCh: make(chan struct{})}
	go vc.run()
	return vc
}

// Stop ends the poll loop.
func (vc *VersionChecker) Stop() {
	close(vc.stopCh)
}

// run waits out the startup delay, then checks daily. Each cycle gets a
// few attempts with backoff so a flaky network does not cost a day.
func (vc *VersionChecker) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	if !vc.sleep(versionCheckDelay) {
		return
	}
	vc.checkCycle()

	ticker := time.NewTicker(versionCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vc.checkCycle()
		case <-vc.stopCh:
			return
		}
	}
}

// sleep waits for d and reports false when the checker was stopped.
func (vc *VersionChecker) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-vc.stopCh:
		return false
	}
}

// checkCycle runs one day's check with retries.
func (vc *VersionChecker) checkCycle() {
	backoff := util.NewBackoff(time.Minute, 4*time.Minute)
	for attempt := 1; ; attempt++ {
		err := vc.fetchLatest()
		if err == nil {
			return
		}
		slog.Debug("release check failed", "attempt", attempt, "error", err)
		if attempt >= versionCheckAttempts || !vc.sleep(backoff.Next()) {
			return
		}
	}
}

// githubRelease is the slice of the releases API response we read.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// fetchLatest asks GitHub for the newest release. A nil return ends the
// cycle, either because the state was updated or because there is
// nothing to learn (not modified, no releases yet). Transient failures
// return an error so the cycle retries.
func (vc *VersionChecker) fetchLatest() error {
	ctx, cancel := context.WithTimeout(context.Background(), versionCheckTimeout)
	defer cancel()

	url := "https://api.github.com/repos/" + githubRepo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-micmonitor/"+Version)

	vc.mu.RLock()
	etag := vc.etag
	vc.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer util.SafeCloseFunc(resp.Body, "release response body")()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotModified:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		// No releases published yet.
		return nil
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests:
		return errors.New("rate limited")
	case resp.StatusCode >= 500:
		return fmt.Errorf("github responded %d", resp.StatusCode)
	default:
		// Remaining client errors will not improve with a retry.
		return nil
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return err
	}
	if release.Draft || release.Prerelease || release.TagName == "" {
		return nil
	}

	vc.mu.Lock()
	vc.latest = strings.TrimPrefix(strings.TrimSpace(release.TagName), "v")
	if tag := resp.Header.Get("ETag"); tag != "" {
		vc.etag = tag
	}
	vc.mu.Unlock()
	return nil
}

// Info returns the version state served to the frontend.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := strings.TrimPrefix(Version, "v")
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = semver.Compare("v"+vc.latest, "v"+current) > 0
	}
	return info
}
