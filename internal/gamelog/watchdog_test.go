// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gamelog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/airbridge/internal/logging"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) record(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *lineRecorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if lines := r.snapshot(); len(lines) >= n {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, got %q", n, r.snapshot())
	return nil
}

func startWatchdog(t *testing.T, path string, state *WatchdogState) (*Watchdog, *lineRecorder) {
	t.Helper()

	w := NewWatchdog(path, 10*time.Millisecond, state, logging.NewNopLogger())
	rec := &lineRecorder{}
	w.Subscribe(rec.record)
	w.Start()
	t.Cleanup(func() {
		w.Stop()
		w.Wait()
	})
	return w, rec
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestWatchdogFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	appendLines(t, path, "first")

	w, rec := startWatchdog(t, path, nil)

	rec.waitFor(t, 1)
	appendLines(t, path, "second", "third")

	lines := rec.waitFor(t, 3)
	if lines[0] != "first" || lines[1] != "second" || lines[2] != "third" {
		t.Fatalf("lines = %q", lines)
	}

	state := w.State()
	if state.FileID == 0 || state.Offset == 0 {
		t.Fatalf("state = %+v", state)
	}
}

func TestWatchdogWaitsForFileCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	_, rec := startWatchdog(t, path, nil)

	time.Sleep(50 * time.Millisecond)
	appendLines(t, path, "late arrival")

	lines := rec.waitFor(t, 1)
	if lines[0] != "late arrival" {
		t.Fatalf("lines = %q", lines)
	}
}

func TestWatchdogResumesFromPersistedOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	appendLines(t, path, "old line")

	first, firstRec := startWatchdog(t, path, nil)
	firstRec.waitFor(t, 1)
	first.Stop()
	first.Wait()
	state := first.State()

	appendLines(t, path, "new line")

	_, rec := startWatchdog(t, path, &state)
	lines := rec.waitFor(t, 1)
	if len(lines) != 1 || lines[0] != "new line" {
		t.Fatalf("lines = %q", lines)
	}
}

func TestWatchdogRestartsOnRecreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	appendLines(t, path, "before rotation")

	w, rec := startWatchdog(t, path, nil)
	rec.waitFor(t, 1)
	oldID := w.State().FileID

	// Cria o substituto antes da troca para garantir outro inode.
	replacement := path + ".new"
	appendLines(t, replacement, "after rotation")
	if err := os.Rename(replacement, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	lines := rec.waitFor(t, 2)
	if lines[1] != "after rotation" {
		t.Fatalf("lines = %q", lines)
	}
	if id := w.State().FileID; id == 0 || id == oldID {
		t.Fatalf("file id not refreshed: old=%d new=%d", oldID, id)
	}
}

func TestWatchdogIgnoresPartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	_, rec := startWatchdog(t, path, nil)

	if _, err := f.WriteString("half a li"); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if lines := rec.snapshot(); len(lines) != 0 {
		t.Fatalf("partial line delivered: %q", lines)
	}

	if _, err := f.WriteString("ne\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := rec.waitFor(t, 1)
	if lines[0] != "half a line" {
		t.Fatalf("lines = %q", lines)
	}
}

func TestWatchdogUnsubscribeStopsDelivery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	w, rec := startWatchdog(t, path, nil)

	other := &lineRecorder{}
	sub := w.Subscribe(other.record)
	w.Unsubscribe(sub)

	appendLines(t, path, "only for the first")
	rec.waitFor(t, 1)

	if lines := other.snapshot(); len(lines) != 0 {
		t.Fatalf("unsubscribed recorder got %q", lines)
	}
}
