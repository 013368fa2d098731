// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nishisan-dev/airbridge/internal/gamelog"
)

func TestLoadMissingFileReturnsEmptyState(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.state"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.GameLogWatchDog.FileID != 0 || s.GameLogWatchDog.Offset != 0 {
		t.Fatalf("state = %+v", s)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airbridge.state")

	saved := &State{
		GameLogWatchDog: gamelog.WatchdogState{FileID: 123456, Offset: 7890},
	}
	if err := saved.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.GameLogWatchDog != saved.GameLogWatchDog {
		t.Fatalf("loaded = %+v, want %+v", loaded.GameLogWatchDog, saved.GameLogWatchDog)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airbridge.state")
	if err := os.WriteFile(path, []byte("{not yaml: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}
