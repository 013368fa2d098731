// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sinks

import (
	"testing"

	"github.com/nishisan-dev/airbridge/internal/logging"
	"github.com/nishisan-dev/airbridge/internal/streaming"
)

func TestNATSSinkRejectsWritesAfterClose(t *testing.T) {
	sink := NewNATSSink(nil, "streams.chat", logging.NewNopLogger())

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close é idempotente.
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := sink.Write(streaming.NewNotParsedItem("too late")); err == nil {
		t.Fatal("expected error writing to a closed sink")
	}
}
