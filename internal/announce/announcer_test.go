// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package announce

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/airbridge/internal/config"
	"github.com/nishisan-dev/airbridge/internal/logging"
)

type fakeChat struct {
	mu       sync.Mutex
	messages []string
}

func (c *fakeChat) ChatToAll(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return nil
}

func (c *fakeChat) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func TestAnnouncerSendsScheduledMessages(t *testing.T) {
	chat := &fakeChat{}
	a, err := New(chat, []config.AnnouncementEntry{
		{Schedule: "@every 50ms", Message: "visit our forum"},
	}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	a.Start()
	t.Cleanup(a.Stop)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(chat.snapshot()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	messages := chat.snapshot()
	if len(messages) < 2 {
		t.Fatalf("messages = %q", messages)
	}
	if messages[0] != "visit our forum" {
		t.Fatalf("messages[0] = %q", messages[0])
	}
}

func TestAnnouncerRejectsBadSchedule(t *testing.T) {
	_, err := New(&fakeChat{}, []config.AnnouncementEntry{
		{Schedule: "whenever you like", Message: "nope"},
	}, logging.NewNopLogger())
	if err == nil || !strings.Contains(err.Error(), "bad schedule") {
		t.Fatalf("err = %v", err)
	}
}

func TestAnnouncerWithNoEntries(t *testing.T) {
	a, err := New(&fakeChat{}, nil, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.Start()
	a.Stop()
}
