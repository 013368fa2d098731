// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package console

import "testing"

func TestParseChatLine(t *testing.T) {
	msg, ok := parseChatLine("Chat: john.doe: \thello everybody")
	if !ok {
		t.Fatal("chat line was not recognized")
	}
	if msg.From != "john.doe" || msg.Body != "hello everybody" {
		t.Fatalf("msg = %+v", msg)
	}

	if _, ok := parseChatLine("mission loaded"); ok {
		t.Fatal("non-chat line was recognized as chat")
	}
}

func TestParseConnectionLine(t *testing.T) {
	event, ok := parseConnectionLine(
		"socket channel '705', ip 127.0.0.1:21000, john.doe, is complete created")
	if !ok {
		t.Fatal("connection line was not recognized")
	}
	if event.Kind != HumanConnected || event.Callsign != "john.doe" || event.Channel != 705 {
		t.Fatalf("event = %+v", event)
	}

	event, ok = parseConnectionLine("socketConnection with john.doe on channel 705 lost.  Reason: ")
	if !ok {
		t.Fatal("disconnection line was not recognized")
	}
	if event.Kind != HumanDisconnected || event.Callsign != "john.doe" || event.Channel != 705 {
		t.Fatalf("event = %+v", event)
	}

	if _, ok := parseConnectionLine("Chat: a: \tb"); ok {
		t.Fatal("chat line was recognized as connection event")
	}
}
