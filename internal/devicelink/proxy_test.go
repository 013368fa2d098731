// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package devicelink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nishisan-dev/airbridge/internal/logging"
)

// scriptedUpstream devolve respostas fixas para SendMessages.
type scriptedUpstream struct {
	answers []Message
	err     error

	received [][]Message
}

func (u *scriptedUpstream) SendMessages(_ context.Context, requests []Message) ([]Message, error) {
	u.received = append(u.received, requests)
	return u.answers, u.err
}

func dialProxy(t *testing.T, upstream Upstream) *net.UDPConn {
	t.Helper()

	p := NewProxy("127.0.0.1:0", upstream, logging.NewNopLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("proxy start: %v", err)
	}
	t.Cleanup(func() {
		p.Stop()
		p.Wait()
	})

	raddr, err := net.ResolveUDPAddr("udp", p.Addr().String())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestProxyComposesSingleAnswerDatagram(t *testing.T) {
	upstream := &scriptedUpstream{
		answers: []Message{
			{Opcode: 1002, Value: "2"},
			{Opcode: 1004, Value: "0:r01_0;1.0;2.0;3.0"},
		},
	}
	conn := dialProxy(t, upstream)

	if _, err := conn.Write([]byte(`R/1002/1004\0`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, maxDatagramSize)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	answers, err := DecomposeAnswer(buf[:n])
	if err != nil {
		t.Fatalf("DecomposeAnswer: %v", err)
	}
	if len(answers) != 2 || answers[0] != upstream.answers[0] || answers[1] != upstream.answers[1] {
		t.Fatalf("answers = %+v", answers)
	}

	if len(upstream.received) != 1 || len(upstream.received[0]) != 2 {
		t.Fatalf("upstream received = %+v", upstream.received)
	}
}

func TestProxySendsNothingForEmptyAnswers(t *testing.T) {
	upstream := &scriptedUpstream{}
	conn := dialProxy(t, upstream)

	if _, err := conn.Write([]byte("R/1001")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, maxDatagramSize)
	if n, err := conn.Read(buf); err == nil {
		t.Fatalf("unexpected datagram: %q", buf[:n])
	}
}

func TestProxyDiscardsMalformedDatagrams(t *testing.T) {
	upstream := &scriptedUpstream{}
	conn := dialProxy(t, upstream)

	if _, err := conn.Write([]byte("garbage")); err != nil {
		t.Fatalf("write: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if len(upstream.received) != 0 {
		t.Fatalf("malformed datagram reached upstream: %+v", upstream.received)
	}
}
