// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package console

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/airbridge/internal/logging"
)

// fakeUpstream grava cada chamada de WriteBytes e permite injetar dados
// como se viessem do console.
type fakeUpstream struct {
	mu     sync.Mutex
	writes []string
	taps   []*DataTap
}

func (u *fakeUpstream) WriteBytes(data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.writes = append(u.writes, string(data))
	return nil
}

func (u *fakeUpstream) SubscribeToData(fn func(data []byte)) *DataTap {
	tap := &DataTap{fn: fn}
	u.mu.Lock()
	u.taps = append(u.taps, tap)
	u.mu.Unlock()
	return tap
}

func (u *fakeUpstream) UnsubscribeFromData(tap *DataTap) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, t := range u.taps {
		if t == tap {
			u.taps = append(u.taps[:i], u.taps[i+1:]...)
			return nil
		}
	}
	return ErrNotSubscribed
}

func (u *fakeUpstream) emit(data string) {
	u.mu.Lock()
	taps := append([]*DataTap(nil), u.taps...)
	u.mu.Unlock()
	for _, tap := range taps {
		tap.fn([]byte(data))
	}
}

func (u *fakeUpstream) writesSnapshot() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.writes...)
}

func startProxy(t *testing.T, upstream Upstream) *Proxy {
	t.Helper()

	p := NewProxy("127.0.0.1:0", upstream, logging.NewNopLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("proxy start: %v", err)
	}
	t.Cleanup(func() {
		p.Stop()
		p.Wait()
	})
	return p
}

func TestProxyForwardsOnNewlineBoundary(t *testing.T) {
	upstream := &fakeUpstream{}
	p := startProxy(t, upstream)

	conn, err := net.Dial("tcp", p.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Nada pode ser repassado antes do primeiro '\n'.
	conn.Write([]byte("chat all hi"))
	time.Sleep(100 * time.Millisecond)
	if got := upstream.writesSnapshot(); len(got) != 0 {
		t.Fatalf("premature forward: %q", got)
	}

	conn.Write([]byte("\nchat all bye\n"))

	deadline := time.After(time.Second)
	for {
		writes := upstream.writesSnapshot()
		if len(writes) >= 1 {
			total := ""
			for _, w := range writes {
				total += w
			}
			if total == "chat all hi\nchat all bye\n" {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatalf("writes = %q", upstream.writesSnapshot())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProxyBroadcastsUpstreamData(t *testing.T) {
	upstream := &fakeUpstream{}
	p := startProxy(t, upstream)

	connA, err := net.Dial("tcp", p.Addr().String())
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer connA.Close()
	connB, err := net.Dial("tcp", p.Addr().String())
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer connB.Close()

	// Espera os dois clients serem aceitos.
	time.Sleep(100 * time.Millisecond)
	upstream.emit("mission is Playing\n")

	for _, conn := range []net.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line != "mission is Playing\n" {
			t.Fatalf("line = %q", line)
		}
	}
}

func TestProxySlowClientDoesNotBlockOthers(t *testing.T) {
	upstream := &fakeUpstream{}
	p := startProxy(t, upstream)

	// O client lento nunca lê; o rápido lê cada chunk assim que emitido.
	slow, err := net.Dial("tcp", p.Addr().String())
	if err != nil {
		t.Fatalf("dial slow: %v", err)
	}
	defer slow.Close()
	fast, err := net.Dial("tcp", p.Addr().String())
	if err != nil {
		t.Fatalf("dial fast: %v", err)
	}
	defer fast.Close()

	// Espera os dois clients serem aceitos.
	time.Sleep(100 * time.Millisecond)

	// Chunks suficientes para saturar a fila do lento e os buffers do TCP.
	// Se a entrega não fosse independente por client, o emit travaria no
	// socket do lento e o rápido pararia de receber.
	chunk := strings.Repeat("x", 1024) + "\n"
	buf := make([]byte, len(chunk))
	fast.SetReadDeadline(time.Now().Add(10 * time.Second))
	for i := 0; i < 2*outboundQueueSize; i++ {
		upstream.emit(chunk)
		if _, err := io.ReadFull(fast, buf); err != nil {
			t.Fatalf("fast client read %d: %v", i, err)
		}
	}
}

func TestProxyStopDetachesTap(t *testing.T) {
	upstream := &fakeUpstream{}
	p := NewProxy("127.0.0.1:0", upstream, logging.NewNopLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	upstream.mu.Lock()
	taps := len(upstream.taps)
	upstream.mu.Unlock()
	if taps != 1 {
		t.Fatalf("taps after start = %d", taps)
	}

	p.Stop()
	p.Wait()

	upstream.mu.Lock()
	taps = len(upstream.taps)
	upstream.mu.Unlock()
	if taps != 0 {
		t.Fatalf("taps after stop = %d", taps)
	}
}
