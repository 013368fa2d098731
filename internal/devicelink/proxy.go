// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package devicelink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Upstream é o que o proxy precisa do client de device link.
// Satisfeito por *Client.
type Upstream interface {
	SendMessages(ctx context.Context, requests []Message) ([]Message, error)
}

// proxyRequestTimeout limita cada request repassado por um peer externo.
const proxyRequestTimeout = 20 * time.Second

// Proxy expõe o device link do dedicated server para peers UDP externos.
// Cada datagrama recebido é decomposto, repassado pelo client upstream e a
// resposta recomposta volta num único datagrama para o peer de origem.
// Datagramas são atendidos por goroutines independentes; não há garantia de
// ordem entre eles.
type Proxy struct {
	addr     string
	upstream Upstream
	logger   *slog.Logger

	conn *net.UDPConn

	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.Mutex
	stopping bool
}

// NewProxy cria um proxy de device link escutando em addr.
func NewProxy(addr string, upstream Upstream, logger *slog.Logger) *Proxy {
	return &Proxy{
		addr:     addr,
		upstream: upstream,
		logger:   logger.With("component", "device_link_proxy"),
	}
}

// Start abre o socket e começa a atender peers.
func (p *Proxy) Start() error {
	laddr, err := net.ResolveUDPAddr("udp", p.addr)
	if err != nil {
		return fmt.Errorf("resolving device link proxy address %s: %w", p.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listening for device link peers on %s: %w", p.addr, err)
	}
	p.conn = conn

	p.wg.Add(1)
	go p.readLoop()

	p.logger.Info("device link proxy started", "addr", conn.LocalAddr().String())
	return nil
}

// Stop fecha o socket. Requests em andamento ainda terminam.
func (p *Proxy) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopping = true
		p.mu.Unlock()
		if p.conn != nil {
			p.conn.Close()
		}
	})
}

// Wait bloqueia até o read loop e os requests em andamento terminarem.
func (p *Proxy) Wait() {
	p.wg.Wait()
}

// Addr retorna o endereço real do socket (útil quando a porta é 0).
func (p *Proxy) Addr() net.Addr {
	if p.conn == nil {
		return nil
	}
	return p.conn.LocalAddr()
}

func (p *Proxy) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, peer, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			p.mu.Lock()
			stopping := p.stopping
			p.mu.Unlock()
			if !stopping {
				p.logger.Error("device link proxy read failed", "error", err)
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		p.wg.Add(1)
		go p.serveDatagram(data, peer)
	}
}

// serveDatagram atende um request de um peer. Falhas são logadas e o peer
// não recebe resposta; se o upstream não devolve mensagens, nenhum
// datagrama é enviado.
func (p *Proxy) serveDatagram(data []byte, peer *net.UDPAddr) {
	defer p.wg.Done()

	messages, err := DecomposeRequest(data)
	if err != nil {
		p.logger.Warn("discarding malformed datagram",
			"peer", peer.String(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), proxyRequestTimeout)
	defer cancel()

	answers, err := p.upstream.SendMessages(ctx, messages)
	if err != nil {
		p.logger.Error("failed to execute device link request",
			"peer", peer.String(), "error", err)
		return
	}
	if len(answers) == 0 {
		return
	}

	if _, err := p.conn.WriteToUDP(ComposeAnswer(answers), peer); err != nil {
		p.logger.Error("failed to respond to device link peer",
			"peer", peer.String(), "error", err)
	}
}
