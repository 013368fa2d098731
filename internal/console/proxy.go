// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package console

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Upstream é o que o proxy precisa da conexão de console: escrita crua e
// inscrição no fluxo de saída. Satisfeito por *Client.
type Upstream interface {
	WriteBytes(data []byte) error
	SubscribeToData(fn func(data []byte)) *DataTap
	UnsubscribeFromData(tap *DataTap) error
}

// outboundQueueSize limita o backlog de escrita por client. Um client que
// não drena a própria fila é derrubado sem represar os demais.
const outboundQueueSize = 256

// clientConn embrulha uma conexão de client com sua fila de escrita própria.
// O tap do upstream só enfileira; quem escreve no socket é o writeLoop da
// conexão.
type clientConn struct {
	conn net.Conn
	out  chan []byte
	done chan struct{}
}

// Proxy expõe o console do dedicated server para N clients TCP externos.
// Bytes de cada client são repassados ao upstream apenas em fronteira de
// newline; tudo que o upstream emite é replicado para todos os clients, com
// escrita independente por client.
type Proxy struct {
	addr     string
	upstream Upstream
	logger   *slog.Logger

	listener net.Listener
	tap      *DataTap

	mu    sync.Mutex
	conns map[*clientConn]struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopping bool
}

// NewProxy cria um proxy de console escutando em addr.
func NewProxy(addr string, upstream Upstream, logger *slog.Logger) *Proxy {
	return &Proxy{
		addr:     addr,
		upstream: upstream,
		logger:   logger.With("component", "console_proxy"),
		conns:    make(map[*clientConn]struct{}),
	}
}

// Start abre o listener e começa a aceitar clients.
func (p *Proxy) Start() error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("listening for console clients on %s: %w", p.addr, err)
	}
	p.listener = ln
	p.tap = p.upstream.SubscribeToData(p.broadcast)

	p.wg.Add(1)
	go p.acceptLoop()

	p.logger.Info("console proxy started", "addr", ln.Addr().String())
	return nil
}

// Stop fecha o listener e todas as conexões de clients.
func (p *Proxy) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopping = true
		conns := make([]*clientConn, 0, len(p.conns))
		for cc := range p.conns {
			conns = append(conns, cc)
		}
		p.mu.Unlock()

		if p.tap != nil {
			p.upstream.UnsubscribeFromData(p.tap)
		}
		if p.listener != nil {
			p.listener.Close()
		}
		for _, cc := range conns {
			cc.conn.Close()
		}
	})
}

// Wait bloqueia até todas as goroutines do proxy terminarem.
func (p *Proxy) Wait() {
	p.wg.Wait()
}

// Addr retorna o endereço real do listener (útil quando a porta é 0).
func (p *Proxy) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

func (p *Proxy) acceptLoop() {
	defer p.wg.Done()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			p.mu.Lock()
			stopping := p.stopping
			p.mu.Unlock()
			if !stopping {
				p.logger.Error("console proxy accept failed", "error", err)
			}
			return
		}

		cc := &clientConn{
			conn: conn,
			out:  make(chan []byte, outboundQueueSize),
			done: make(chan struct{}),
		}

		p.mu.Lock()
		if p.stopping {
			p.mu.Unlock()
			conn.Close()
			return
		}
		p.conns[cc] = struct{}{}
		p.mu.Unlock()

		p.logger.Info("console client connected", "remote", conn.RemoteAddr().String())
		p.wg.Add(2)
		go p.serveConn(cc)
		go p.writeLoop(cc)
	}
}

// serveConn repassa os bytes do client para o upstream. O repasse acontece
// só até o último '\n' de cada chunk lido; o resto fica acumulado até a
// próxima leitura, de modo que comandos nunca cheguem partidos ao console.
func (p *Proxy) serveConn(cc *clientConn) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.conns, cc)
		p.mu.Unlock()
		close(cc.done)
		cc.conn.Close()
		p.logger.Info("console client disconnected", "remote", cc.conn.RemoteAddr().String())
	}()

	var partial []byte
	buf := make([]byte, 4096)
	for {
		n, err := cc.conn.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			if i := bytes.LastIndexByte(partial, '\n'); i >= 0 {
				if werr := p.upstream.WriteBytes(partial[:i+1]); werr != nil {
					p.logger.Error("forwarding to console failed", "error", werr)
					return
				}
				partial = append(partial[:0], partial[i+1:]...)
			}
		}
		if err != nil {
			return
		}
	}
}

// writeLoop drena a fila de saída de uma conexão. Falha de escrita fecha o
// socket, o que encerra também o serveConn da conexão.
func (p *Proxy) writeLoop(cc *clientConn) {
	defer p.wg.Done()

	for {
		select {
		case data := <-cc.out:
			if _, err := cc.conn.Write(data); err != nil {
				cc.conn.Close()
				return
			}
		case <-cc.done:
			return
		}
	}
}

// broadcast enfileira um chunk do upstream para cada client conectado. A
// escrita em si acontece no writeLoop de cada conexão; um client cuja fila
// encheu é derrubado em vez de atrasar os outros ou o read loop do upstream.
func (p *Proxy) broadcast(data []byte) {
	p.mu.Lock()
	conns := make([]*clientConn, 0, len(p.conns))
	for cc := range p.conns {
		conns = append(conns, cc)
	}
	p.mu.Unlock()

	for _, cc := range conns {
		select {
		case cc.out <- data:
		case <-cc.done:
		default:
			p.logger.Warn("dropping slow console client",
				"remote", cc.conn.RemoteAddr().String())
			cc.conn.Close()
		}
	}
}
