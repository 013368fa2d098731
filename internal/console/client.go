// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package console fala o protocolo de administração do dedicated server:
// linhas ASCII sobre TCP. O Client mantém a única conexão upstream; o
// Proxy multiplexa N clients externos sobre ela.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"time"
)

// Erros do client de console.
var (
	ErrTimeout           = errors.New("console request timed out")
	ErrConnectionAborted = errors.New("console connection was aborted")
	ErrBadInput          = errors.New("bad input")
	ErrNotSubscribed     = errors.New("subscriber is not registered")
)

// promptRe reconhece o fim de um bloco de resposta do console.
// O dedicated server emite "<consoleN>" após processar cada comando.
var promptRe = regexp.MustCompile(`^<console\d+>$`)

// DataTap é o handle de uma inscrição de bytes crus (usada pelo proxy).
type DataTap struct {
	fn func(data []byte)
}

// ChatTap é o handle de uma inscrição de mensagens de chat.
type ChatTap struct {
	fn func(msg ChatMessage)
}

// ConnectionEventTap é o handle de uma inscrição de eventos de conexão.
type ConnectionEventTap struct {
	fn func(event HumanConnectionEvent)
}

// pendingRequest é um slot do pipeline FIFO de request/response.
// Respostas do console não carregam id; a correlação é por ordem de chegada.
type pendingRequest struct {
	command   string
	lines     []string
	done      chan error
	abandoned bool
}

// Client mantém uma única conexão TCP com o console do dedicated server.
// Todas as inscrições são despachadas sincronamente a partir do read loop,
// na ordem de registro.
type Client struct {
	addr   string
	logger *slog.Logger

	conn    net.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	dataTaps  []*DataTap
	chatTaps  []*ChatTap
	eventTaps []*ConnectionEventTap
	pending   []*pendingRequest

	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewClient cria um client de console para addr (host:porta do console).
func NewClient(addr string, logger *slog.Logger) *Client {
	return &Client{
		addr:     addr,
		logger:   logger.With("component", "console_client"),
		closedCh: make(chan struct{}),
	}
}

// Connect estabelece a conexão e inicia o read loop.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("connecting to console %s: %w", c.addr, err)
	}

	c.conn = conn
	go c.readLoop()

	c.logger.Info("console connected", "addr", c.addr)
	return nil
}

// Close fecha a conexão. Requests pendentes falham com ErrConnectionAborted.
// Sem Connect bem-sucedido não existe read loop; nesse caso o próprio Close
// libera WaitClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			close(c.closedCh)
			return
		}
		c.conn.Close()
	})
}

// WaitClosed bloqueia até o read loop terminar.
func (c *Client) WaitClosed() {
	<-c.closedCh
}

// SubscribeToData registra um tap de bytes crus. Cada chunk terminado em
// '\n' vindo do upstream é entregue a todos os taps na ordem de registro.
func (c *Client) SubscribeToData(fn func(data []byte)) *DataTap {
	tap := &DataTap{fn: fn}
	c.mu.Lock()
	c.dataTaps = append(c.dataTaps, tap)
	c.mu.Unlock()
	return tap
}

// UnsubscribeFromData remove um tap de bytes crus.
func (c *Client) UnsubscribeFromData(tap *DataTap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.dataTaps {
		if t == tap {
			c.dataTaps = append(c.dataTaps[:i], c.dataTaps[i+1:]...)
			return nil
		}
	}
	return ErrNotSubscribed
}

// SubscribeToChat registra um subscriber de mensagens de chat.
func (c *Client) SubscribeToChat(fn func(msg ChatMessage)) *ChatTap {
	tap := &ChatTap{fn: fn}
	c.mu.Lock()
	c.chatTaps = append(c.chatTaps, tap)
	c.mu.Unlock()
	return tap
}

// UnsubscribeFromChat remove um subscriber de chat.
func (c *Client) UnsubscribeFromChat(tap *ChatTap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.chatTaps {
		if t == tap {
			c.chatTaps = append(c.chatTaps[:i], c.chatTaps[i+1:]...)
			return nil
		}
	}
	return ErrNotSubscribed
}

// SubscribeToHumanConnectionEvents registra um subscriber de eventos de
// conexão de jogadores.
func (c *Client) SubscribeToHumanConnectionEvents(fn func(event HumanConnectionEvent)) *ConnectionEventTap {
	tap := &ConnectionEventTap{fn: fn}
	c.mu.Lock()
	c.eventTaps = append(c.eventTaps, tap)
	c.mu.Unlock()
	return tap
}

// UnsubscribeFromHumanConnectionEvents remove um subscriber de eventos de conexão.
func (c *Client) UnsubscribeFromHumanConnectionEvents(tap *ConnectionEventTap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.eventTaps {
		if t == tap {
			c.eventTaps = append(c.eventTaps[:i], c.eventTaps[i+1:]...)
			return nil
		}
	}
	return ErrNotSubscribed
}

// WriteBytes escreve bytes crus na conexão upstream. Usado pelo proxy, que
// garante fronteira de newline antes de chamar.
func (c *Client) WriteBytes(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrConnectionAborted
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("writing to console: %w", err)
	}
	return nil
}

// readLoop consome a conexão linha a linha e classifica cada uma:
// tap de bytes crus (sempre), chat, evento de conexão, prompt (fecha o
// request pendente mais antigo) ou linha de resposta.
func (c *Client) readLoop() {
	defer func() {
		c.failPending(ErrConnectionAborted)
		close(c.closedCh)
	}()

	br := bufio.NewReader(c.conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if line != "" {
				c.handleLine(line)
			}
			c.logger.Debug("console read loop finished", "error", err)
			return
		}
		c.handleLine(line)
	}
}

func (c *Client) handleLine(raw string) {
	c.mu.Lock()
	taps := append([]*DataTap(nil), c.dataTaps...)
	c.mu.Unlock()

	for _, tap := range taps {
		c.safeDispatch(func() { tap.fn([]byte(raw)) })
	}

	line := trimEOL(raw)

	if msg, ok := parseChatLine(line); ok {
		c.mu.Lock()
		chatTaps := append([]*ChatTap(nil), c.chatTaps...)
		c.mu.Unlock()
		for _, tap := range chatTaps {
			c.safeDispatch(func() { tap.fn(msg) })
		}
		return
	}

	if event, ok := parseConnectionLine(line); ok {
		c.mu.Lock()
		eventTaps := append([]*ConnectionEventTap(nil), c.eventTaps...)
		c.mu.Unlock()
		for _, tap := range eventTaps {
			c.safeDispatch(func() { tap.fn(event) })
		}
		return
	}

	if promptRe.MatchString(line) {
		c.completeOldest()
		return
	}

	c.mu.Lock()
	if len(c.pending) > 0 {
		c.pending[0].lines = append(c.pending[0].lines, line)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Debug("unsolicited console line", "line", line)
}

func (c *Client) completeOldest() {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	p := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()

	if p.abandoned {
		c.logger.Debug("discarding response of timed out request", "command", p.command)
		return
	}
	p.done <- nil
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, p := range pending {
		if !p.abandoned {
			p.done <- err
		}
	}
}

func (c *Client) safeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("console subscriber panicked", "panic", r)
		}
	}()
	fn()
}

// request envia um comando e aguarda o bloco de resposta correlacionado.
// No timeout do contexto o slot é marcado como abandonado: suas linhas
// serão descartadas quando o prompt correspondente chegar, mantendo o
// pipeline FIFO alinhado.
func (c *Client) request(ctx context.Context, command string) ([]string, error) {
	p := &pendingRequest{
		command: command,
		done:    make(chan error, 1),
	}

	c.mu.Lock()
	c.pending = append(c.pending, p)
	c.mu.Unlock()

	if err := c.WriteBytes([]byte(command + "\n")); err != nil {
		c.abandon(p)
		return nil, err
	}

	select {
	case err := <-p.done:
		if err != nil {
			return nil, err
		}
		return p.lines, nil
	case <-ctx.Done():
		c.abandon(p)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, command)
		}
		return nil, ctx.Err()
	case <-c.closedCh:
		return nil, ErrConnectionAborted
	}
}

func (c *Client) abandon(p *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.abandoned = true
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// requestWithTimeout aplica um timeout default quando o contexto não tem deadline.
func (c *Client) requestWithTimeout(ctx context.Context, command string, timeout time.Duration) ([]string, error) {
	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.request(ctx, command)
}
