// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package devicelink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// Erros do client de device link.
var (
	ErrTimeout           = errors.New("device link request timed out")
	ErrConnectionAborted = errors.New("device link connection was aborted")
)

const (
	// maxDatagramSize cobre com folga os datagramas do protocolo.
	maxDatagramSize = 4096

	// requestsPerSecond limita o envio para não afogar o dedicated server,
	// que processa device link no mesmo loop da simulação.
	requestsPerSecond = 100
)

// pendingReply correlaciona uma resposta pelo opcode do request.
type pendingReply struct {
	opcode int
	ch     chan Message
}

// Client mantém um único socket UDP com o device link do dedicated server.
// Respostas não carregam id próprio; a correlação é por opcode, com uma
// fila FIFO de esperas por opcode.
type Client struct {
	addr   string
	logger *slog.Logger

	conn    *net.UDPConn
	limiter *rate.Limiter

	mu      sync.Mutex
	pending map[int][]*pendingReply

	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewClient cria um client de device link para addr (host:porta UDP).
func NewClient(addr string, logger *slog.Logger) *Client {
	return &Client{
		addr:     addr,
		logger:   logger.With("component", "device_link_client"),
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		pending:  make(map[int][]*pendingReply),
		closedCh: make(chan struct{}),
	}
}

// Connect resolve o endereço, abre o socket e inicia o read loop.
func (c *Client) Connect(ctx context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp", c.addr)
	if err != nil {
		return fmt.Errorf("resolving device link address %s: %w", c.addr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("connecting to device link %s: %w", c.addr, err)
	}

	c.conn = conn
	go c.readLoop()

	c.logger.Info("device link connected", "addr", c.addr)
	return nil
}

// Close fecha o socket. Esperas pendentes falham com ErrConnectionAborted.
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

func (c *Client) readLoop() {
	defer func() {
		c.failPending()
		close(c.closedCh)
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			c.logger.Debug("device link read loop finished", "error", err)
			return
		}

		messages, err := DecomposeAnswer(buf[:n])
		if err != nil {
			c.logger.Warn("discarding malformed device link answer", "error", err)
			continue
		}
		for _, msg := range messages {
			c.dispatch(msg)
		}
	}
}

// dispatch entrega uma mensagem de answer à espera mais antiga do opcode.
// Answers de posição chegam com o opcode do request de posição; o opcode
// basta para correlacionar porque requests iguais são atendidos em ordem.
func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	queue := c.pending[msg.Opcode]
	if len(queue) == 0 {
		c.mu.Unlock()
		c.logger.Debug("unsolicited device link answer", "opcode", msg.Opcode)
		return
	}
	p := queue[0]
	c.pending[msg.Opcode] = queue[1:]
	c.mu.Unlock()

	p.ch <- msg
}

func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int][]*pendingReply)
	c.mu.Unlock()

	for _, queue := range pending {
		for _, p := range queue {
			close(p.ch)
		}
	}
}

func (c *Client) remove(p *pendingReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.pending[p.opcode]
	for i, q := range queue {
		if q == p {
			c.pending[p.opcode] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// SendMessages envia as mensagens num único datagrama e aguarda uma resposta
// para cada uma que espera resposta. Mensagens sem resposta (refresh) não
// geram espera; se nenhuma espera resposta, retorna nil imediatamente após
// o envio.
func (c *Client) SendMessages(ctx context.Context, requests []Message) ([]Message, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	if c.conn == nil {
		return nil, ErrConnectionAborted
	}

	var waits []*pendingReply
	c.mu.Lock()
	for _, req := range requests {
		if !expectsAnswer(req.Opcode) {
			continue
		}
		p := &pendingReply{opcode: req.Opcode, ch: make(chan Message, 1)}
		c.pending[req.Opcode] = append(c.pending[req.Opcode], p)
		waits = append(waits, p)
	}
	c.mu.Unlock()

	abort := func(err error) ([]Message, error) {
		for _, p := range waits {
			c.remove(p)
		}
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return abort(err)
	}
	if _, err := c.conn.Write(ComposeRequest(requests)); err != nil {
		return abort(fmt.Errorf("writing to device link: %w", err))
	}

	answers := make([]Message, 0, len(waits))
	for _, p := range waits {
		select {
		case msg, ok := <-p.ch:
			if !ok {
				return abort(ErrConnectionAborted)
			}
			answers = append(answers, msg)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return abort(fmt.Errorf("%w: opcode %d", ErrTimeout, p.opcode))
			}
			return abort(ctx.Err())
		case <-c.closedCh:
			return abort(ErrConnectionAborted)
		}
	}
	return answers, nil
}

// expectsAnswer informa se o opcode produz resposta do dedicated server.
func expectsAnswer(opcode int) bool {
	return opcode != OpcodeRefreshRadar
}

// RefreshRadar instrui o dedicated server a repovoar o snapshot do radar.
func (c *Client) RefreshRadar(ctx context.Context) error {
	_, err := c.SendMessages(ctx, []Message{{Opcode: OpcodeRefreshRadar}})
	return err
}

// GetAllMovingAircraftsPositions lista as posições das aeronaves em movimento.
func (c *Client) GetAllMovingAircraftsPositions(ctx context.Context) ([]ActorPosition, error) {
	return c.queryPositions(ctx, OpcodeAircraftsCount, OpcodeAircraftPosition)
}

// GetAllMovingGroundUnitsPositions lista as posições das unidades terrestres
// em movimento.
func (c *Client) GetAllMovingGroundUnitsPositions(ctx context.Context) ([]ActorPosition, error) {
	return c.queryPositions(ctx, OpcodeGroundUnitsCount, OpcodeGroundUnitPosition)
}

// GetAllShipsPositions lista as posições de todos os navios, móveis e estáticos.
func (c *Client) GetAllShipsPositions(ctx context.Context) ([]ActorPosition, error) {
	return c.queryPositions(ctx, OpcodeShipsCount, OpcodeShipPosition)
}

// GetAllStationaryObjectsPositions lista as posições dos objetos estáticos.
func (c *Client) GetAllStationaryObjectsPositions(ctx context.Context) ([]ActorPosition, error) {
	return c.queryPositions(ctx, OpcodeStationaryObjectsCount, OpcodeStationaryObjectPosition)
}

// GetAllHousesPositions lista as posições das construções.
func (c *Client) GetAllHousesPositions(ctx context.Context) ([]ActorPosition, error) {
	return c.queryPositions(ctx, OpcodeHousesCount, OpcodeHousePosition)
}

// queryPositions executa o padrão contagem + N requests de posição.
func (c *Client) queryPositions(ctx context.Context, countOpcode, positionOpcode int) ([]ActorPosition, error) {
	answers, err := c.SendMessages(ctx, []Message{{Opcode: countOpcode}})
	if err != nil {
		return nil, err
	}
	count, err := parseCount(answers[0])
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	answers, err = c.SendMessages(ctx, positionRequests(positionOpcode, count))
	if err != nil {
		return nil, err
	}

	positions := make([]ActorPosition, 0, len(answers))
	for _, msg := range answers {
		pos, err := parsePosition(msg)
		if err != nil {
			c.logger.Warn("discarding bad actor position", "error", err)
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}
