// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package natsio concentra a conexão do airbridge com o barramento NATS:
// uma única conexão compartilhada entre os sinks de streaming e a API de
// request/reply.
package natsio

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Client mantém a conexão com o NATS e expõe o estado de conectividade
// para consumidores que precisam segurar publicações durante reconexões.
type Client struct {
	logger *slog.Logger

	nc *nats.Conn

	mu        sync.Mutex
	connected bool
	closed    bool
	cond      *sync.Cond
}

// NewClient conecta em servers. A conexão reconecta indefinidamente; os
// consumidores usam WaitConnected para segurar trabalho enquanto cai.
func NewClient(servers []string, name string, logger *slog.Logger) (*Client, error) {
	c := &Client{
		logger: logger.With("component", "nats_client"),
	}
	c.cond = sync.NewCond(&c.mu)

	opts := []nats.Option{
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setConnected(false)
			c.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.setConnected(true)
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setConnected(false)
			c.logger.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(strings.Join(servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	c.nc = nc
	c.setConnected(nc.IsConnected())

	c.logger.Info("nats client created", "servers", servers)
	return c, nil
}

// Conn expõe a conexão crua para publicação e inscrição.
func (c *Client) Conn() *nats.Conn {
	return c.nc
}

// Close drena e fecha a conexão, acordando quem espera conectividade.
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Drain()
	}
	c.mu.Lock()
	c.connected = false
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
	c.cond.Broadcast()
}

// IsConnected informa a conectividade corrente.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WaitConnected bloqueia até a conexão estar de pé. Retorna false quando o
// client foi fechado antes de conectar.
func (c *Client) WaitConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.connected && !c.closed {
		c.cond.Wait()
	}
	return c.connected
}
