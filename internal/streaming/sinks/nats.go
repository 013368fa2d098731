// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sinks

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nishisan-dev/airbridge/internal/natsio"
	"github.com/nishisan-dev/airbridge/internal/streaming"
)

// NATSSink publica itens num subject do barramento. Itens são enfileirados
// localmente e só saem quando a conexão está de pé: quedas do barramento
// não travam a facility nem perdem itens já aceitos.
type NATSSink struct {
	client  *natsio.Client
	subject string
	logger  *slog.Logger

	mu     sync.Mutex
	queue  [][]byte
	cond   *sync.Cond
	closed bool

	doneCh chan struct{}
}

// NewNATSSink cria o sink e inicia sua goroutine de publicação.
func NewNATSSink(client *natsio.Client, subject string, logger *slog.Logger) *NATSSink {
	s := &NATSSink{
		client:  client,
		subject: subject,
		logger:  logger.With("component", "nats_sink", "subject", subject),
		doneCh:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Write serializa o item e o enfileira para publicação.
func (s *NATSSink) Write(item *streaming.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding item: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("nats sink for %s is closed", s.subject)
	}
	s.queue = append(s.queue, data)
	s.cond.Signal()
	return nil
}

// Close encerra o sink após drenar a fila local, se a conexão permitir.
func (s *NATSSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	<-s.doneCh
	return nil
}

func (s *NATSSink) run() {
	defer close(s.doneCh)
	s.logger.Info("nats sink queue processing started")

	for {
		msg, ok := s.next()
		if !ok {
			break
		}

		// Segura a publicação enquanto o barramento está fora.
		if !s.client.WaitConnected() {
			s.logger.Warn("nats client closed, dropping queued items")
			break
		}

		if err := s.client.Conn().Publish(s.subject, msg); err != nil {
			s.logger.Error("failed to publish item", "error", err)
		}
	}

	s.logger.Info("nats sink queue processing stopped")
}

// next bloqueia até haver item na fila ou o sink fechar com fila vazia.
func (s *NATSSink) next() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}

	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true
}
