// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package announce agenda mensagens de chat recorrentes para todos os
// jogadores (regras do servidor, avisos de restart e afins).
package announce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/airbridge/internal/config"
)

// chatTimeout limita o envio de cada anúncio.
const chatTimeout = 10 * time.Second

// Chat é o que o announcer precisa do client de console.
type Chat interface {
	ChatToAll(ctx context.Context, message string) error
}

// Announcer envia mensagens agendadas via cron expressions do config.
type Announcer struct {
	chat   Chat
	logger *slog.Logger
	cron   *cron.Cron
}

// New cria o announcer e registra as entradas. Expressão inválida falha a
// carga inteira.
func New(chat Chat, entries []config.AnnouncementEntry, logger *slog.Logger) (*Announcer, error) {
	a := &Announcer{
		chat:   chat,
		logger: logger.With("component", "announcer"),
		cron:   cron.New(),
	}

	for i, entry := range entries {
		message := entry.Message
		if _, err := a.cron.AddFunc(entry.Schedule, func() {
			a.announce(message)
		}); err != nil {
			return nil, fmt.Errorf("announcements[%d]: bad schedule %q: %w",
				i, entry.Schedule, err)
		}
	}
	return a, nil
}

func (a *Announcer) announce(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()

	if err := a.chat.ChatToAll(ctx, message); err != nil {
		a.logger.Error("failed to send announcement", "error", err)
		return
	}
	a.logger.Debug("announcement sent", "message", message)
}

// Start dispara o agendador.
func (a *Announcer) Start() {
	a.cron.Start()
	a.logger.Info("announcer started", "entries", len(a.cron.Entries()))
}

// Stop para o agendador e espera anúncios em andamento terminarem.
func (a *Announcer) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
	a.logger.Info("announcer stopped")
}
