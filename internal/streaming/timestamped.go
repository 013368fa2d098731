// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package streaming distribui os fluxos do dedicated server (chat, eventos,
// linhas não reconhecidas, radar) para sinks dinâmicos. Cada facility tem
// fila própria e entrega em ordem para todos os sinks inscritos.
package streaming

import (
	"time"

	"github.com/nishisan-dev/airbridge/internal/console"
	"github.com/nishisan-dev/airbridge/internal/gamelog"
	"github.com/nishisan-dev/airbridge/internal/radar"
)

// Kind identifica o payload de um Item, para a serialização ser total.
type Kind string

const (
	KindChatMessage     Kind = "chat_message"
	KindConnectionEvent Kind = "human_connection_event"
	KindGameEvent       Kind = "game_event"
	KindNotParsedString Kind = "not_parsed_string"
	KindRadarSnapshot   Kind = "radar_snapshot"
)

// Item é a unidade dos fluxos: payload etiquetado com o instante de captura.
type Item struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

func newItem(kind Kind, payload any) *Item {
	return &Item{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewChatItem etiqueta uma mensagem de chat.
func NewChatItem(msg console.ChatMessage) *Item {
	return newItem(KindChatMessage, msg)
}

// NewConnectionEventItem etiqueta um evento de conexão de jogador.
func NewConnectionEventItem(event console.HumanConnectionEvent) *Item {
	return newItem(KindConnectionEvent, event)
}

// NewGameEventItem etiqueta um evento do game log.
func NewGameEventItem(event *gamelog.Event) *Item {
	return newItem(KindGameEvent, event)
}

// NewNotParsedItem etiqueta uma linha do game log que o parser não reconheceu.
func NewNotParsedItem(line string) *Item {
	return newItem(KindNotParsedString, line)
}

// NewRadarItem etiqueta um snapshot do radar.
func NewRadarItem(snapshot radar.AllMovingActorsPositions) *Item {
	return newItem(KindRadarSnapshot, snapshot)
}
