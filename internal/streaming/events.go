// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package streaming

import (
	"log/slog"

	"github.com/nishisan-dev/airbridge/internal/console"
	"github.com/nishisan-dev/airbridge/internal/gamelog"
)

// ConnectionEventSource é o que a facility de eventos precisa do client de
// console.
type ConnectionEventSource interface {
	SubscribeToHumanConnectionEvents(fn func(event console.HumanConnectionEvent)) *console.ConnectionEventTap
	UnsubscribeFromHumanConnectionEvents(tap *console.ConnectionEventTap) error
}

// GameEventSource é o que a facility de eventos precisa do worker do game log.
type GameEventSource interface {
	SubscribeToEvents(fn func(event *gamelog.Event)) *gamelog.EventSubscription
	UnsubscribeFromEvents(sub *gamelog.EventSubscription)
}

// EventsFacility distribui os eventos de jogo: eventos decodificados do game
// log mais os eventos de conexão do console. O console é a fonte
// autoritativa de conexão e desconexão; variantes equivalentes vindas do
// game log são suprimidas.
type EventsFacility struct {
	*queueFacility
	consoleSource ConnectionEventSource
	gameSource    GameEventSource

	connTap  *console.ConnectionEventTap
	eventSub *gamelog.EventSubscription
}

// NewEventsFacility cria a facility de eventos.
func NewEventsFacility(consoleSource ConnectionEventSource, gameSource GameEventSource, logger *slog.Logger) *EventsFacility {
	f := &EventsFacility{
		queueFacility: newQueueFacility("events", logger),
		consoleSource: consoleSource,
		gameSource:    gameSource,
	}
	f.onFirst = f.attach
	f.onLast = f.detach
	return f
}

func (f *EventsFacility) attach() {
	f.eventSub = f.gameSource.SubscribeToEvents(func(event *gamelog.Event) {
		if isConnectionEvent(event) {
			return
		}
		f.publish(NewGameEventItem(event))
	})
	f.connTap = f.consoleSource.SubscribeToHumanConnectionEvents(
		func(event console.HumanConnectionEvent) {
			f.publish(NewConnectionEventItem(event))
		})
}

func (f *EventsFacility) detach() {
	if f.connTap != nil {
		f.consoleSource.UnsubscribeFromHumanConnectionEvents(f.connTap)
		f.connTap = nil
	}
	if f.eventSub != nil {
		f.gameSource.UnsubscribeFromEvents(f.eventSub)
		f.eventSub = nil
	}
}

func isConnectionEvent(event *gamelog.Event) bool {
	switch event.Kind {
	case string(console.HumanConnected), string(console.HumanDisconnected):
		return true
	default:
		return false
	}
}
