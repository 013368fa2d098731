// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package streaming

import (
	"log/slog"

	"github.com/nishisan-dev/airbridge/internal/console"
)

// ChatSource é o que a facility de chat precisa do client de console.
type ChatSource interface {
	SubscribeToChat(fn func(msg console.ChatMessage)) *console.ChatTap
	UnsubscribeFromChat(tap *console.ChatTap) error
}

// ChatFacility distribui as mensagens de chat do console.
type ChatFacility struct {
	*queueFacility
	source ChatSource
	tap    *console.ChatTap
}

// NewChatFacility cria a facility de chat sobre o client de console.
func NewChatFacility(source ChatSource, logger *slog.Logger) *ChatFacility {
	f := &ChatFacility{
		queueFacility: newQueueFacility("chat", logger),
		source:        source,
	}
	f.onFirst = f.attach
	f.onLast = f.detach
	return f
}

func (f *ChatFacility) attach() {
	f.tap = f.source.SubscribeToChat(func(msg console.ChatMessage) {
		f.publish(NewChatItem(msg))
	})
}

func (f *ChatFacility) detach() {
	if f.tap != nil {
		f.source.UnsubscribeFromChat(f.tap)
		f.tap = nil
	}
}
