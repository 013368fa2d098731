// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package streaming

import (
	"log/slog"

	"github.com/nishisan-dev/airbridge/internal/gamelog"
)

// NotParsedSource é o que a facility precisa do worker do game log.
type NotParsedSource interface {
	SubscribeToErrors(fn func(line string)) *gamelog.ErrorSubscription
	UnsubscribeFromErrors(sub *gamelog.ErrorSubscription)
}

// NotParsedFacility distribui as linhas do game log que o parser não
// reconheceu, para diagnóstico externo.
type NotParsedFacility struct {
	*queueFacility
	source NotParsedSource
	sub    *gamelog.ErrorSubscription
}

// NewNotParsedFacility cria a facility de linhas não reconhecidas.
func NewNotParsedFacility(source NotParsedSource, logger *slog.Logger) *NotParsedFacility {
	f := &NotParsedFacility{
		queueFacility: newQueueFacility("not_parsed_strings", logger),
		source:        source,
	}
	f.onFirst = f.attach
	f.onLast = f.detach
	return f
}

func (f *NotParsedFacility) attach() {
	f.sub = f.source.SubscribeToErrors(func(line string) {
		f.publish(NewNotParsedItem(line))
	})
}

func (f *NotParsedFacility) detach() {
	if f.sub != nil {
		f.source.UnsubscribeFromErrors(f.sub)
		f.sub = nil
	}
}
