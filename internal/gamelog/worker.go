// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gamelog

import (
	"errors"
	"log/slog"
	"sync"
)

// defaultQueueSize limita as linhas enfileiradas entre o watchdog e o worker.
const defaultQueueSize = 1024

// Worker consome linhas do event log de uma fila limitada e as decodifica.
// Eventos reconhecidos vão para os subscribers de eventos; linhas que o
// parser não reconhece vão para os subscribers de erros.
type Worker struct {
	parser Parser
	logger *slog.Logger

	queue chan string

	eventsMu  sync.Mutex
	eventSubs []*EventSubscription
	errorsMu  sync.Mutex
	errorSubs []*ErrorSubscription

	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewWorker cria um worker com a fila default.
func NewWorker(parser Parser, logger *slog.Logger) *Worker {
	return &Worker{
		parser: parser,
		logger: logger.With("component", "game_log_worker"),
		queue:  make(chan string, defaultQueueSize),
		doneCh: make(chan struct{}),
	}
}

// EventSubscription é o handle de um subscriber de eventos decodificados.
type EventSubscription struct {
	fn func(event *Event)
}

// ErrorSubscription é o handle de um subscriber de linhas não reconhecidas.
type ErrorSubscription struct {
	fn func(line string)
}

// SubscribeToEvents registra um subscriber de eventos decodificados.
func (w *Worker) SubscribeToEvents(fn func(event *Event)) *EventSubscription {
	sub := &EventSubscription{fn: fn}
	w.eventsMu.Lock()
	w.eventSubs = append(w.eventSubs, sub)
	w.eventsMu.Unlock()
	return sub
}

// UnsubscribeFromEvents remove um subscriber de eventos.
func (w *Worker) UnsubscribeFromEvents(sub *EventSubscription) {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()
	for i, s := range w.eventSubs {
		if s == sub {
			w.eventSubs = append(w.eventSubs[:i], w.eventSubs[i+1:]...)
			return
		}
	}
}

// SubscribeToErrors registra um subscriber de linhas não reconhecidas.
func (w *Worker) SubscribeToErrors(fn func(line string)) *ErrorSubscription {
	sub := &ErrorSubscription{fn: fn}
	w.errorsMu.Lock()
	w.errorSubs = append(w.errorSubs, sub)
	w.errorsMu.Unlock()
	return sub
}

// UnsubscribeFromErrors remove um subscriber de linhas não reconhecidas.
func (w *Worker) UnsubscribeFromErrors(sub *ErrorSubscription) {
	w.errorsMu.Lock()
	defer w.errorsMu.Unlock()
	for i, s := range w.errorSubs {
		if s == sub {
			w.errorSubs = append(w.errorSubs[:i], w.errorSubs[i+1:]...)
			return
		}
	}
}

// Enqueue entrega uma linha para processamento. Com a fila cheia a linha é
// descartada com log, para o watchdog nunca bloquear atrás do parser.
func (w *Worker) Enqueue(line string) {
	select {
	case w.queue <- line:
	default:
		w.logger.Warn("game log queue is full, dropping line", "line", line)
	}
}

// Start inicia a goroutine de processamento.
func (w *Worker) Start() {
	go w.run()
}

// Stop encerra o worker após drenar as linhas já enfileiradas.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.queue) })
}

// Wait bloqueia até o worker terminar.
func (w *Worker) Wait() {
	<-w.doneCh
}

func (w *Worker) run() {
	defer close(w.doneCh)
	w.logger.Info("game log worker started")

	for line := range w.queue {
		w.handle(line)
	}
	w.logger.Info("game log worker finished")
}

func (w *Worker) handle(line string) {
	event, err := w.parser.Parse(line)
	if err != nil {
		if errors.Is(err, ErrNotParsed) {
			w.dispatchError(line)
			return
		}
		w.logger.Error("failed to parse game log line", "line", line, "error", err)
		return
	}
	if event == nil {
		return
	}
	w.dispatchEvent(event)
}

func (w *Worker) dispatchEvent(event *Event) {
	w.eventsMu.Lock()
	subs := make([]*EventSubscription, len(w.eventSubs))
	copy(subs, w.eventSubs)
	w.eventsMu.Unlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("game event subscriber panicked", "panic", r)
				}
			}()
			sub.fn(event)
		}()
	}
}

func (w *Worker) dispatchError(line string) {
	w.errorsMu.Lock()
	subs := make([]*ErrorSubscription, len(w.errorSubs))
	copy(subs, w.errorSubs)
	w.errorsMu.Unlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("not-parsed subscriber panicked", "panic", r)
				}
			}()
			sub.fn(line)
		}()
	}
}
