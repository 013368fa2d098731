// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package streaming

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotSubscribed indica unsubscribe de um sink que não está inscrito.
var ErrNotSubscribed = errors.New("sink is not subscribed")

// Sink recebe os itens de uma facility. Write nunca deve entrar em pânico
// sem recover próprio; a facility loga falhas e segue.
type Sink interface {
	Write(item *Item) error
	Close() error
}

// SubscriptionOptions parametriza uma inscrição. Hoje só o radar as usa.
type SubscriptionOptions struct {
	RefreshPeriod time.Duration
}

// Facility é um fluxo com sinks dinâmicos.
type Facility interface {
	Subscribe(sink Sink, opts SubscriptionOptions) error
	Unsubscribe(sink Sink) error
	Start()
	Stop()
	Wait()
	Name() string
}

// queueSize limita a fila entre os produtores e o loop de entrega.
const queueSize = 1024

// queueFacility implementa o padrão comum: produtores publicam numa fila e
// um loop único entrega para todos os sinks, em ordem. O primeiro subscribe
// liga o tap no produtor e o último unsubscribe desliga.
type queueFacility struct {
	name   string
	logger *slog.Logger

	queue chan *Item

	mu    sync.Mutex
	sinks []Sink

	onFirst func()
	onLast  func()

	stopOnce sync.Once
	doneCh   chan struct{}
}

func newQueueFacility(name string, logger *slog.Logger) *queueFacility {
	return &queueFacility{
		name:   name,
		logger: logger.With("facility", name),
		queue:  make(chan *Item, queueSize),
		doneCh: make(chan struct{}),
	}
}

func (f *queueFacility) Name() string {
	return f.name
}

// Subscribe registra um sink. O tap no produtor só existe enquanto houver
// ao menos um sink inscrito.
func (f *queueFacility) Subscribe(sink Sink, _ SubscriptionOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sinks) == 0 && f.onFirst != nil {
		f.onFirst()
	}
	f.sinks = append(f.sinks, sink)
	return nil
}

// Unsubscribe remove um sink.
func (f *queueFacility) Unsubscribe(sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, s := range f.sinks {
		if s == sink {
			f.sinks = append(f.sinks[:i], f.sinks[i+1:]...)
			if len(f.sinks) == 0 && f.onLast != nil {
				f.onLast()
			}
			return nil
		}
	}
	return ErrNotSubscribed
}

// publish enfileira um item sem bloquear o produtor. Fila cheia descarta
// com log, para um sink lento nunca travar o client de console ou o worker
// do game log.
func (f *queueFacility) publish(item *Item) {
	select {
	case f.queue <- item:
	default:
		f.logger.Warn("facility queue is full, dropping item", "kind", item.Kind)
	}
}

// Start inicia o loop de entrega.
func (f *queueFacility) Start() {
	go f.run()
}

// Stop encerra o loop após drenar os itens já enfileirados.
func (f *queueFacility) Stop() {
	f.stopOnce.Do(func() { f.queue <- nil })
}

// Wait bloqueia até o loop terminar.
func (f *queueFacility) Wait() {
	<-f.doneCh
}

func (f *queueFacility) run() {
	defer close(f.doneCh)
	f.logger.Info("streaming facility started")

	for item := range f.queue {
		if item == nil {
			break
		}
		f.deliver(item)
	}
	f.logger.Info("streaming facility stopped")
}

// deliver entrega o item para todos os sinks correntes. Falha de um sink é
// logada e não impede os demais.
func (f *queueFacility) deliver(item *Item) {
	f.mu.Lock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.Unlock()

	if len(sinks) == 0 {
		f.logger.Debug("no subscribers, skipping item", "kind", item.Kind)
		return
	}

	for _, sink := range sinks {
		if err := f.write(sink, item); err != nil {
			f.logger.Error("sink failed to handle item",
				"kind", item.Kind, "error", err)
		}
	}
}

func (f *queueFacility) write(sink Sink, item *Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("sink panicked")
		}
	}()
	return sink.Write(item)
}
