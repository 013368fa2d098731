// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package streaming

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nishisan-dev/airbridge/internal/devicelink"
	"github.com/nishisan-dev/airbridge/internal/radar"
)

// DefaultRadarRefreshPeriod vale para inscrições sem refresh_period.
const DefaultRadarRefreshPeriod = 5 * time.Second

// RadarSource é o que a facility de radar consulta a cada refresh.
type RadarSource interface {
	GetAllMovingActorsPositions(ctx context.Context) (radar.AllMovingActorsPositions, error)
}

// periodicGroup agrupa os sinks com o mesmo refresh period.
type periodicGroup struct {
	refreshPeriod time.Duration
	sinks         []Sink

	// lastRefresh zero significa que o grupo nunca recebeu snapshot.
	lastRefresh time.Time
}

func (g *periodicGroup) needsRefresh(now time.Time) bool {
	return g.lastRefresh.IsZero() || now.Sub(g.lastRefresh) >= g.refreshPeriod
}

// ackRefresh alinha lastRefresh à cadência ideal: desconta do instante
// corrente o resto da divisão pelo período, para o atraso de um tick não se
// acumular entre refreshes.
func (g *periodicGroup) ackRefresh(now time.Time) {
	if g.lastRefresh.IsZero() {
		g.lastRefresh = now
		return
	}
	buzz := now.Sub(g.lastRefresh) % g.refreshPeriod
	g.lastRefresh = now.Add(-buzz)
}

// RadarFacility tem forma diferente das demais: não há produtor externo.
// A facility mesma consulta o radar, num tick igual ao gcd dos períodos dos
// grupos inscritos, e publica o snapshot para os grupos vencidos. Sem
// inscritos o loop pausa; um novo subscribe o acorda.
type RadarFacility struct {
	name           string
	logger         *slog.Logger
	source         RadarSource
	requestTimeout time.Duration

	mu      sync.Mutex
	groups  map[time.Duration]*periodicGroup
	tick    time.Duration
	stopped bool
	cancel  context.CancelFunc

	resumeCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	now func() time.Time
}

// NewRadarFacility cria a facility de radar. requestTimeout limita cada
// consulta ao device link.
func NewRadarFacility(source RadarSource, requestTimeout time.Duration, logger *slog.Logger) *RadarFacility {
	return &RadarFacility{
		name:           "radar",
		logger:         logger.With("facility", "radar"),
		source:         source,
		requestTimeout: requestTimeout,
		groups:         make(map[time.Duration]*periodicGroup),
		resumeCh:       make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		now:            time.Now,
	}
}

func (f *RadarFacility) Name() string {
	return f.name
}

// Subscribe registra um sink no grupo do seu refresh period, criando o
// grupo se preciso, e acorda o loop.
func (f *RadarFacility) Subscribe(sink Sink, opts SubscriptionOptions) error {
	period := opts.RefreshPeriod
	if period <= 0 {
		period = DefaultRadarRefreshPeriod
	}

	f.mu.Lock()
	group := f.groups[period]
	if group == nil {
		group = &periodicGroup{refreshPeriod: period}
		f.groups[period] = group
		f.recomputeTick()
	}
	group.sinks = append(group.sinks, sink)
	f.mu.Unlock()

	select {
	case f.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Unsubscribe remove um sink. Grupo vazio é removido; sem grupos o loop
// pausa e a operação corrente (tick ou consulta) é cancelada.
func (f *RadarFacility) Unsubscribe(sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for period, group := range f.groups {
		for i, s := range group.sinks {
			if s != sink {
				continue
			}
			group.sinks = append(group.sinks[:i], group.sinks[i+1:]...)
			if len(group.sinks) == 0 {
				delete(f.groups, period)
				f.recomputeTick()
				if len(f.groups) == 0 && f.cancel != nil {
					f.cancel()
				}
			}
			return nil
		}
	}
	return ErrNotSubscribed
}

// recomputeTick recalcula o gcd dos períodos. Chamado com mu preso.
func (f *RadarFacility) recomputeTick() {
	var tick time.Duration
	for period := range f.groups {
		if tick == 0 {
			tick = period
		} else {
			tick = gcd(tick, period)
		}
	}
	if tick != 0 && tick != f.tick {
		f.logger.Debug("new radar tick period", "tick", tick)
	}
	if tick != 0 {
		f.tick = tick
	}
}

func gcd(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start inicia o loop de polling.
func (f *RadarFacility) Start() {
	go f.run()
}

// Stop encerra o loop, cancelando o tick ou a consulta em andamento.
func (f *RadarFacility) Stop() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.stopped = true
		if f.cancel != nil {
			f.cancel()
		}
		f.mu.Unlock()

		close(f.stopCh)
		select {
		case f.resumeCh <- struct{}{}:
		default:
		}
	})
}

// Wait bloqueia até o loop terminar.
func (f *RadarFacility) Wait() {
	<-f.doneCh
}

func (f *RadarFacility) run() {
	defer close(f.doneCh)
	f.logger.Info("streaming facility started")

	for {
		if !f.waitForSubscribers() {
			f.logger.Info("streaming facility stopped")
			return
		}

		f.sleepTick()

		if f.isStopped() {
			f.logger.Info("streaming facility stopped")
			return
		}
		if !f.hasSubscribers() {
			continue
		}

		now := f.now()
		if !f.anyGroupNeedsRefresh(now) {
			continue
		}

		data, err := f.refresh()
		if err != nil {
			if errors.Is(err, devicelink.ErrConnectionAborted) {
				f.logger.Warn("radar connection was lost, terminating")
				return
			}
			if errors.Is(err, context.Canceled) {
				continue
			}
			f.logger.Error("radar refresh failed", "error", err)
			continue
		}

		if f.isStopped() {
			f.logger.Info("streaming facility stopped")
			return
		}
		if data.IsEmpty() {
			f.logger.Debug("empty radar snapshot, skipping")
			continue
		}

		f.deliver(NewRadarItem(data))
	}
}

// waitForSubscribers bloqueia enquanto não houver grupos. Retorna false no
// stop.
func (f *RadarFacility) waitForSubscribers() bool {
	for {
		if f.isStopped() {
			return false
		}
		if f.hasSubscribers() {
			return true
		}
		select {
		case <-f.stopCh:
			return false
		case <-f.resumeCh:
		}
	}
}

// sleepTick dorme um tick; pausa, stop ou mudança de inscritos interrompem
// o sono via cancelamento.
func (f *RadarFacility) sleepTick() {
	f.mu.Lock()
	tick := f.tick
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.mu.Unlock()

	defer f.clearCancel(cancel)

	if tick <= 0 {
		tick = DefaultRadarRefreshPeriod
	}

	timer := time.NewTimer(tick)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		f.logger.Debug("radar tick was cancelled")
	case <-f.stopCh:
	}
}

func (f *RadarFacility) refresh() (radar.AllMovingActorsPositions, error) {
	ctx := context.Background()
	if f.requestTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, f.requestTimeout)
		defer cancelTimeout()
	}

	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	defer f.clearCancel(cancel)

	return f.source.GetAllMovingActorsPositions(ctx)
}

func (f *RadarFacility) clearCancel(cancel context.CancelFunc) {
	cancel()
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel = nil
	}
	f.mu.Unlock()
}

// deliver entrega o snapshot aos grupos vencidos e alinha a cadência dos
// que receberam com sucesso.
func (f *RadarFacility) deliver(item *Item) {
	now := f.now()

	f.mu.Lock()
	groups := make([]*periodicGroup, 0, len(f.groups))
	for _, group := range f.groups {
		groups = append(groups, group)
	}
	f.mu.Unlock()

	for _, group := range groups {
		f.mu.Lock()
		due := group.needsRefresh(now)
		sinks := make([]Sink, len(group.sinks))
		copy(sinks, group.sinks)
		f.mu.Unlock()

		if !due {
			continue
		}

		delivered := true
		for _, sink := range sinks {
			if err := f.write(sink, item); err != nil {
				f.logger.Error("radar sink failed to handle snapshot", "error", err)
				delivered = false
			}
		}
		if delivered {
			f.mu.Lock()
			group.ackRefresh(now)
			f.mu.Unlock()
		}
	}
}

func (f *RadarFacility) write(sink Sink, item *Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("sink panicked")
		}
	}()
	return sink.Write(item)
}

func (f *RadarFacility) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *RadarFacility) hasSubscribers() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groups) > 0
}

func (f *RadarFacility) anyGroupNeedsRefresh(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, group := range f.groups {
		if group.needsRefresh(now) {
			return true
		}
	}
	return false
}
