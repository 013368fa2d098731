// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/airbridge/internal/devicelink"
	"github.com/nishisan-dev/airbridge/internal/logging"
	"github.com/nishisan-dev/airbridge/internal/radar"
)

// fakeRadarSource conta consultas e devolve um snapshot fixo ou um erro.
type fakeRadarSource struct {
	mu       sync.Mutex
	queries  int
	snapshot radar.AllMovingActorsPositions
	err      error
}

func (s *fakeRadarSource) GetAllMovingActorsPositions(context.Context) (radar.AllMovingActorsPositions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.snapshot, s.err
}

func (s *fakeRadarSource) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func movingSnapshot() radar.AllMovingActorsPositions {
	return radar.AllMovingActorsPositions{
		Aircrafts: []devicelink.ActorPosition{{ID: "r01_0", X: 1, Y: 2, Z: 3}},
	}
}

func startRadarFacility(t *testing.T, source RadarSource) *RadarFacility {
	t.Helper()
	f := NewRadarFacility(source, time.Second, logging.NewNopLogger())
	f.Start()
	t.Cleanup(func() {
		f.Stop()
		f.Wait()
	})
	return f
}

func TestRadarFacilityDeliversSnapshotsPeriodically(t *testing.T) {
	source := &fakeRadarSource{snapshot: movingSnapshot()}
	f := startRadarFacility(t, source)

	sink := &recordingSink{}
	f.Subscribe(sink, SubscriptionOptions{RefreshPeriod: 20 * time.Millisecond})

	items := sink.waitFor(t, 3)
	if items[0].Kind != KindRadarSnapshot {
		t.Fatalf("items[0].Kind = %q", items[0].Kind)
	}
	data, ok := items[0].Payload.(radar.AllMovingActorsPositions)
	if !ok || len(data.Aircrafts) != 1 || data.Aircrafts[0].ID != "r01_0" {
		t.Fatalf("items[0].Payload = %+v", items[0].Payload)
	}
}

func TestRadarFacilityGroupsSinksByPeriod(t *testing.T) {
	source := &fakeRadarSource{snapshot: movingSnapshot()}
	f := startRadarFacility(t, source)

	fast := &recordingSink{}
	slow := &recordingSink{}
	f.Subscribe(fast, SubscriptionOptions{RefreshPeriod: 20 * time.Millisecond})
	f.Subscribe(slow, SubscriptionOptions{RefreshPeriod: 100 * time.Millisecond})

	fastItems := fast.waitFor(t, 5)
	slowItems := slow.snapshot()

	// O grupo lento recebe bem menos snapshots que o rápido no mesmo
	// intervalo; a primeira entrega de ambos é imediata.
	if len(slowItems) == 0 {
		t.Fatal("slow sink never got a snapshot")
	}
	if len(slowItems) >= len(fastItems) {
		t.Fatalf("slow got %d, fast got %d", len(slowItems), len(fastItems))
	}
}

func TestRadarFacilityPausesWithoutSubscribers(t *testing.T) {
	source := &fakeRadarSource{snapshot: movingSnapshot()}
	f := startRadarFacility(t, source)

	// Sem inscritos o loop não consulta.
	time.Sleep(80 * time.Millisecond)
	if n := source.queryCount(); n != 0 {
		t.Fatalf("queries = %d before any subscriber", n)
	}

	sink := &recordingSink{}
	f.Subscribe(sink, SubscriptionOptions{RefreshPeriod: 20 * time.Millisecond})
	sink.waitFor(t, 1)

	// Último unsubscribe pausa de novo.
	if err := f.Unsubscribe(sink); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	base := source.queryCount()
	time.Sleep(80 * time.Millisecond)
	if n := source.queryCount(); n != base {
		t.Fatalf("queries advanced while paused: %d -> %d", base, n)
	}
}

func TestRadarFacilitySkipsEmptySnapshots(t *testing.T) {
	source := &fakeRadarSource{}
	f := startRadarFacility(t, source)

	sink := &recordingSink{}
	f.Subscribe(sink, SubscriptionOptions{RefreshPeriod: 10 * time.Millisecond})

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		if source.queryCount() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if source.queryCount() < 2 {
		t.Fatalf("queries = %d, facility did not poll", source.queryCount())
	}
	if items := sink.snapshot(); len(items) != 0 {
		t.Fatalf("empty snapshots were delivered: %d", len(items))
	}
}

func TestRadarFacilityTerminatesOnConnectionLoss(t *testing.T) {
	source := &fakeRadarSource{err: devicelink.ErrConnectionAborted}
	f := NewRadarFacility(source, time.Second, logging.NewNopLogger())
	f.Start()

	sink := &recordingSink{}
	f.Subscribe(sink, SubscriptionOptions{RefreshPeriod: 10 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		f.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("facility did not terminate after connection loss")
	}
}

func TestRadarFacilityStopInterruptsTick(t *testing.T) {
	source := &fakeRadarSource{snapshot: movingSnapshot()}
	f := NewRadarFacility(source, time.Second, logging.NewNopLogger())
	f.Start()

	sink := &recordingSink{}
	// Período longo: Stop precisa interromper o sono do tick.
	f.Subscribe(sink, SubscriptionOptions{RefreshPeriod: time.Hour})

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	f.Stop()
	f.Wait()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stop took %v", elapsed)
	}
}

func TestPeriodicGroupKeepsCadence(t *testing.T) {
	g := &periodicGroup{refreshPeriod: 100 * time.Millisecond}
	base := time.Date(2025, 9, 15, 20, 0, 0, 0, time.UTC)

	if !g.needsRefresh(base) {
		t.Fatal("fresh group should need a snapshot")
	}
	g.ackRefresh(base)

	if g.needsRefresh(base.Add(50 * time.Millisecond)) {
		t.Fatal("group refreshed half a period ago should not be due")
	}

	// Entrega atrasada 30ms: o ack desconta o atraso para a cadência não
	// derrapar.
	late := base.Add(130 * time.Millisecond)
	if !g.needsRefresh(late) {
		t.Fatal("group should be due after a full period")
	}
	g.ackRefresh(late)
	if got, want := g.lastRefresh, base.Add(100*time.Millisecond); !got.Equal(want) {
		t.Fatalf("lastRefresh = %v, want %v", got, want)
	}
}

func TestTickIsGCDOfPeriods(t *testing.T) {
	f := NewRadarFacility(&fakeRadarSource{}, time.Second, logging.NewNopLogger())

	f.Subscribe(&recordingSink{}, SubscriptionOptions{RefreshPeriod: 40 * time.Millisecond})
	f.Subscribe(&recordingSink{}, SubscriptionOptions{RefreshPeriod: 60 * time.Millisecond})
	f.Subscribe(&recordingSink{}, SubscriptionOptions{RefreshPeriod: 100 * time.Millisecond})

	f.mu.Lock()
	tick := f.tick
	f.mu.Unlock()
	if tick != 20*time.Millisecond {
		t.Fatalf("tick = %v, want 20ms", tick)
	}
}
