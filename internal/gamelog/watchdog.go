// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package gamelog acompanha o event log do dedicated server: um watchdog
// segue o arquivo por polling e um worker decodifica as linhas em eventos.
package gamelog

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// WatchdogState é a posição de leitura persistida entre execuções.
// FileID identifica o arquivo (inode no unix) para detectar recriação.
type WatchdogState struct {
	FileID uint64 `yaml:"file_id"`
	Offset int64  `yaml:"offset"`
}

func (s *WatchdogState) clear() {
	s.FileID = 0
	s.Offset = 0
}

// Watchdog segue um arquivo de texto por polling e entrega cada linha nova
// aos subscribers, na ordem de registro. Rotação e truncamento do arquivo
// são detectados pela identidade do arquivo e reiniciam a leitura do zero.
type Watchdog struct {
	path       string
	pollPeriod time.Duration
	logger     *slog.Logger

	state   *WatchdogState
	stateMu sync.Mutex

	subMu       sync.Mutex
	subscribers []*Subscription

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// Subscription é o handle de um subscriber de linhas do watchdog.
type Subscription struct {
	fn func(line string)
}

// NewWatchdog cria um watchdog para path, retomando de state quando este
// ainda descreve o arquivo corrente.
func NewWatchdog(path string, pollPeriod time.Duration, state *WatchdogState, logger *slog.Logger) *Watchdog {
	if state == nil {
		state = &WatchdogState{}
	}
	if pollPeriod <= 0 {
		pollPeriod = 500 * time.Millisecond
	}
	return &Watchdog{
		path:       path,
		pollPeriod: pollPeriod,
		logger:     logger.With("component", "game_log_watchdog", "path", path),
		state:      state,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Subscribe registra um subscriber de linhas.
func (w *Watchdog) Subscribe(fn func(line string)) *Subscription {
	sub := &Subscription{fn: fn}
	w.subMu.Lock()
	w.subscribers = append(w.subscribers, sub)
	w.subMu.Unlock()
	return sub
}

// Unsubscribe remove um subscriber.
func (w *Watchdog) Unsubscribe(sub *Subscription) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for i, s := range w.subscribers {
		if s == sub {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			return
		}
	}
}

// Start inicia a goroutine de acompanhamento.
func (w *Watchdog) Start() {
	go w.run()
}

// Stop sinaliza parada. O tick corrente termina antes do retorno de Wait.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Wait bloqueia até a goroutine de acompanhamento terminar.
func (w *Watchdog) Wait() {
	<-w.doneCh
}

// State devolve uma cópia da posição corrente, própria para persistência.
func (w *Watchdog) State() WatchdogState {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return *w.state
}

func (w *Watchdog) run() {
	defer close(w.doneCh)
	w.logger.Info("game log watchdog started")

	for {
		if w.stopped() {
			w.logger.Info("game log watchdog stopped")
			return
		}
		if err := w.followOnce(); err != nil {
			if errors.Is(err, errStopped) {
				w.logger.Info("game log watchdog stopped")
				return
			}
			// Arquivo sumiu ou foi recriado: limpa a posição e recomeça.
			w.stateMu.Lock()
			w.state.clear()
			w.stateMu.Unlock()
		}
	}
}

var errStopped = errors.New("watchdog stopped")

// followOnce abre o arquivo (esperando sua criação se preciso), retoma da
// posição persistida e segue acrescentando até parada ou recriação.
func (w *Watchdog) followOnce() error {
	if _, err := os.Stat(w.path); err == nil {
		w.resetStateIfRecreated()
	} else {
		w.stateMu.Lock()
		w.state.clear()
		w.stateMu.Unlock()
		if err := w.waitForFile(); err != nil {
			return err
		}
	}

	w.stateMu.Lock()
	if w.state.FileID == 0 {
		id, err := fileID(w.path)
		if err != nil {
			w.stateMu.Unlock()
			return err
		}
		w.state.FileID = id
	}
	offset := w.state.Offset
	w.stateMu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return w.readLines(f, offset)
}

func (w *Watchdog) resetStateIfRecreated() {
	id, err := fileID(w.path)
	if err != nil {
		return
	}
	w.stateMu.Lock()
	if w.state.FileID != id {
		w.state.FileID = id
		w.state.Offset = 0
	}
	w.stateMu.Unlock()
}

func (w *Watchdog) waitForFile() error {
	for {
		if _, err := os.Stat(w.path); err == nil {
			return nil
		}
		if err := w.sleep(); err != nil {
			return err
		}
	}
}

// readLines consome linhas completas a partir de offset. Linha parcial no
// fim do arquivo não avança o offset: será relida inteira no próximo tick.
func (w *Watchdog) readLines(f *os.File, offset int64) error {
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err == nil {
			offset += int64(len(line))
			w.stateMu.Lock()
			w.state.Offset = offset
			w.stateMu.Unlock()
			w.handleLine(strings.TrimSpace(line))
			continue
		}

		if !w.fileIsStillTheSame() {
			return os.ErrNotExist
		}
		if err := w.sleep(); err != nil {
			return err
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		r.Reset(f)
	}
}

func (w *Watchdog) fileIsStillTheSame() bool {
	id, err := fileID(w.path)
	if err != nil {
		return false
	}
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state.FileID == id
}

func (w *Watchdog) handleLine(line string) {
	w.subMu.Lock()
	subs := append([]*Subscription(nil), w.subscribers...)
	w.subMu.Unlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("game log subscriber panicked",
						"panic", r, "line", line)
				}
			}()
			sub.fn(line)
		}()
	}
}

func (w *Watchdog) sleep() error {
	select {
	case <-w.stopCh:
		return errStopped
	case <-time.After(w.pollPeriod):
		return nil
	}
}

func (w *Watchdog) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}
