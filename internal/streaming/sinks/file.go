// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package sinks implementa os destinos dos fluxos de streaming: arquivo
// local em JSON lines, barramento NATS e lotes em S3.
package sinks

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/airbridge/internal/streaming"
)

// FileSinkOptions parametriza um sink de arquivo.
type FileSinkOptions struct {
	// Path é o arquivo de destino, um item JSON por linha.
	Path string

	// MaxSize, quando positivo, rotaciona o arquivo ao atingir este
	// tamanho; o arquivo rotacionado é comprimido para <path>.<ts>.gz.
	MaxSize int64
}

// FileSink grava itens como JSON lines num arquivo local. Se o arquivo for
// removido ou trocado por fora (logrotate), o sink reabre no caminho
// original. Com MaxSize configurado o próprio sink rotaciona e comprime.
type FileSink struct {
	opts   FileSinkOptions
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
	info os.FileInfo
	size int64
}

// NewFileSink cria e abre um sink de arquivo.
func NewFileSink(opts FileSinkOptions, logger *slog.Logger) (*FileSink, error) {
	s := &FileSink{
		opts:   opts,
		logger: logger.With("component", "file_sink", "path", opts.Path),
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) open() error {
	if dir := filepath.Dir(s.opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating sink directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening sink file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("inspecting sink file: %w", err)
	}

	s.file = f
	s.info = info
	s.size = info.Size()
	return nil
}

// Write serializa o item e acrescenta uma linha ao arquivo.
func (s *FileSink) Write(item *streaming.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding item: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.maybeReopen(); err != nil {
		return err
	}
	if s.opts.MaxSize > 0 && s.size+int64(len(data)) > s.opts.MaxSize {
		if err := s.rotate(); err != nil {
			s.logger.Error("sink rotation failed", "error", err)
		}
	}

	n, err := s.file.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("writing item: %w", err)
	}
	return nil
}

// maybeReopen reabre o arquivo quando o caminho aponta para outro arquivo
// (removido ou rotacionado por fora).
func (s *FileSink) maybeReopen() error {
	info, err := os.Lstat(s.opts.Path)
	if err == nil && os.SameFile(info, s.info) {
		return nil
	}

	s.logger.Info("sink file was replaced, reopening")
	s.file.Close()
	return s.open()
}

// rotate move o arquivo corrente para um nome com timestamp, comprime e
// reabre o caminho original vazio.
func (s *FileSink) rotate() error {
	rotated := fmt.Sprintf("%s.%s", s.opts.Path, time.Now().UTC().Format("20060102T150405"))

	if err := s.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(s.opts.Path, rotated); err != nil {
		return err
	}
	if err := s.open(); err != nil {
		return err
	}

	go func() {
		if err := compressFile(rotated); err != nil {
			s.logger.Error("failed to compress rotated sink file",
				"file", rotated, "error", err)
			return
		}
		s.logger.Info("rotated sink file compressed", "file", rotated+".gz")
	}()
	return nil
}

// compressFile comprime src para src.gz e remove o original.
func compressFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()

	zw := pgzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Close fecha o arquivo.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
