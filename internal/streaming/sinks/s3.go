// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/airbridge/internal/streaming"
)

// S3API é o subconjunto do client S3 que o sink usa.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3SinkOptions parametriza um sink de S3.
type S3SinkOptions struct {
	Bucket string
	Prefix string

	// BatchSize fecha o lote por quantidade de itens; FlushPeriod fecha
	// por tempo, para lotes pequenos não ficarem presos indefinidamente.
	BatchSize   int
	FlushPeriod time.Duration

	// UploadTimeout limita cada PutObject.
	UploadTimeout time.Duration
}

func (o *S3SinkOptions) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.FlushPeriod <= 0 {
		o.FlushPeriod = time.Minute
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 30 * time.Second
	}
}

// S3Sink acumula itens em lotes JSON lines e sobe cada lote comprimido
// como um objeto no bucket. A chave carrega a data e o instante do fecho
// do lote, em partições ano/mês/dia.
type S3Sink struct {
	api    S3API
	opts   S3SinkOptions
	logger *slog.Logger

	mu    sync.Mutex
	batch []*streaming.Item

	flushCh  chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewS3Sink cria o sink e inicia sua goroutine de upload.
func NewS3Sink(api S3API, opts S3SinkOptions, logger *slog.Logger) *S3Sink {
	opts.defaults()
	s := &S3Sink{
		api:     api,
		opts:    opts,
		logger:  logger.With("component", "s3_sink", "bucket", opts.Bucket),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Write acrescenta o item ao lote corrente.
func (s *S3Sink) Write(item *streaming.Item) error {
	s.mu.Lock()
	s.batch = append(s.batch, item)
	full := len(s.batch) >= s.opts.BatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close sobe o lote residual e encerra.
func (s *S3Sink) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return nil
}

func (s *S3Sink) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.opts.FlushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.flushCh:
			s.flush()
		case <-ticker.C:
			s.flush()
		case <-s.stopCh:
			s.flush()
			return
		}
	}
}

func (s *S3Sink) flush() {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := s.upload(batch); err != nil {
		s.logger.Error("failed to upload batch", "items", len(batch), "error", err)
	}
}

func (s *S3Sink) upload(batch []*streaming.Item) error {
	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for _, item := range batch {
		if err := enc.Encode(item); err != nil {
			zw.Close()
			return fmt.Errorf("encoding batch: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing batch: %w", err)
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s%s/%s.ndjson.gz",
		s.opts.Prefix,
		now.Format("2006/01/02"),
		now.Format("20060102T150405.000000000"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.UploadTimeout)
	defer cancel()

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.opts.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("uploading batch to s3: %w", err)
	}

	s.logger.Debug("batch uploaded", "key", key, "items", len(batch))
	return nil
}
