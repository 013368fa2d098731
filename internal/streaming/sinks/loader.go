// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package sinks

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nishisan-dev/airbridge/internal/config"
	"github.com/nishisan-dev/airbridge/internal/natsio"
	"github.com/nishisan-dev/airbridge/internal/streaming"
)

// Loader constrói sinks a partir da configuração. Shortcuts reconhecidos:
// file, nats e s3. Sinks que dependem de infraestrutura ausente (nats ou
// s3 não configurados) falham na carga, não em runtime.
type Loader struct {
	NATS   *natsio.Client
	S3     S3API
	Logger *slog.Logger
}

type fileArgs struct {
	Path    string `yaml:"path"`
	MaxSize string `yaml:"max_size"`
}

type natsArgs struct {
	Subject string `yaml:"subject"`
}

type s3Args struct {
	Bucket      string        `yaml:"bucket"`
	Prefix      string        `yaml:"prefix"`
	BatchSize   int           `yaml:"batch_size"`
	FlushPeriod time.Duration `yaml:"flush_period"`
}

// Build constrói um sink pelo shortcut do config.
func (l *Loader) Build(shortcut string, info config.SubscriberInfo) (streaming.Sink, error) {
	switch shortcut {
	case "file":
		var args fileArgs
		if err := config.DecodeArgs(info.Args, &args); err != nil {
			return nil, err
		}
		if args.Path == "" {
			return nil, fmt.Errorf("file sink requires a path")
		}
		opts := FileSinkOptions{Path: args.Path}
		if args.MaxSize != "" {
			size, err := config.ParseByteSize(args.MaxSize)
			if err != nil {
				return nil, fmt.Errorf("file sink max_size: %w", err)
			}
			opts.MaxSize = size
		}
		return NewFileSink(opts, l.Logger)

	case "nats", "bus":
		if l.NATS == nil {
			return nil, fmt.Errorf("nats sink requires the nats section")
		}
		var args natsArgs
		if err := config.DecodeArgs(info.Args, &args); err != nil {
			return nil, err
		}
		if args.Subject == "" {
			return nil, fmt.Errorf("nats sink requires a subject")
		}
		return NewNATSSink(l.NATS, args.Subject, l.Logger), nil

	case "s3":
		if l.S3 == nil {
			return nil, fmt.Errorf("s3 sink requires the s3 section")
		}
		var args s3Args
		if err := config.DecodeArgs(info.Args, &args); err != nil {
			return nil, err
		}
		if args.Bucket == "" {
			return nil, fmt.Errorf("s3 sink requires a bucket")
		}
		return NewS3Sink(l.S3, S3SinkOptions{
			Bucket:      args.Bucket,
			Prefix:      args.Prefix,
			BatchSize:   args.BatchSize,
			FlushPeriod: args.FlushPeriod,
		}, l.Logger), nil

	default:
		return nil, fmt.Errorf("unknown sink %q", shortcut)
	}
}

// SubscribeAll constrói os sinks do mapa de subscribers e os inscreve na
// facility, repassando as opções de inscrição de cada um. Retorna os sinks
// criados para o shutdown fechá-los.
func (l *Loader) SubscribeAll(facility streaming.Facility, subscribers map[string]config.SubscriberInfo) ([]streaming.Sink, error) {
	created := make([]streaming.Sink, 0, len(subscribers))

	for shortcut, info := range subscribers {
		sink, err := l.Build(shortcut, info)
		if err != nil {
			closeAll(created)
			return nil, fmt.Errorf("facility %s, sink %s: %w", facility.Name(), shortcut, err)
		}
		opts := streaming.SubscriptionOptions{
			RefreshPeriod: info.SubscriptionOptions.RefreshPeriod,
		}
		if err := facility.Subscribe(sink, opts); err != nil {
			sink.Close()
			closeAll(created)
			return nil, fmt.Errorf("facility %s, sink %s: %w", facility.Name(), shortcut, err)
		}
		created = append(created, sink)
	}
	return created, nil
}

func closeAll(sinks []streaming.Sink) {
	for _, s := range sinks {
		s.Close()
	}
}
