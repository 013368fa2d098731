// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package bridge monta e conduz o ciclo de vida do airbridge: processo do
// dedicated server, clients upstream, facilities de streaming, sinks, API
// e proxies. A ordem de parada é o inverso da de partida.
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nishisan-dev/airbridge/internal/announce"
	"github.com/nishisan-dev/airbridge/internal/config"
	"github.com/nishisan-dev/airbridge/internal/console"
	"github.com/nishisan-dev/airbridge/internal/devicelink"
	"github.com/nishisan-dev/airbridge/internal/ds"
	"github.com/nishisan-dev/airbridge/internal/gamelog"
	"github.com/nishisan-dev/airbridge/internal/natsio"
	"github.com/nishisan-dev/airbridge/internal/radar"
	"github.com/nishisan-dev/airbridge/internal/state"
	"github.com/nishisan-dev/airbridge/internal/streaming"
	"github.com/nishisan-dev/airbridge/internal/streaming/sinks"
)

const (
	// listenersTimeout limita a espera pelos listeners do dedicated server
	// depois do boot; o wine pode demorar a abrir as portas.
	listenersTimeout    = 2 * time.Minute
	listenersPollPeriod = 500 * time.Millisecond

	// exitGracePeriod é quanto o shutdown espera o dedicated server sair
	// pelo comando exit antes de derrubar via OS.
	exitGracePeriod = 30 * time.Second

	watchdogPollPeriod = 500 * time.Millisecond
)

// Bridge agrega todos os componentes de uma execução.
type Bridge struct {
	cfg    *config.Config
	logger *slog.Logger

	st      *state.State
	wdState gamelog.WatchdogState

	server     *ds.Server
	consoleCli *console.Client
	dlCli      *devicelink.Client
	radarView  *radar.Radar

	watchdog *gamelog.Watchdog
	worker   *gamelog.Worker

	nats      *natsio.Client
	api       *natsio.API
	announcer *announce.Announcer

	consoleProxy *console.Proxy
	dlProxy      *devicelink.Proxy

	facilities []streaming.Facility
	sinks      []streaming.Sink
}

// New monta o bridge a partir da configuração. Nada é spawnado aqui.
func New(cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	st, err := state.Load(cfg.State.FilePath)
	if err != nil {
		return nil, err
	}

	server, err := ds.New(ds.Options{
		ExePath:         cfg.DS.ExePath,
		ConfigPath:      cfg.DS.ConfigPath,
		StartScriptPath: cfg.DS.StartScriptPath,
		WineBinPath:     cfg.WineBinPath,
		StdoutHandler:   echoToTerminal,
		PromptHandler:   echoToTerminal,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	return &Bridge{
		cfg:     cfg,
		logger:  logger.With("component", "bridge"),
		st:      st,
		wdState: st.GameLogWatchDog,
		server:  server,
	}, nil
}

// echoToTerminal replica a saída do dedicated server no terminal do
// airbridge, como se o processo rodasse em foreground.
func echoToTerminal(s string) {
	io.WriteString(os.Stdout, s)
}

// Run executa o ciclo completo e retorna o exit code do dedicated server.
// O contexto cancelado dispara o shutdown ordenado.
func (b *Bridge) Run(ctx context.Context) (int, error) {
	if err := b.server.Start(); err != nil {
		return -1, err
	}

	exitCh := make(chan int, 1)
	go func() {
		code, err := b.server.WaitFinished()
		if err != nil {
			b.logger.Error("dedicated server wait failed", "error", err)
		}
		exitCh <- code
	}()

	if err := b.startComponents(ctx); err != nil {
		b.logger.Error("startup failed, terminating dedicated server", "error", err)
		b.server.Terminate()
		code := <-exitCh
		b.stopComponents()
		return code, err
	}

	go b.forwardStdin()

	var code int
	select {
	case code = <-exitCh:
		b.logger.Info("dedicated server exited on its own", "code", code)
	case <-ctx.Done():
		b.logger.Info("shutdown requested")
		code = b.askExitAndWait(exitCh)
	}

	b.stopComponents()

	if err := b.saveState(); err != nil {
		b.logger.Error("failed to save state", "error", err)
	}
	return code, nil
}

// startComponents sobe tudo que depende do dedicated server já bootado.
func (b *Bridge) startComponents(ctx context.Context) error {
	if err := b.server.WaitNetworkListeners(ctx, listenersTimeout, listenersPollPeriod); err != nil {
		return err
	}

	consoleAddr := fmt.Sprintf("localhost:%d", b.server.Config.ConsolePort)
	b.consoleCli = console.NewClient(consoleAddr, b.logger)
	if err := b.consoleCli.Connect(ctx); err != nil {
		return err
	}

	dlAddr := fmt.Sprintf("localhost:%d", b.server.Config.DeviceLinkPort)
	b.dlCli = devicelink.NewClient(dlAddr, b.logger)
	if err := b.dlCli.Connect(ctx); err != nil {
		return err
	}
	b.radarView = radar.New(b.dlCli)

	if b.cfg.NATS != nil {
		nc, err := natsio.NewClient(b.cfg.NATS.Servers, b.cfg.NATS.Name, b.logger)
		if err != nil {
			return err
		}
		b.nats = nc
	}

	if err := b.startStreaming(ctx); err != nil {
		return err
	}
	b.startGameLog()

	if b.cfg.API.NATS != nil {
		b.api = natsio.NewAPI(b.nats, b.cfg.API.NATS.Subject, b.consoleCli, b.radarView, b.logger)
		if err := b.api.Start(); err != nil {
			return err
		}
	}

	if len(b.cfg.Announcements) > 0 {
		announcer, err := announce.New(b.consoleCli, b.cfg.Announcements, b.logger)
		if err != nil {
			return err
		}
		b.announcer = announcer
		b.announcer.Start()
	}

	return b.startProxies()
}

func (b *Bridge) startStreaming(ctx context.Context) error {
	b.worker = gamelog.NewWorker(gamelog.NewDefaultParser(), b.logger)

	chat := streaming.NewChatFacility(b.consoleCli, b.logger)
	events := streaming.NewEventsFacility(b.consoleCli, b.worker, b.logger)
	notParsed := streaming.NewNotParsedFacility(b.worker, b.logger)
	radarFacility := streaming.NewRadarFacility(
		b.radarView, b.cfg.Streaming.Radar.RequestTimeout, b.logger)

	facilities := []streaming.Facility{chat, events, notParsed, radarFacility}

	loader := &sinks.Loader{NATS: b.nats, Logger: b.logger}
	if b.cfg.S3 != nil {
		s3Client, err := b.newS3Client(ctx)
		if err != nil {
			return err
		}
		loader.S3 = s3Client
	}

	plug := func(f streaming.Facility, subscribers map[string]config.SubscriberInfo) error {
		created, err := loader.SubscribeAll(f, subscribers)
		if err != nil {
			return err
		}
		b.sinks = append(b.sinks, created...)
		return nil
	}

	if err := plug(chat, b.cfg.Streaming.Chat.Subscribers); err != nil {
		return err
	}
	if err := plug(events, b.cfg.Streaming.Events.Subscribers); err != nil {
		return err
	}
	if err := plug(notParsed, b.cfg.Streaming.NotParsedStrings.Subscribers); err != nil {
		return err
	}
	if err := plug(radarFacility, b.cfg.Streaming.Radar.Subscribers); err != nil {
		return err
	}

	// As facilities só começam a entregar depois de todos os sinks
	// inscritos; itens publicados antes ficam na fila de cada uma. O campo
	// só é preenchido com elas rodando, para o stop nunca esperar um loop
	// que não existe.
	for _, f := range facilities {
		f.Start()
	}
	b.facilities = facilities
	return nil
}

func (b *Bridge) newS3Client(ctx context.Context) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(b.cfg.S3.Region),
	}
	if b.cfg.S3.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				b.cfg.S3.AccessKey, b.cfg.S3.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading s3 credentials: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if b.cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (b *Bridge) startGameLog() {
	b.watchdog = gamelog.NewWatchdog(
		b.server.GameLogPath(), watchdogPollPeriod, &b.wdState, b.logger)
	b.watchdog.Subscribe(b.worker.Enqueue)

	b.worker.Start()
	b.watchdog.Start()
}

func (b *Bridge) startProxies() error {
	if p := b.cfg.DS.ConsoleProxy; p != nil {
		b.consoleProxy = console.NewProxy(p.Bind.Addr(), b.consoleCli, b.logger)
		if err := b.consoleProxy.Start(); err != nil {
			return err
		}
	}
	if p := b.cfg.DS.DeviceLinkProxy; p != nil {
		b.dlProxy = devicelink.NewProxy(p.Bind.Addr(), b.dlCli, b.logger)
		if err := b.dlProxy.Start(); err != nil {
			return err
		}
	}
	return nil
}

// forwardStdin repassa linhas digitadas no terminal do airbridge para o
// stdin do dedicated server.
func (b *Bridge) forwardStdin() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := b.server.Input(scanner.Text() + "\n"); err != nil {
			b.logger.Debug("stdin forwarding finished", "error", err)
			return
		}
	}
}

// askExitAndWait pede a saída limpa via comando exit e escala para término
// de OS quando o processo não sai no prazo.
func (b *Bridge) askExitAndWait(exitCh <-chan int) int {
	if err := b.server.AskExit(); err != nil {
		b.logger.Warn("failed to ask dedicated server to exit", "error", err)
		b.server.Terminate()
		return <-exitCh
	}

	select {
	case code := <-exitCh:
		return code
	case <-time.After(exitGracePeriod):
		b.logger.Warn("dedicated server did not exit in time, terminating")
		b.server.Terminate()
		return <-exitCh
	}
}

// stopComponents desmonta tudo na ordem inversa da partida. Componentes
// nunca criados são ignorados.
func (b *Bridge) stopComponents() {
	if b.consoleProxy != nil {
		b.consoleProxy.Stop()
		b.consoleProxy.Wait()
	}
	if b.dlProxy != nil {
		b.dlProxy.Stop()
		b.dlProxy.Wait()
	}

	if b.announcer != nil {
		b.announcer.Stop()
	}
	if b.api != nil {
		b.api.Stop()
	}

	if b.watchdog != nil {
		b.watchdog.Stop()
		b.watchdog.Wait()
		b.wdState = b.watchdog.State()
	}
	if b.worker != nil {
		b.worker.Stop()
		b.worker.Wait()
	}

	for _, f := range b.facilities {
		f.Stop()
	}
	for _, f := range b.facilities {
		f.Wait()
	}
	for _, s := range b.sinks {
		if err := s.Close(); err != nil {
			b.logger.Warn("failed to close sink", "error", err)
		}
	}

	if b.consoleCli != nil {
		b.consoleCli.Close()
		b.consoleCli.WaitClosed()
	}
	if b.dlCli != nil {
		b.dlCli.Close()
		b.dlCli.WaitClosed()
	}
	if b.nats != nil {
		b.nats.Close()
	}
}

func (b *Bridge) saveState() error {
	b.st.GameLogWatchDog = b.wdState
	return b.st.Save(b.cfg.State.FilePath)
}
