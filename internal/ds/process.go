// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package ds supervisiona o processo do dedicated server legado: spawn,
// handshake de boot via stdout, fan-out de streams e shutdown ordenado.
package ds

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/nishisan-dev/airbridge/internal/config"
)

// Linhas do handshake de boot. Escrever bootInputLine no stdin faz o
// dedicated server responder bootStopLine seguida de um prompt.
const (
	bootInputLine = "host\n"
	bootStopLine  = "localhost: Server\n"
)

// Options contém os parâmetros para criar um Server.
type Options struct {
	ExePath         string
	ConfigPath      string
	StartScriptPath string
	WineBinPath     string

	// Handlers dos streams do processo. StderrHandler nil faz o pipe de
	// stderr ser fechado logo após o spawn para o filho não bloquear nele.
	StdoutHandler StringHandler
	StderrHandler StringHandler
	PromptHandler StringHandler

	Logger *slog.Logger
}

// Server supervisiona uma única instância do processo do dedicated server.
// Start só pode ser chamado uma vez por instância.
type Server struct {
	exePath         string
	configPath      string
	startScriptPath string
	wineBinPath     string
	rootDir         string

	// Config é o confs.ini parseado do dedicated server.
	Config *config.DSServerConfig

	stdoutHandler StringHandler
	stderrHandler StringHandler
	promptHandler StringHandler

	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdoutPipe io.ReadCloser

	stdinMu  sync.Mutex
	streamWG sync.WaitGroup
	started  bool

	logger *slog.Logger
}

// New valida os caminhos do dedicated server, carrega seu confs.ini e
// retorna o supervisor. Não spawna o processo.
func New(opts Options) (*Server, error) {
	exePath, err := filepath.Abs(opts.ExePath)
	if err != nil {
		return nil, fmt.Errorf("resolving exe path: %w", err)
	}
	if _, err := os.Stat(exePath); err != nil {
		return nil, fmt.Errorf("dedicated server's executable does not exist: %w", err)
	}

	rootDir := filepath.Dir(exePath)
	configPath, err := normalizePath(rootDir, opts.ConfigPath, config.DefaultDSConfigName)
	if err != nil {
		return nil, fmt.Errorf("dedicated server's config: %w", err)
	}
	startScriptPath, err := normalizePath(rootDir, opts.StartScriptPath, config.DefaultDSStartScriptName)
	if err != nil {
		return nil, fmt.Errorf("dedicated server's start script: %w", err)
	}

	dsCfg, err := config.LoadDSServerConfig(configPath, rootDir)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		exePath:         exePath,
		configPath:      configPath,
		startScriptPath: startScriptPath,
		wineBinPath:     opts.WineBinPath,
		rootDir:         rootDir,
		Config:          dsCfg,
		stdoutHandler:   opts.StdoutHandler,
		stderrHandler:   opts.StderrHandler,
		promptHandler:   opts.PromptHandler,
		logger:          logger.With("component", "ds"),
	}, nil
}

// normalizePath resolve um caminho que pode ser vazio (usa default no
// rootDir), relativo simples (resolvido contra rootDir) ou absoluto.
func normalizePath(rootDir, initial, defaultName string) (string, error) {
	var path string
	switch {
	case initial == "":
		path = filepath.Join(rootDir, defaultName)
	case filepath.IsAbs(initial):
		path = initial
	case filepath.Base(initial) != initial:
		abs, err := filepath.Abs(initial)
		if err != nil {
			return "", err
		}
		path = abs
	default:
		path = filepath.Join(rootDir, initial)
	}

	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// RootDir retorna o diretório do executável do dedicated server.
func (s *Server) RootDir() string {
	return s.rootDir
}

// GameLogPath retorna o caminho absoluto do game log do dedicated server.
func (s *Server) GameLogPath() string {
	return s.Config.GameLogPath
}

// Pid retorna o pid do processo, ou 0 se ainda não spawnou.
func (s *Server) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Start spawna o processo e executa o handshake de boot: escreve "host\n"
// no stdin e consome o stdout até "localhost: Server\n" mais o prompt
// seguinte. Só depois disso os handlers de stream passam a rodar em
// goroutines próprias. Em caso de falha o filho é morto e aguardado antes
// de propagar o erro.
func (s *Server) Start() error {
	if s.started {
		return fmt.Errorf("dedicated server was already started")
	}
	s.started = true

	if err := s.spawn(); err != nil {
		return err
	}

	if err := s.boot(); err != nil {
		s.logger.Error("boot failed, killing dedicated server", "error", err)
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
		return err
	}

	s.logger.Info("dedicated server started", "pid", s.Pid())
	return nil
}

func (s *Server) spawn() error {
	var args []string
	if runtime.GOOS != "windows" {
		args = append(args, s.wineBinPath)
	}
	args = append(args,
		s.exePath,
		"-conf", s.configPath,
		"-cmd", s.startScriptPath,
	)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = s.rootDir
	cmd.SysProcAttr = sysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning dedicated server: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin

	// Stderr: consome se há handler, senão fecha o pipe imediatamente
	// para o filho não bloquear escrevendo nele.
	if s.stderrHandler != nil {
		s.streamWG.Add(1)
		go func() {
			defer s.streamWG.Done()
			ReadUntilEnd(stderr, "STDERR", s.stderrHandler, nil, s.logger)
		}()
	} else {
		stderr.Close()
	}

	s.stdoutPipe = stdout
	return nil
}

func (s *Server) boot() error {
	if err := s.Input(bootInputLine); err != nil {
		return fmt.Errorf("writing boot input: %w", err)
	}

	err := ReadUntilLine(
		s.stdoutPipe, "STDOUT",
		bootInputLine, bootStopLine,
		s.stdoutHandler, s.promptHandler,
		s.logger,
	)
	if err != nil {
		return err
	}

	// Handlers de stream só começam depois do handshake completar.
	if s.stdoutHandler != nil || s.promptHandler != nil {
		s.streamWG.Add(1)
		go func() {
			defer s.streamWG.Done()
			ReadUntilEnd(s.stdoutPipe, "STDOUT", s.stdoutHandler, s.promptHandler, s.logger)
		}()
	} else {
		s.stdoutPipe.Close()
	}

	return nil
}

// Input escreve s no stdin do dedicated server.
func (s *Server) Input(line string) error {
	s.stdinMu.Lock()
	defer s.stdinMu.Unlock()

	if _, err := io.WriteString(s.stdin, line); err != nil {
		return fmt.Errorf("writing to dedicated server's stdin: %w", err)
	}
	return nil
}

// AskExit pede ao dedicated server para encerrar pelo seu próprio comando.
func (s *Server) AskExit() error {
	return s.Input("exit\n")
}

// Terminate envia término a nível de OS se o processo ainda roda.
func (s *Server) Terminate() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if s.cmd.ProcessState != nil {
		return
	}
	if err := terminateProcess(s.cmd.Process); err != nil {
		s.logger.Warn("failed to terminate dedicated server", "error", err)
	}
}

// WaitFinished aguarda todos os workers de stream terminarem e o processo
// sair. Retorna o exit code do dedicated server.
func (s *Server) WaitFinished() (int, error) {
	s.streamWG.Wait()

	if s.cmd == nil {
		return 0, fmt.Errorf("dedicated server was never spawned")
	}

	err := s.cmd.Wait()
	code := s.cmd.ProcessState.ExitCode()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return code, fmt.Errorf("waiting for dedicated server: %w", err)
		}
	}
	return code, nil
}
