// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Nomes default dos arquivos do dedicated server, relativos ao diretório do exe.
const (
	DefaultDSConfigName      = "confs.ini"
	DefaultDSStartScriptName = "server.cmd"
)

// DSServerConfig contém os valores extraídos do confs.ini do dedicated server.
// Só os campos que o airbridge precisa: host, portas e caminho do game log.
type DSServerConfig struct {
	Host           string
	Port           int
	ConsolePort    int
	DeviceLinkPort int
	GameLogPath    string
}

// LoadDSServerConfig lê o confs.ini do dedicated server.
// rootDir é o diretório do executável; o game log relativo é resolvido contra ele.
func LoadDSServerConfig(path, rootDir string) (*DSServerConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading dedicated server config: %w", err)
	}

	cfg := &DSServerConfig{
		Host:        f.Section("Console").Key("IPS").MustString("localhost"),
		Port:        f.Section("NET").Key("localPort").MustInt(0),
		ConsolePort: f.Section("Console").Key("IP").MustInt(0),
		GameLogPath: f.Section("game").Key("eventlog").MustString("eventlog.lst"),
	}
	cfg.DeviceLinkPort = f.Section("DeviceLink").Key("port").MustInt(0)

	if !filepath.IsAbs(cfg.GameLogPath) {
		cfg.GameLogPath = filepath.Join(rootDir, cfg.GameLogPath)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating dedicated server config: %w", err)
	}

	return cfg, nil
}

func (c *DSServerConfig) validate() error {
	if c.Port == 0 {
		return fmt.Errorf("NET.localPort is not set")
	}
	if c.ConsolePort == 0 {
		return fmt.Errorf("server's console is disabled, please configure it to proceed")
	}
	if c.DeviceLinkPort == 0 {
		return fmt.Errorf("server's device link is disabled, please configure it to proceed")
	}
	return nil
}

// ExpectedPorts retorna o conjunto de portas que o dedicated server deve abrir.
func (c *DSServerConfig) ExpectedPorts() map[int]struct{} {
	return map[int]struct{}{
		c.Port:           {},
		c.ConsolePort:    {},
		c.DeviceLinkPort: {},
	}
}
