// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config representa a configuração completa do airbridge.
type Config struct {
	WineBinPath   string              `yaml:"wine_bin_path"`
	State         StateInfo           `yaml:"state"`
	DS            DSInfo              `yaml:"ds"`
	NATS          *NATSInfo           `yaml:"nats"`
	S3            *S3Info             `yaml:"s3"`
	API           APIInfo             `yaml:"api"`
	Streaming     StreamingInfo       `yaml:"streaming"`
	Announcements []AnnouncementEntry `yaml:"announcements"`
	Logging       LoggingInfo         `yaml:"logging"`
}

// StateInfo contém o caminho do arquivo de estado persistente.
type StateInfo struct {
	FilePath string `yaml:"file_path"`
}

// DSInfo contém os caminhos e proxies do dedicated server.
type DSInfo struct {
	ExePath         string     `yaml:"exe_path"`
	ConfigPath      string     `yaml:"config_path"`
	StartScriptPath string     `yaml:"start_script_path"`
	ConsoleProxy    *ProxyInfo `yaml:"console_proxy"`
	DeviceLinkProxy *ProxyInfo `yaml:"device_link_proxy"`
}

// ProxyInfo contém o bind de um proxy (console TCP ou device link UDP).
type ProxyInfo struct {
	Bind BindInfo `yaml:"bind"`
}

// BindInfo contém endereço e porta de escuta.
type BindInfo struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Addr retorna o endereço de bind no formato host:port.
// Address vazio vira "localhost", como no comportamento legado.
func (b BindInfo) Addr() string {
	address := b.Address
	if address == "" {
		address = "localhost"
	}
	return fmt.Sprintf("%s:%d", address, b.Port)
}

// NATSInfo contém os servidores do message bus.
type NATSInfo struct {
	Servers []string `yaml:"servers"`
	Name    string   `yaml:"name"`
}

// S3Info contém as credenciais do object storage usado pelos sinks s3.
// Endpoint vazio usa o default da AWS; preenchido permite storages
// compatíveis (minio e afins).
type S3Info struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// APIInfo contém as APIs externas opcionais.
type APIInfo struct {
	NATS *NATSAPIInfo `yaml:"nats"`
}

// NATSAPIInfo contém o subject de request/reply da API NATS.
type NATSAPIInfo struct {
	Subject string `yaml:"subject"`
}

// StreamingInfo contém a configuração de subscribers por facility.
type StreamingInfo struct {
	Chat             FacilityInfo      `yaml:"chat"`
	Events           FacilityInfo      `yaml:"events"`
	NotParsedStrings FacilityInfo      `yaml:"not_parsed_strings"`
	Radar            RadarFacilityInfo `yaml:"radar"`
}

// FacilityInfo mapeia shortcut de sink (file, nats, s3) para sua configuração.
type FacilityInfo struct {
	Subscribers map[string]SubscriberInfo `yaml:"subscribers"`
}

// RadarFacilityInfo estende FacilityInfo com o timeout das consultas de radar.
type RadarFacilityInfo struct {
	RequestTimeout time.Duration             `yaml:"request_timeout"`
	Subscribers    map[string]SubscriberInfo `yaml:"subscribers"`
}

// SubscriberInfo contém os args do sink e as opções repassadas ao subscribe.
type SubscriberInfo struct {
	Args                map[string]any      `yaml:"args"`
	SubscriptionOptions SubscriptionOptions `yaml:"subscription_options"`
}

// SubscriptionOptions são repassadas verbatim para facility.Subscribe.
// refresh_period só é reconhecido pela facility de radar.
type SubscriptionOptions struct {
	RefreshPeriod time.Duration `yaml:"refresh_period"`
}

// AnnouncementEntry representa uma mensagem de chat agendada via cron expression.
type AnnouncementEntry struct {
	Schedule string `yaml:"schedule"`
	Message  string `yaml:"message"`
}

// LoggingInfo contém configurações de logging.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load lê e valida o arquivo YAML de configuração do airbridge.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.WineBinPath == "" {
		c.WineBinPath = "wine"
	}
	if c.State.FilePath == "" {
		c.State.FilePath = "airbridge.state"
	}
	if c.DS.ExePath == "" {
		return fmt.Errorf("ds.exe_path is required")
	}
	if c.DS.ConsoleProxy != nil && c.DS.ConsoleProxy.Bind.Port == 0 {
		return fmt.Errorf("ds.console_proxy.bind.port is required")
	}
	if c.DS.DeviceLinkProxy != nil && c.DS.DeviceLinkProxy.Bind.Port == 0 {
		return fmt.Errorf("ds.device_link_proxy.bind.port is required")
	}
	if c.NATS != nil {
		if len(c.NATS.Servers) == 0 {
			return fmt.Errorf("nats.servers must have at least one entry")
		}
		if c.NATS.Name == "" {
			c.NATS.Name = "airbridge"
		}
	}
	if c.S3 != nil && c.S3.Region == "" {
		return fmt.Errorf("s3.region is required")
	}
	if c.API.NATS != nil {
		if c.API.NATS.Subject == "" {
			return fmt.Errorf("api.nats.subject is required")
		}
		if c.NATS == nil {
			return fmt.Errorf("api.nats requires the nats section")
		}
	}
	if c.Streaming.Radar.RequestTimeout <= 0 {
		c.Streaming.Radar.RequestTimeout = 20 * time.Second
	}
	for i, a := range c.Announcements {
		if a.Schedule == "" {
			return fmt.Errorf("announcements[%d].schedule is required", i)
		}
		if a.Message == "" {
			return fmt.Errorf("announcements[%d].message is required", i)
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DecodeArgs converte o mapa de args de um subscriber para a struct tipada
// do sink, reaproveitando as tags YAML (round-trip via yaml.Marshal).
func DecodeArgs(args map[string]any, out any) error {
	data, err := yaml.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding subscriber args: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding subscriber args: %w", err)
	}
	return nil
}

// ParseByteSize converte strings human-readable como "256mb", "1gb" para bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordenado do sufixo mais longo para o mais curto
	// para evitar que "mb" matche como "b"
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	// Tenta interpretar como número puro (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
