// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package console

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultRequestTimeout limita requests cujo contexto não tem deadline.
const defaultRequestTimeout = 20 * time.Second

// Belligerent é o lado de um jogador: espectador, vermelho ou azul.
type Belligerent int

const (
	BelligerentNone Belligerent = 0
	BelligerentRed  Belligerent = 1
	BelligerentBlue Belligerent = 2
)

// BelligerentFromValue valida um valor numérico de beligerante.
func BelligerentFromValue(v int) (Belligerent, error) {
	switch v {
	case 0, 1, 2:
		return Belligerent(v), nil
	default:
		return BelligerentNone, fmt.Errorf("%w: unknown belligerent %d", ErrBadInput, v)
	}
}

func (b Belligerent) String() string {
	switch b {
	case BelligerentRed:
		return "red"
	case BelligerentBlue:
		return "blue"
	default:
		return "none"
	}
}

// ServerInfo é a resposta de "server".
type ServerInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Human é uma linha da tabela de "user".
type Human struct {
	Callsign    string      `json:"callsign"`
	Ping        int         `json:"ping"`
	Score       int         `json:"score"`
	Belligerent Belligerent `json:"belligerent"`
	Aircraft    string      `json:"aircraft,omitempty"`
	Position    string      `json:"position,omitempty"`
}

// HumanStatistics é o bloco por jogador de "user STAT".
type HumanStatistics struct {
	Callsign string         `json:"callsign"`
	Score    int            `json:"score"`
	Stats    map[string]int `json:"stats"`
}

// MissionStatus descreve o estado de missão do dedicated server.
type MissionStatus string

const (
	MissionNotLoaded MissionStatus = "not_loaded"
	MissionLoaded    MissionStatus = "loaded"
	MissionPlaying   MissionStatus = "playing"
)

// MissionInfo é a resposta de "mission".
type MissionInfo struct {
	Status   MissionStatus `json:"status"`
	FilePath string        `json:"file_path,omitempty"`
}

var (
	missionPlayingRe = regexp.MustCompile(`^Mission: (.+) is Playing$`)
	missionLoadedRe  = regexp.MustCompile(`^Mission: (.+) is Loaded$`)

	userLineRe = regexp.MustCompile(`^\s*\d+\s+(.+)$`)
	statNameRe = regexp.MustCompile(`^-{2,}\s*(.+?)\s*-{2,}$`)
)

// GetServerInfo executa "server" e decodifica as linhas "Chave: valor".
func (c *Client) GetServerInfo(ctx context.Context) (ServerInfo, error) {
	lines, err := c.requestWithTimeout(ctx, "server", defaultRequestTimeout)
	if err != nil {
		return ServerInfo{}, err
	}

	var info ServerInfo
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Type":
			info.Type = value
		case "Name":
			info.Name = value
		case "Description":
			info.Description = value
		}
	}
	return info, nil
}

// GetHumansList executa "user" e decodifica a tabela de jogadores conectados.
func (c *Client) GetHumansList(ctx context.Context) ([]Human, error) {
	lines, err := c.requestWithTimeout(ctx, "user", defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	return parseHumansList(lines), nil
}

// GetHumansCount conta os jogadores conectados.
func (c *Client) GetHumansCount(ctx context.Context) (int, error) {
	humans, err := c.GetHumansList(ctx)
	if err != nil {
		return 0, err
	}
	return len(humans), nil
}

// parseHumansList decodifica a tabela de "user". A primeira linha é o
// cabeçalho; cada linha seguinte começa com o número do canal.
func parseHumansList(lines []string) []Human {
	humans := make([]Human, 0, len(lines))
	for _, line := range lines {
		m := userLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fields := strings.Fields(m[1])
		if len(fields) < 4 {
			continue
		}

		ping, err := strconv.Atoi(fields[1])
		if err != nil {
			// Cabeçalho da tabela.
			continue
		}
		score, _ := strconv.Atoi(fields[2])
		army := belligerentFromName(fields[3])

		h := Human{
			Callsign:    fields[0],
			Ping:        ping,
			Score:       score,
			Belligerent: army,
		}
		if len(fields) >= 5 {
			h.Aircraft = fields[4]
		}
		if len(fields) >= 6 {
			h.Position = strings.Join(fields[5:], " ")
		}
		humans = append(humans, h)
	}
	return humans
}

func belligerentFromName(name string) Belligerent {
	switch strings.ToLower(name) {
	case "(1)red":
		return BelligerentRed
	case "(2)blue":
		return BelligerentBlue
	default:
		return BelligerentNone
	}
}

// GetHumansStatistics executa "user STAT" e decodifica os blocos por jogador.
// Cada bloco abre com uma linha "--------callsign--------" seguida de pares
// "Nome: valor".
func (c *Client) GetHumansStatistics(ctx context.Context) ([]HumanStatistics, error) {
	lines, err := c.requestWithTimeout(ctx, "user STAT", defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	var out []HumanStatistics
	var current *HumanStatistics
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := statNameRe.FindStringSubmatch(line); m != nil {
			out = append(out, HumanStatistics{
				Callsign: m[1],
				Stats:    make(map[string]int),
			})
			current = &out[len(out)-1]
			continue
		}
		if current == nil {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "Score" {
			current.Score = n
		}
		current.Stats[key] = n
	}
	return out, nil
}

// KickByCallsign expulsa um jogador pelo callsign.
func (c *Client) KickByCallsign(ctx context.Context, callsign string) error {
	if callsign == "" {
		return fmt.Errorf("%w: empty callsign", ErrBadInput)
	}
	_, err := c.requestWithTimeout(ctx, "kick "+callsign, defaultRequestTimeout)
	return err
}

// KickByNumber expulsa um jogador pela posição na tabela de "user".
func (c *Client) KickByNumber(ctx context.Context, number int) error {
	if number < 1 {
		return fmt.Errorf("%w: kick number must be positive", ErrBadInput)
	}
	_, err := c.requestWithTimeout(ctx, fmt.Sprintf("kick# %d", number), defaultRequestTimeout)
	return err
}

// KickAll expulsa todos os jogadores, do último canal para o primeiro.
func (c *Client) KickAll(ctx context.Context, maxHumans int) error {
	for i := maxHumans; i > 0; i-- {
		if err := c.KickByNumber(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// ChatToAll envia uma mensagem de chat a todos os jogadores.
func (c *Client) ChatToAll(ctx context.Context, message string) error {
	return c.chat(ctx, message, "ALL")
}

// ChatToHuman envia uma mensagem de chat a um jogador.
func (c *Client) ChatToHuman(ctx context.Context, message, callsign string) error {
	if callsign == "" {
		return fmt.Errorf("%w: empty callsign", ErrBadInput)
	}
	return c.chat(ctx, message, "TO "+callsign)
}

// ChatToBelligerent envia uma mensagem de chat a um exército.
func (c *Client) ChatToBelligerent(ctx context.Context, message string, army Belligerent) error {
	return c.chat(ctx, message, fmt.Sprintf("ARMY %d", int(army)))
}

func (c *Client) chat(ctx context.Context, message, target string) error {
	if message == "" {
		return fmt.Errorf("%w: empty chat message", ErrBadInput)
	}
	// O console interpreta espaços no corpo; a mensagem vai entre aspas.
	command := fmt.Sprintf("chat %s %s", strconv.Quote(message), target)
	_, err := c.requestWithTimeout(ctx, command, defaultRequestTimeout)
	return err
}

// GetMissionInfo executa "mission" e decodifica o estado corrente.
func (c *Client) GetMissionInfo(ctx context.Context) (MissionInfo, error) {
	lines, err := c.requestWithTimeout(ctx, "mission", defaultRequestTimeout)
	if err != nil {
		return MissionInfo{}, err
	}

	for _, line := range lines {
		if m := missionPlayingRe.FindStringSubmatch(line); m != nil {
			return MissionInfo{Status: MissionPlaying, FilePath: m[1]}, nil
		}
		if m := missionLoadedRe.FindStringSubmatch(line); m != nil {
			return MissionInfo{Status: MissionLoaded, FilePath: m[1]}, nil
		}
	}
	return MissionInfo{Status: MissionNotLoaded}, nil
}

// LoadMission carrega a missão em filePath (relativo a Missions/).
func (c *Client) LoadMission(ctx context.Context, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("%w: empty mission path", ErrBadInput)
	}
	_, err := c.requestWithTimeout(ctx, "mission LOAD "+filePath, defaultRequestTimeout)
	return err
}

// BeginMission inicia a missão carregada.
func (c *Client) BeginMission(ctx context.Context) error {
	_, err := c.requestWithTimeout(ctx, "mission BEGIN", defaultRequestTimeout)
	return err
}

// EndMission encerra a missão em andamento.
func (c *Client) EndMission(ctx context.Context) error {
	_, err := c.requestWithTimeout(ctx, "mission END", defaultRequestTimeout)
	return err
}

// UnloadMission descarrega a missão corrente.
func (c *Client) UnloadMission(ctx context.Context) error {
	_, err := c.requestWithTimeout(ctx, "mission DESTROY", defaultRequestTimeout)
	return err
}
