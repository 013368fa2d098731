// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gamelog

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotParsed indica que a linha não casa com nenhum evento conhecido.
var ErrNotParsed = errors.New("game log line was not parsed")

// Event é um evento decodificado do event log do dedicated server.
type Event struct {
	Kind string         `json:"kind"`
	Time string         `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// Parser decodifica linhas do event log. Linhas desconhecidas retornam
// ErrNotParsed; linhas de controle sem evento retornam (nil, nil).
type Parser interface {
	Parse(line string) (*Event, error)
}

// Linhas do event log têm o formato "[HH:MM:SS] corpo" ou, na primeira
// linha de cada missão, "[Mon DD, YYYY HH:MM:SS] corpo".
var (
	timePrefixRe = regexp.MustCompile(`^\[(\d{1,2}:\d{2}:\d{2}(?: [AP]M)?)\] (.+)$`)
	datePrefixRe = regexp.MustCompile(`^\[(\w{3} \d{1,2}, \d{4} \d{1,2}:\d{2}:\d{2}(?: [AP]M)?)\] (.+)$`)

	missionPlayingRe = regexp.MustCompile(`^Mission: (.+\.mis) is Playing$`)
	missionBeginRe   = regexp.MustCompile(`^Mission BEGIN$`)
	missionEndRe     = regexp.MustCompile(`^Mission END$`)
	missionWonRe     = regexp.MustCompile(`^Mission: (RED|BLUE) WON$`)

	targetResultRe = regexp.MustCompile(`^Target (\d+) (Complete|Failed)$`)

	tookOffRe   = regexp.MustCompile(`^(.+) in flight at (\d+\.\d+) (\d+\.\d+)$`)
	landedRe    = regexp.MustCompile(`^(.+) landed at (\d+\.\d+) (\d+\.\d+)$`)
	crashedRe   = regexp.MustCompile(`^(.+) crashed at (\d+\.\d+) (\d+\.\d+)$`)
	shotDownRe  = regexp.MustCompile(`^(.+) shot down by (.+) at (\d+\.\d+) (\d+\.\d+)$`)
	destroyedRe = regexp.MustCompile(`^(.+) destroyed by (.+) at (\d+\.\d+) (\d+\.\d+)$`)
)

// Nomes dos eventos reconhecidos pelo parser.
const (
	EventMissionPlaying = "MissionIsPlaying"
	EventMissionBegin   = "MissionHasBegun"
	EventMissionEnd     = "MissionHasEnded"
	EventMissionWon     = "MissionWasWon"
	EventTargetResult   = "TargetStateWasChanged"
	EventActorTookOff   = "ActorHasTookOff"
	EventActorLanded    = "ActorHasLanded"
	EventActorCrashed   = "ActorHasCrashed"
	EventActorShotDown  = "ActorWasShotDown"
	EventActorDestroyed = "ActorWasDestroyed"
)

// DefaultParser reconhece os eventos de missão e de atores mais comuns do
// event log. O conjunto é extensível via Parser.
type DefaultParser struct{}

// NewDefaultParser cria o parser default.
func NewDefaultParser() *DefaultParser {
	return &DefaultParser{}
}

// Parse decodifica uma linha do event log.
func (p *DefaultParser) Parse(line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	eventTime, body, ok := splitTimePrefix(line)
	if !ok {
		return nil, ErrNotParsed
	}

	if m := missionPlayingRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventMissionPlaying, eventTime, map[string]any{"mission": m[1]}), nil
	}
	if missionBeginRe.MatchString(body) {
		return newEvent(EventMissionBegin, eventTime, nil), nil
	}
	if missionEndRe.MatchString(body) {
		return newEvent(EventMissionEnd, eventTime, nil), nil
	}
	if m := missionWonRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventMissionWon, eventTime, map[string]any{
			"belligerent": strings.ToLower(m[1]),
		}), nil
	}
	if m := targetResultRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventTargetResult, eventTime, map[string]any{
			"target":   m[1],
			"complete": m[2] == "Complete",
		}), nil
	}
	if m := shotDownRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventActorShotDown, eventTime, map[string]any{
			"victim": m[1], "aggressor": m[2], "x": m[3], "y": m[4],
		}), nil
	}
	if m := destroyedRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventActorDestroyed, eventTime, map[string]any{
			"victim": m[1], "aggressor": m[2], "x": m[3], "y": m[4],
		}), nil
	}
	if m := tookOffRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventActorTookOff, eventTime, map[string]any{
			"actor": m[1], "x": m[2], "y": m[3],
		}), nil
	}
	if m := landedRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventActorLanded, eventTime, map[string]any{
			"actor": m[1], "x": m[2], "y": m[3],
		}), nil
	}
	if m := crashedRe.FindStringSubmatch(body); m != nil {
		return newEvent(EventActorCrashed, eventTime, map[string]any{
			"actor": m[1], "x": m[2], "y": m[3],
		}), nil
	}

	return nil, ErrNotParsed
}

func splitTimePrefix(line string) (string, string, bool) {
	if m := timePrefixRe.FindStringSubmatch(line); m != nil {
		return m[1], m[2], true
	}
	if m := datePrefixRe.FindStringSubmatch(line); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

func newEvent(kind, eventTime string, data map[string]any) *Event {
	return &Event{Kind: kind, Time: eventTime, Data: data}
}
