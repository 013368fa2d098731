// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package console

import (
	"regexp"
	"strconv"
	"strings"
)

// ChatMessage é uma mensagem de chat recebida pelo console.
type ChatMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// ConnectionEventKind distingue conexão e desconexão de um jogador.
type ConnectionEventKind string

const (
	HumanConnected    ConnectionEventKind = "HumanHasConnected"
	HumanDisconnected ConnectionEventKind = "HumanHasDisconnected"
)

// HumanConnectionEvent é emitido pelo console quando um jogador entra ou sai.
// O console é a fonte autoritativa destes eventos; as variantes vindas do
// game log são suprimidas pela facility de eventos.
type HumanConnectionEvent struct {
	Kind     ConnectionEventKind `json:"kind"`
	Callsign string              `json:"callsign"`
	Channel  int                 `json:"channel"`
}

var (
	chatRe = regexp.MustCompile(`^Chat: (.+?): \t(.*)$`)

	connectedRe = regexp.MustCompile(
		`^socket channel '(\d+)', ip [\d.]+:\d+, (.+), is complete created$`)
	disconnectedRe = regexp.MustCompile(
		`^socketConnection with (.+) on channel (\d+) lost\.`)
)

// parseChatLine reconhece linhas de chat do console.
func parseChatLine(line string) (ChatMessage, bool) {
	m := chatRe.FindStringSubmatch(line)
	if m == nil {
		return ChatMessage{}, false
	}
	return ChatMessage{From: m[1], Body: m[2]}, true
}

// parseConnectionLine reconhece as linhas de criação e perda de socket
// que o console emite quando um jogador conecta ou desconecta.
func parseConnectionLine(line string) (HumanConnectionEvent, bool) {
	if m := connectedRe.FindStringSubmatch(line); m != nil {
		channel, _ := strconv.Atoi(m[1])
		return HumanConnectionEvent{
			Kind:     HumanConnected,
			Callsign: strings.TrimSpace(m[2]),
			Channel:  channel,
		}, true
	}

	if m := disconnectedRe.FindStringSubmatch(line); m != nil {
		channel, _ := strconv.Atoi(m[2])
		return HumanConnectionEvent{
			Kind:     HumanDisconnected,
			Callsign: strings.TrimSpace(m[1]),
			Channel:  channel,
		}, true
	}

	return HumanConnectionEvent{}, false
}
