// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package devicelink fala o protocolo device link do dedicated server:
// datagramas UDP de texto carregando mensagens compostas. Um datagrama é
// "R/" (request) ou "A/" (answer) seguido de mensagens separadas por '/';
// cada mensagem é "opcode" ou "opcode\valor", com '/' e '$' escapados
// por '$'.
package devicelink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Erros de framing do device link.
var (
	ErrEmptyDatagram = errors.New("empty device link datagram")
	ErrBadDatagram   = errors.New("malformed device link datagram")
)

const (
	requestPrefix = "R/"
	answerPrefix  = "A/"
)

// Message é uma unidade do protocolo: opcode e valor opcional.
type Message struct {
	Opcode int
	Value  string
}

// HasValue informa se a mensagem carrega valor.
func (m Message) HasValue() bool {
	return m.Value != ""
}

func (m Message) String() string {
	if m.Value == "" {
		return strconv.Itoa(m.Opcode)
	}
	return fmt.Sprintf("%d\\%s", m.Opcode, m.Value)
}

// DecomposeRequest decodifica um datagrama de request vindo de um peer.
func DecomposeRequest(data []byte) ([]Message, error) {
	return decompose(data, requestPrefix)
}

// DecomposeAnswer decodifica um datagrama de answer vindo do dedicated server.
func DecomposeAnswer(data []byte) ([]Message, error) {
	return decompose(data, answerPrefix)
}

// ComposeRequest monta o datagrama de request para as mensagens dadas.
func ComposeRequest(messages []Message) []byte {
	return compose(messages, requestPrefix)
}

// ComposeAnswer monta o datagrama de answer para as mensagens dadas.
func ComposeAnswer(messages []Message) []byte {
	return compose(messages, answerPrefix)
}

func decompose(data []byte, prefix string) ([]Message, error) {
	text := string(data)
	if text == "" {
		return nil, ErrEmptyDatagram
	}
	if !strings.HasPrefix(text, prefix) {
		return nil, fmt.Errorf("%w: missing %q prefix in %q", ErrBadDatagram, prefix, text)
	}

	body := strings.TrimSuffix(text[len(prefix):], "\n")
	tokens := splitUnescaped(body, '/')

	messages := make([]Message, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		msg, err := parseMessage(token)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages in %q", ErrBadDatagram, text)
	}
	return messages, nil
}

func compose(messages []Message, prefix string) []byte {
	var sb strings.Builder
	sb.WriteString(prefix)
	for i, msg := range messages {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(strconv.Itoa(msg.Opcode))
		if msg.Value != "" {
			sb.WriteByte('\\')
			sb.WriteString(escape(msg.Value))
		}
	}
	return []byte(sb.String())
}

// parseMessage decodifica um token "opcode" ou "opcode\valor" já isolado.
func parseMessage(token string) (Message, error) {
	opText, value, hasValue := strings.Cut(token, "\\")

	opcode, err := strconv.Atoi(opText)
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad opcode in %q", ErrBadDatagram, token)
	}

	msg := Message{Opcode: opcode}
	if hasValue {
		msg.Value = unescape(value)
	}
	return msg, nil
}

// splitUnescaped separa s por sep ignorando ocorrências precedidas do
// caractere de escape '$'.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte('$')
			cur.WriteByte(c)
			escaped = false
		case c == '$':
			escaped = true
		case c == sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped {
		cur.WriteByte('$')
	}
	parts = append(parts, cur.String())
	return parts
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "$", "$$")
	return strings.ReplaceAll(s, "/", "$/")
}

func unescape(s string) string {
	var sb strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			sb.WriteByte(c)
			escaped = false
			continue
		}
		if c == '$' {
			escaped = true
			continue
		}
		sb.WriteByte(c)
	}
	if escaped {
		sb.WriteByte('$')
	}
	return sb.String()
}
