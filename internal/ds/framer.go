// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package ds

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
)

// ErrStreamClosed indica que o stream do dedicated server fechou antes do
// handshake de boot completar.
var ErrStreamClosed = errors.New("stream was closed unexpectedly")

// StringHandler recebe um token emitido pelo framer (linha ou prompt).
type StringHandler func(s string)

// framer acumula bytes e recorta tokens do stdout/stderr do dedicated server.
// Dois tipos de token: linha terminada em '\n' (inclusive) e prompt, que é
// uma sequência de dígitos seguida de '>' (ex: "1>").
type framer struct {
	acc []byte
}

// feed processa um byte. Retorna o token emitido (se houver) e se ele é
// um prompt. Um '>' só fecha prompt quando o acumulado decodifica como
// inteiro não-negativo; caso contrário é byte comum.
func (f *framer) feed(c byte) (token string, isPrompt, ok bool) {
	isEOL := c == '\n'
	isPrompt = !isEOL && c == '>' && f.accIsNumber()
	f.acc = append(f.acc, c)

	if !isEOL && !isPrompt {
		return "", false, false
	}

	token = string(f.acc)
	f.acc = f.acc[:0]
	return token, isPrompt, true
}

// flush emite o resíduo acumulado como linha (sem '\n') no fechamento do stream.
func (f *framer) flush() (token string, ok bool) {
	if len(f.acc) == 0 {
		return "", false
	}
	token = string(f.acc)
	f.acc = f.acc[:0]
	return token, true
}

func (f *framer) accIsNumber() bool {
	if len(f.acc) == 0 {
		return false
	}
	n, err := strconv.Atoi(string(f.acc))
	return err == nil && n >= 0
}

func safeHandle(logger *slog.Logger, handler StringHandler, s string) {
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("failed to handle dedicated server's string",
				"string", s, "panic", r)
		}
	}()
	handler(s)
}

// ReadUntilLine roda o framer sobre o stream até encontrar stopLine.
// Quando stopLine é emitida, ecoa inputLine e stopLine pelo handler de output
// e continua até o próximo prompt, quando retorna. Usado no handshake de boot.
// EOF antes de stopLine falha com ErrStreamClosed.
func ReadUntilLine(
	r io.Reader,
	streamName, inputLine, stopLine string,
	output, prompt StringHandler,
	logger *slog.Logger,
) error {
	br := bufio.NewReader(r)
	var f framer
	stopLineFound := false

	for {
		c, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("dedicated server's %s %w", streamName, ErrStreamClosed)
		}

		token, isPrompt, ok := f.feed(c)
		if !ok {
			continue
		}

		handler := output
		if isPrompt && prompt != nil {
			handler = prompt
		}

		if isPrompt && stopLineFound {
			safeHandle(logger, handler, token)
			return nil
		}

		if token == stopLine {
			stopLineFound = true
			safeHandle(logger, output, inputLine)
			safeHandle(logger, output, stopLine)
			continue
		}

		safeHandle(logger, handler, token)
	}
}

// ReadUntilEnd roda o framer até EOF, despachando linhas para output e
// prompts para prompt (ou output quando prompt é nil). Resíduo sem '\n'
// no fechamento é emitido como linha.
func ReadUntilEnd(
	r io.Reader,
	streamName string,
	output, prompt StringHandler,
	logger *slog.Logger,
) {
	br := bufio.NewReader(r)
	var f framer

	for {
		c, err := br.ReadByte()
		if err != nil {
			logger.Debug("dedicated server's stream was closed", "stream", streamName)
			break
		}

		token, isPrompt, ok := f.feed(c)
		if !ok {
			continue
		}

		handler := output
		if isPrompt && prompt != nil {
			handler = prompt
		}
		safeHandle(logger, handler, token)
	}

	if token, ok := f.flush(); ok {
		safeHandle(logger, output, token)
	}
}
