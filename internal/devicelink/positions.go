// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package devicelink

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcodes do modo radar do device link. Requests de contagem respondem com
// o total de atores; requests de posição carregam o índice do ator.
const (
	OpcodeRefreshRadar = 1001

	OpcodeAircraftsCount   = 1002
	OpcodeAircraftPosition = 1004

	OpcodeGroundUnitsCount   = 1005
	OpcodeGroundUnitPosition = 1006

	OpcodeShipsCount   = 1007
	OpcodeShipPosition = 1008

	OpcodeStationaryObjectsCount   = 1009
	OpcodeStationaryObjectPosition = 1010

	OpcodeHousesCount   = 1011
	OpcodeHousePosition = 1012
)

// ActorPosition é a posição de um ator no mundo da missão. Respostas de
// posição têm valor "indice:id;x;y;z".
type ActorPosition struct {
	Index int     `json:"index"`
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// IsStationaryShip informa se a posição descreve um navio estático.
// Navios estáticos têm id com o prefixo "Static".
func (p ActorPosition) IsStationaryShip() bool {
	return strings.HasPrefix(p.ID, "Static")
}

// parseCount decodifica o valor de uma resposta de contagem.
func parseCount(msg Message) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(msg.Value))
	if err != nil {
		return 0, fmt.Errorf("%w: bad actor count %q", ErrBadDatagram, msg.Value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative actor count %d", ErrBadDatagram, n)
	}
	return n, nil
}

// parsePosition decodifica o valor de uma resposta de posição.
func parsePosition(msg Message) (ActorPosition, error) {
	idxText, rest, ok := strings.Cut(msg.Value, ":")
	if !ok {
		return ActorPosition{}, fmt.Errorf("%w: bad position %q", ErrBadDatagram, msg.Value)
	}

	index, err := strconv.Atoi(idxText)
	if err != nil {
		return ActorPosition{}, fmt.Errorf("%w: bad position index %q", ErrBadDatagram, idxText)
	}

	fields := strings.Split(rest, ";")
	if len(fields) != 4 {
		return ActorPosition{}, fmt.Errorf("%w: bad position fields %q", ErrBadDatagram, rest)
	}

	coords := make([]float64, 3)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ActorPosition{}, fmt.Errorf("%w: bad coordinate %q", ErrBadDatagram, f)
		}
		coords[i] = v
	}

	return ActorPosition{
		Index: index,
		ID:    fields[0],
		X:     coords[0],
		Y:     coords[1],
		Z:     coords[2],
	}, nil
}

// positionRequests monta as mensagens de posição para os índices 0..count-1.
func positionRequests(opcode, count int) []Message {
	msgs := make([]Message, count)
	for i := range msgs {
		msgs[i] = Message{Opcode: opcode, Value: strconv.Itoa(i)}
	}
	return msgs
}
