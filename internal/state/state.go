// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package state persiste o estado do airbridge entre execuções.
// O arquivo é YAML; hoje a única chave reconhecida é game_log_watch_dog.
package state

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nishisan-dev/airbridge/internal/gamelog"
)

// State representa o conteúdo do arquivo de estado persistente.
type State struct {
	GameLogWatchDog gamelog.WatchdogState `yaml:"game_log_watch_dog"`
}

// Load lê o estado do arquivo. Arquivo inexistente resulta em estado vazio.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	return &s, nil
}

// Save reescreve o arquivo de estado. Chamado no shutdown limpo.
func (s *State) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}
