// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package ds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrPortsNotOpen indica que o dedicated server não abriu os listeners
// esperados dentro do timeout.
var ErrPortsNotOpen = errors.New("expected ports of dedicated server are closed")

// WaitNetworkListeners consulta os sockets inet do processo filho até o
// conjunto de portas locais igualar as portas do confs.ini (conexão,
// console e device link). Falha com ErrPortsNotOpen no timeout.
func (s *Server) WaitNetworkListeners(ctx context.Context, timeout, pollPeriod time.Duration) error {
	pid := s.Pid()
	if pid == 0 {
		return fmt.Errorf("dedicated server was never spawned")
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("inspecting dedicated server process: %w", err)
	}

	expected := s.Config.ExpectedPorts()
	deadline := time.Now().Add(timeout)

	for {
		if portsMatch(proc, expected) {
			s.logger.Info("dedicated server listeners are open",
				"ports", portList(expected))
			return nil
		}

		if time.Now().After(deadline) {
			return ErrPortsNotOpen
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollPeriod):
		}
	}
}

func portsMatch(proc *process.Process, expected map[int]struct{}) bool {
	conns, err := proc.Connections()
	if err != nil {
		return false
	}

	actual := make(map[int]struct{}, len(conns))
	for _, c := range conns {
		actual[int(c.Laddr.Port)] = struct{}{}
	}

	if len(actual) != len(expected) {
		return false
	}
	for port := range expected {
		if _, ok := actual[port]; !ok {
			return false
		}
	}
	return true
}

func portList(ports map[int]struct{}) []int {
	out := make([]int, 0, len(ports))
	for p := range ports {
		out = append(out, p)
	}
	return out
}
