// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build !windows

package ds

import (
	"os"
	"syscall"
)

// sysProcAttr cria o filho em sessão própria para que sinais enviados ao
// airbridge não cheguem ao dedicated server.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func terminateProcess(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
