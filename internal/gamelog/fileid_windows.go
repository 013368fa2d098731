// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build windows

package gamelog

import (
	"fmt"
	"os"
	"syscall"
)

// fileID identifica o arquivo pelo instante de criação. No windows não há
// inode; o instante de criação muda quando o event log é recriado.
func fileID(path string) (uint64, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	attrs, ok := fi.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return 0, fmt.Errorf("unexpected stat type for %s", path)
	}
	return uint64(attrs.CreationTime.Nanoseconds()), nil
}
