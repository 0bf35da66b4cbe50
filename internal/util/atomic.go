// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// privateDirPerm is used for a missing parent directory. The config
// directory may hold an API key.
const privateDirPerm = 0700

// AtomicWriteFile replaces path with data. Readers see either the previous
// file or the complete new one, never a prefix.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, privateDirPerm); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// The temp file shares the directory so the rename cannot cross devices.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := writeAndClose(tmp, data, perm); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}

// writeAndClose writes, fsyncs and closes f, then applies perm. f is closed
// on every path.
func writeAndClose(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	// Closed before the rename; Windows refuses to rename open files.
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(f.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return nil
}
