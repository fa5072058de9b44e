//go:build unix

package keystore

import (
	"fmt"
	"os"
)

// checkFilePermissions requires mode 0600 on key files.
func checkFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		return fmt.Errorf("%w: %s has mode %04o, want 0600", ErrInvalidPermissions, path, mode)
	}
	return nil
}

// checkDirPermissions rejects key directories writable or readable by
// group or others.
func checkDirPermissions(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o, want 0700", ErrInvalidPermissions, dir, mode)
	}
	return nil
}

func setFilePermissions(path string) error {
	return os.Chmod(path, 0600)
}
