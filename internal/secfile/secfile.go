// Package secfile enforces owner-only permissions on key and database files.
package secfile

import (
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/ericfisherdev/homevault/internal/domain/model"
)

const (
	FileMode fs.FileMode = 0o600 // Owner read/write only.
	DirMode  fs.FileMode = 0o700 // Owner read/write/execute only.
)

// enforced is false on platforms without POSIX permission bits.
var enforced = runtime.GOOS != "windows"

// EnsureDir creates dir if needed and restricts it to DirMode.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return &model.ConfigurationError{Path: dir, Msg: "create directory", Err: err}
	}
	if !enforced {
		return nil
	}
	if err := os.Chmod(dir, DirMode); err != nil {
		return &model.ConfigurationError{Path: dir, Msg: "restrict directory permissions", Err: err}
	}
	return CheckDir(dir)
}

// Restrict sets path to FileMode and verifies the result.
func Restrict(path string) error {
	if !enforced {
		return nil
	}
	if err := os.Chmod(path, FileMode); err != nil {
		return &model.ConfigurationError{Path: path, Msg: "restrict file permissions", Err: err}
	}
	return CheckFile(path)
}

// CheckFile fails if path grants any group or other permission bits.
func CheckFile(path string) error {
	return check(path, FileMode)
}

// CheckDir fails if dir grants any group or other permission bits.
func CheckDir(dir string) error {
	return check(dir, DirMode)
}

func check(path string, want fs.FileMode) error {
	if !enforced {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return &model.ConfigurationError{Path: path, Msg: "stat", Err: err}
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return &model.ConfigurationError{
			Path: path,
			Msg:  fmt.Sprintf("insecure permissions %04o (expected %04o)", perm, want),
		}
	}
	return nil
}
