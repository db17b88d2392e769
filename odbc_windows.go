//go:build windows

package odbc

import (
	"syscall"
)

// loadODBCLibrary opens odbc32.dll; purego.Dlopen is unavailable on Windows.
func loadODBCLibrary(libPath string) (uintptr, error) {
	dll, err := syscall.LoadLibrary(libPath)
	if err != nil {
		return 0, err
	}
	return uintptr(dll), nil
}
