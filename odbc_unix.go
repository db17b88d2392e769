//go:build !windows

package odbc

import (
	"github.com/ebitengine/purego"
)

// loadODBCLibrary opens the unixODBC/iODBC driver manager with purego.Dlopen.
// RTLD_GLOBAL lets drivers loaded later by the manager resolve its symbols.
func loadODBCLibrary(libPath string) (uintptr, error) {
	return purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}
