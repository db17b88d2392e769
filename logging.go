package odbc

import (
	"gopkg.in/inconshreveable/log15.v2"
)

// Log receives driver diagnostics, buffer rebinds and worker lifecycle events.
// Warnings go to stderr by default; replace the handler with Log.SetHandler.
var Log = log15.New("module", "odbc")

func init() {
	Log.SetHandler(log15.LvlFilterHandler(log15.LvlWarn, log15.StderrHandler))
}
