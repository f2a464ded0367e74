package gpubuf

import (
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

var discard = slog.New(slog.DiscardHandler)

func init() {
	logger.Store(discard)
}

// SetLogger installs the logger used by gpubuf and its backends. Logging
// is off until SetLogger is called; nil turns it off again.
//
// Levels:
//   - Debug: buffer creation, staging chunk allocation and reclamation
//   - Info: belt registration, device open
//   - Warn: backend fallback, work still in flight at close
//
// Any slog handler works:
//
//	gpubuf.SetLogger(slog.New(slog.NewTextHandler(os.Stderr,
//	    &slog.HandlerOptions{Level: slog.LevelDebug})))
//
// SetLogger may be called concurrently with logging.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = discard
	}
	logger.Store(l)
}

// Logger returns the logger installed by SetLogger. Backend packages log
// through it.
func Logger() *slog.Logger {
	return logger.Load()
}
