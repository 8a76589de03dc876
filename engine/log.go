package engine

import "go.uber.org/zap"

// nopLogger is shared by every engine that is not given an explicit logger,
// so call sites never need a nil check.
var nopLogger = zap.NewNop()

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return nopLogger
	}
	return log
}
