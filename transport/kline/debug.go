package kline

import (
	"fmt"
	"log/slog"
)

func debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), slog.String("transport", "kline"))
}
