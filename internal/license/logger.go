package license

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/paramita1949/C-Canvas-sub005/internal/infrastructure"
)

// logAction logs an engine action with structured data. Action names are
// stable machine-readable strings; result is the human-readable outcome.
func logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	logger := infrastructure.LoggerWithContext(ctx)

	allAttrs := []slog.Attr{
		slog.String("component", "auth_engine"),
		slog.String("action", action),
	}
	allAttrs = append(allAttrs, attrs...)
	logger.LogAttrs(ctx, level, result, allAttrs...)
}

func logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelError, action, result, attrs...)
}

// maskToken masks an opaque session token for logging.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// maskUsername keeps the first and last rune of the local identifier.
func maskUsername(username string) string {
	if len(username) <= 2 {
		return "**"
	}
	return username[:1] + "****" + username[len(username)-1:]
}

func encodeHex(b []byte) string { return hex.EncodeToString(b) }

func decodeHexQuiet(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
