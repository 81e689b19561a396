package order

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"market_maker/internal/core"
)

// iso8601Layout renders a timestamp as "2024-02-21T14:30:00.0000000+00:00":
// 7 fixed fractional-second digits and a colon-separated numeric offset,
// matching the canonical client-order-id input string exactly.
const iso8601Layout = "2006-01-02T15:04:05.0000000-07:00"

// DeterministicClientOrderID derives a stable 16-lowercase-hex-character
// client order id from the inputs that define a unique trading decision —
// the first 16 hex characters of sha256("{strategy}:{symbol}:{timeframe}:
// {signal_ts_iso8601}:{side_lower}") — so that re-submitting the same
// signal after a crash produces the same id instead of a duplicate order.
// No variation in this format is permitted; idempotency across restarts
// depends on it.
func DeterministicClientOrderID(strategy, symbol, timeframe string, side core.Side, signalTS time.Time) string {
	canonical := strategy + ":" + symbol + ":" + timeframe + ":" + signalTS.UTC().Format(iso8601Layout) + ":" + strings.ToLower(string(side))
	return first16Hex(canonical)
}

// DeterministicExitClientOrderID derives the per-day idempotent id for a
// submit_exit call: first16hex(sha256("exit:{symbol}:{yyyymmdd}:
// {date-midnight-iso}:{side_lower}")).
func DeterministicExitClientOrderID(symbol string, side core.Side, date time.Time) string {
	return dailyDeterministicID("exit", symbol, side, date)
}

// DeterministicFlattenClientOrderID derives the per-day idempotent id for a
// flatten_positions call: first16hex(sha256("flatten:{symbol}:{yyyymmdd}:
// {date-midnight-iso}:{side_lower}")).
func DeterministicFlattenClientOrderID(symbol string, side core.Side, date time.Time) string {
	return dailyDeterministicID("flatten", symbol, side, date)
}

func dailyDeterministicID(prefix, symbol string, side core.Side, date time.Time) string {
	midnight := time.Date(date.UTC().Year(), date.UTC().Month(), date.UTC().Day(), 0, 0, 0, 0, time.UTC)
	canonical := prefix + ":" + symbol + ":" + midnight.Format("20060102") + ":" + midnight.Format(iso8601Layout) + ":" + strings.ToLower(string(side))
	return first16Hex(canonical)
}

func first16Hex(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}
