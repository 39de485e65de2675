package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Server-Timing entries written by the HTTP layer.
const (
	TimingLookup = "lookup"
	TimingAdmit  = "admit"
)

// AppendServerTiming adds one Server-Timing entry. A non-positive duration
// is left out, and an entry with neither duration nor description is not
// written.
func AppendServerTiming(w http.ResponseWriter, name string, durMs float64, desc string) {
	parts := []string{name}
	if durMs > 0 {
		parts = append(parts, "dur="+formatMs(durMs))
	}
	if desc != "" {
		parts = append(parts, "desc="+strconv.Quote(desc))
	}
	if len(parts) == 1 {
		return
	}
	w.Header().Add("Server-Timing", strings.Join(parts, ";"))
}

// SetDurationHeader sets key to ms with two decimals, when ms is positive.
func SetDurationHeader(w http.ResponseWriter, key string, ms float64) {
	if ms > 0 {
		w.Header().Set(key, formatMs(ms))
	}
}

func MsSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func formatMs(ms float64) string { return strconv.FormatFloat(ms, 'f', 2, 64) }
