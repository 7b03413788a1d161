// Package humanfmt formats sizes, counts, durations and ratios for log
// companions and the inspect report, and parses size flags.
package humanfmt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Binary (IEC) units for bytes.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

var iecUnits = [...]struct {
	size float64
	name string
}{
	{TiB, "TiB"},
	{GiB, "GiB"},
	{MiB, "MiB"},
	{KiB, "KiB"},
}

// scaleIEC formats v with the largest IEC unit not exceeding it.
func scaleIEC(v float64, suffix string) string {
	for _, u := range iecUnits {
		if v >= u.size {
			return fmt.Sprintf("%.2f %s%s", v/u.size, u.name, suffix)
		}
	}
	return fmt.Sprintf("%.0f B%s", v, suffix)
}

// Bytes formats a byte count like "1.23 GiB".
func Bytes(b int64) string {
	if b < 0 {
		return fmt.Sprintf("%d B", b)
	}
	return scaleIEC(float64(b), "")
}

// Throughput formats bytes per duration like "123.40 MiB/s".
func Throughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	return scaleIEC(float64(bytes)/d.Seconds(), "/s")
}

// Duration formats d like "1.23s", "45.6ms", "789.0µs", "1m30s" or "2h15m".
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		h, m := d/time.Hour, (d%time.Hour)/time.Minute
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	case d >= time.Minute:
		m, s := d/time.Minute, (d%time.Minute)/time.Second
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

// Count formats n like "1.23M", "456.00K" or "789".
func Count(n int64) string {
	switch {
	case n < 1000:
		return strconv.FormatInt(n, 10)
	case n >= 1e9:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	default:
		return fmt.Sprintf("%.2fK", float64(n)/1e3)
	}
}

// Percent formats part/whole like "12.5%". A zero whole reports "0.0%".
func Percent(part, whole int64) string {
	if whole == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(whole))
}

// ParseBytes parses a size such as "4MiB", "512KB" or "1024".
// Supported suffixes: B, KB, KiB, K, MB, MiB, M, GB, GiB, G, TB, TiB, T.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}

	numEnd := len(s)
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' {
			numEnd = i
			break
		}
	}
	num, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in size %q", s)
	}

	var multiplier float64
	switch strings.TrimSpace(s[numEnd:]) {
	case "", "B":
		multiplier = 1
	case "KB":
		multiplier = 1000
	case "KiB", "K":
		multiplier = KiB
	case "MB":
		multiplier = 1000 * 1000
	case "MiB", "M":
		multiplier = MiB
	case "GB":
		multiplier = 1000 * 1000 * 1000
	case "GiB", "G":
		multiplier = GiB
	case "TB":
		multiplier = 1000 * 1000 * 1000 * 1000
	case "TiB", "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("unknown size suffix in %q", s)
	}

	v := num * multiplier
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(v), nil
}
