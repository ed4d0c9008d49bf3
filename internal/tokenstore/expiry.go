package tokenstore

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// msThreshold separates epoch milliseconds from relative seconds.
const msThreshold = 1e12

// maxExpiryMs is the largest distance from the epoch a date can have (±100,000,000
// days). Anything further out is not a date.
const maxExpiryMs = 8.64e15

type expiryKind int

const (
	expiryKeep expiryKind = iota
	expiryNever
	expiryValue
)

// Expiry is the refresh-token expiry argument to SetRefreshToken.
type Expiry struct {
	kind  expiryKind
	value any
}

// KeepExpiry leaves any stored refresh expiry untouched.
func KeepExpiry() Expiry { return Expiry{kind: expiryKeep} }

// NeverExpires clears the stored refresh expiry.
func NeverExpires() Expiry { return Expiry{kind: expiryNever} }

// ExpiryFrom accepts an ISO-8601 string, epoch seconds, epoch milliseconds,
// relative seconds or a time.Time. A nil value behaves like NeverExpires.
func ExpiryFrom(v any) Expiry {
	if v == nil {
		return NeverExpires()
	}
	return Expiry{kind: expiryValue, value: v}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// normalizeExpiry returns an absolute millisecond timestamp. Numbers above 1e12 are
// already absolute; smaller numbers are seconds from now. ok is false when the value
// cannot be interpreted.
func normalizeExpiry(v any, now time.Time) (int64, bool) {
	fromNumber := func(n float64) (int64, bool) {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		ms := n
		if n <= msThreshold {
			ms = float64(now.UnixMilli()) + n*1000
		}
		if math.Abs(ms) > maxExpiryMs {
			return 0, false
		}
		return int64(ms), true
	}

	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return 0, false
		}
		return val.UnixMilli(), true
	case int:
		return fromNumber(float64(val))
	case int64:
		return fromNumber(float64(val))
	case float64:
		return fromNumber(val)
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return fromNumber(n)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromNumber(n)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UnixMilli(), true
			}
		}
	}
	return 0, false
}
