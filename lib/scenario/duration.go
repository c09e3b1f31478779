// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var offsetUnits = []struct {
	suffix byte
	size   time.Duration
}{
	{'w', 7 * 24 * time.Hour},
	{'d', 24 * time.Hour},
	{'h', time.Hour},
	{'m', time.Minute},
	{'s', time.Second},
}

// ParseOffset parses a scenario offset: a sequence of non-negative
// integers each followed by a unit among w, d, h, m, and s, such as
// "1h30m" or "2d". A bare "0" is accepted. Units may appear in any
// order and repeat; their values add up.
func ParseOffset(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "0" {
		return 0, nil
	}
	if text == "" {
		return 0, fmt.Errorf("invalid offset %q: empty", text)
	}

	var total time.Duration
	rest := text
	for rest != "" {
		digits := 0
		for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			return 0, fmt.Errorf("invalid offset %q: expected a number before %q", text, rest)
		}
		if digits == len(rest) {
			return 0, fmt.Errorf("invalid offset %q: missing unit after %s", text, rest)
		}
		value, err := strconv.ParseInt(rest[:digits], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q: %w", text, err)
		}
		size, ok := unitSize(rest[digits])
		if !ok {
			return 0, fmt.Errorf("invalid offset %q: unknown unit %q", text, rest[digits])
		}
		if value > int64((1<<63-1)/size) {
			return 0, fmt.Errorf("invalid offset %q: too large", text)
		}
		total += time.Duration(value) * size
		if total < 0 {
			return 0, fmt.Errorf("invalid offset %q: too large", text)
		}
		rest = rest[digits+1:]
	}
	return total, nil
}

func unitSize(suffix byte) (time.Duration, bool) {
	for _, unit := range offsetUnits {
		if unit.suffix == suffix {
			return unit.size, true
		}
	}
	return 0, false
}

// FormatOffset renders offset in the form ParseOffset accepts, largest
// unit first ("1d2h", "30s"). Sub-second parts are dropped and
// negative offsets are prefixed with "-".
func FormatOffset(offset time.Duration) string {
	if offset < 0 {
		return "-" + FormatOffset(-offset)
	}
	var builder strings.Builder
	for _, unit := range offsetUnits {
		if count := offset / unit.size; count > 0 {
			builder.WriteString(strconv.FormatInt(int64(count), 10))
			builder.WriteByte(unit.suffix)
			offset -= count * unit.size
		}
	}
	if builder.Len() == 0 {
		return "0s"
	}
	return builder.String()
}
