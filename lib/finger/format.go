// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package finger

import (
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/fingerd/lib/clock"
)

// NoUsersAnswer is the whole answer for an empty user list.
const NoUsersAnswer = "No user list available.\r\n"

// idleThreshold is the idle time below which the long format omits
// the idle line of a session.
const idleThreshold = 4 * time.Second

const (
	shortTimeLayout = "Mon 15:04"
	longTimeLayout  = "Mon Jan 2 15:04 (MST)"
)

// Formatter renders users as RFC 1288 answers. The zero value renders
// times in UTC against the real clock.
type Formatter struct {
	// Location is the zone times are displayed in. Nil means UTC.
	Location *time.Location

	// Clock supplies "now" for idle durations. Nil means the real clock.
	Clock clock.Clock
}

// NewFormatter returns a Formatter displaying times in location.
func NewFormatter(location *time.Location, clk clock.Clock) *Formatter {
	return &Formatter{Location: location, Clock: clk}
}

func (f *Formatter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func (f *Formatter) now() time.Time {
	if f.Clock == nil {
		return time.Now()
	}
	return f.Clock.Now()
}

// FormatQueryError renders the answer sent back for a query line that
// could not be decoded.
func (f *Formatter) FormatQueryError(hostname, rawQuery string) string {
	return "Site: " + hostname + "\r\nYou have made a mistake in your query!\r\n"
}

// FormatShort renders users as a table with one row per session. A
// user without sessions still gets one row.
func (f *Formatter) FormatShort(hostname, rawQuery string, users []User) string {
	if len(users) == 0 {
		return NoUsersAnswer
	}

	now := f.now()
	rows := [][]string{{"Login", "Name", "TTY", "Idle", "When", "Office"}}
	for _, user := range users {
		if len(user.Sessions) == 0 {
			rows = append(rows, []string{user.Login, user.Name, "", "", "", user.Office})
			continue
		}
		for _, session := range user.Sessions {
			office := user.Office
			if session.Host != "" {
				office = "(" + session.Host + ")"
			}
			rows = append(rows, []string{
				user.Login,
				user.Name,
				session.Line,
				formatShortIdle(session.IdleDuration(now)),
				session.Start.In(f.location()).Format(shortTimeLayout),
				office,
			})
		}
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for column, cell := range row {
			widths[column] = max(widths[column], len(cell)+1)
		}
	}

	var builder strings.Builder
	writeHeader(&builder, hostname, rawQuery)
	builder.WriteString("\r\n")
	for _, row := range rows {
		var line strings.Builder
		for column, cell := range row {
			fmt.Fprintf(&line, "%-*s", widths[column], cell)
		}
		builder.WriteString(strings.TrimRight(line.String(), " "))
		builder.WriteString("\r\n")
	}
	return builder.String()
}

// FormatLong renders one paragraph per user: identity, sessions (or
// last login), and plan.
func (f *Formatter) FormatLong(hostname, rawQuery string, users []User) string {
	if len(users) == 0 {
		return NoUsersAnswer
	}

	now := f.now()
	var builder strings.Builder
	writeHeader(&builder, hostname, rawQuery)
	for _, user := range users {
		builder.WriteString("\r\n")
		fmt.Fprintf(&builder, "Login: %-32s Name: %s\r\n", user.Login, user.Name)
		fmt.Fprintf(&builder, "Directory: %-28s Shell: %s\r\n", user.Home, user.Shell)
		if user.Office != "" {
			fmt.Fprintf(&builder, "Office: %s\r\n", user.Office)
		}

		switch {
		case len(user.Sessions) > 0:
			for _, session := range user.Sessions {
				builder.WriteString("On since ")
				builder.WriteString(session.Start.In(f.location()).Format(longTimeLayout))
				if session.Line != "" {
					builder.WriteString(" on " + session.Line)
				}
				if session.Host != "" {
					builder.WriteString(" from " + session.Host)
				}
				builder.WriteString("\r\n")
				if idle := session.IdleDuration(now); idle >= idleThreshold {
					fmt.Fprintf(&builder, "   %s idle\r\n", formatLongIdle(idle))
				}
			}
		case !user.LastLogin.IsZero():
			fmt.Fprintf(&builder, "Last login %s\r\n", user.LastLogin.In(f.location()).Format(longTimeLayout))
		default:
			builder.WriteString("Never logged in.\r\n")
		}

		if user.HasPlan {
			builder.WriteString("Plan:\r\n")
			builder.WriteString(normalizeLineEndings(user.Plan))
		} else {
			builder.WriteString("No plan.\r\n")
		}
	}
	return builder.String()
}

func writeHeader(builder *strings.Builder, hostname, rawQuery string) {
	builder.WriteString("Site: " + hostname + "\r\n")
	builder.WriteString("Command line: " + rawQuery + "\r\n")
}

// formatShortIdle renders "<days>d", "HH:MM", or nothing below a minute.
func formatShortIdle(idle time.Duration) string {
	day := 24 * time.Hour
	switch {
	case idle >= day:
		return fmt.Sprintf("%dd", idle/day)
	case idle >= time.Minute:
		return fmt.Sprintf("%02d:%02d", idle/time.Hour, (idle%time.Hour)/time.Minute)
	default:
		return ""
	}
}

// formatLongIdle renders "1 day 2 hours 5 seconds". Zero-valued units
// are omitted, except that seconds are always shown when every larger
// unit is zero.
func formatLongIdle(idle time.Duration) string {
	total := int64(idle / time.Second)
	units := []struct {
		name  string
		value int64
	}{
		{"day", total / 86400},
		{"hour", total % 86400 / 3600},
		{"minute", total % 3600 / 60},
		{"second", total % 60},
	}

	var parts []string
	for i, unit := range units {
		last := i == len(units)-1
		if unit.value == 0 && !(last && len(parts) == 0) {
			continue
		}
		part := fmt.Sprintf("%d %s", unit.value, unit.name)
		if unit.value != 1 {
			part += "s"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// normalizeLineEndings converts any mix of LF and CRLF line endings
// into CRLF and guarantees a trailing line ending.
func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return strings.ReplaceAll(text, "\n", "\r\n")
}
