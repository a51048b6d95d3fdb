package room

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxNamePart   = 16
	maxRoomName   = 96
	defaultMember = "member"
	nameSeparator = " - "
)

// Name builds the room name "<requester> - <candidate> - <YYYY-MM-DD>" with
// each display name clipped to 16 characters and the whole name capped at 96.
// date is formatted in its own location.
func Name(requester, candidate string, date time.Time) string {
	name := strings.Join([]string{
		clip(requester, maxNamePart),
		clip(candidate, maxNamePart),
		date.Format("2006-01-02"),
	}, nameSeparator)
	return truncate(name, maxRoomName)
}

// clip flattens newlines and shortens s to n characters, the last being an
// ellipsis when anything was cut
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return defaultMember
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
