package engine

import (
	"regexp"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/net/html"
)

var markupRe = regexp.MustCompile(`<[^>]+>`)

// logTitleRunes bounds titles in log lines.
const logTitleRunes = 60

// CaptionText normalizes one timedtext cue. Cues arrive entity-escaped twice
// (XML, then YouTube) and may carry <font>/<i> styling.
func CaptionText(raw string) string {
	text := markupRe.ReplaceAllString(html.UnescapeString(raw), " ")
	return strings.Join(strings.Fields(text), " ")
}

// ClipRunes caps s at limit runes without splitting a multi-byte character.
// A non-positive limit returns s unchanged.
func ClipRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	return strutil.TruncateWith(s, limit, "")
}

// LogTitle shortens a video title for log attributes, cutting at a word boundary.
func LogTitle(title string) string {
	return strutil.TruncateAtWord(title, logTitleRunes)
}
