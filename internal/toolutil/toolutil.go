// Package toolutil normalizes the identifiers MCP tool callers pass in:
// bare ids, handles, or any of the usual youtube.com / youtu.be URL shapes.
package toolutil

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	videoIDRe    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	playlistIDRe = regexp.MustCompile(`^(PL|UU|LL|FL|OL|RD)[A-Za-z0-9_-]{10,}$`)
	channelIDRe  = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)
	handleRe     = regexp.MustCompile(`^@[A-Za-z0-9._-]{3,30}$`)
)

// ErrBadIdentifier is returned when input matches no known id or URL form.
var ErrBadIdentifier = errors.New("unrecognized youtube identifier")

// VideoID accepts an 11-char id or a watch, youtu.be, shorts, embed or live URL.
func VideoID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if videoIDRe.MatchString(s) {
		return s, nil
	}
	u, ok := parseYouTubeURL(s)
	if !ok {
		return "", badID("video", s)
	}
	if strings.HasSuffix(u.Host, "youtu.be") {
		if id := firstSegment(u.Path); videoIDRe.MatchString(id) {
			return id, nil
		}
		return "", badID("video", s)
	}
	if id := u.Query().Get("v"); videoIDRe.MatchString(id) {
		return id, nil
	}
	segs := segments(u.Path)
	if len(segs) >= 2 {
		switch segs[0] {
		case "shorts", "embed", "live", "v":
			if videoIDRe.MatchString(segs[1]) {
				return segs[1], nil
			}
		}
	}
	return "", badID("video", s)
}

// PlaylistID accepts a playlist id or any URL carrying list=.
func PlaylistID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if playlistIDRe.MatchString(s) {
		return s, nil
	}
	if u, ok := parseYouTubeURL(s); ok {
		if id := u.Query().Get("list"); playlistIDRe.MatchString(id) {
			return id, nil
		}
	}
	return "", badID("playlist", s)
}

// Channel returns a channel id ("UC...") or handle ("@name") suitable for lookup.
// A bare name is treated as a handle.
func Channel(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case channelIDRe.MatchString(s), handleRe.MatchString(s):
		return s, nil
	case handleRe.MatchString("@" + s):
		return "@" + s, nil
	}
	u, ok := parseYouTubeURL(s)
	if !ok {
		return "", badID("channel", s)
	}
	segs := segments(u.Path)
	switch {
	case len(segs) >= 1 && handleRe.MatchString(segs[0]):
		return segs[0], nil
	case len(segs) >= 2 && segs[0] == "channel" && channelIDRe.MatchString(segs[1]):
		return segs[1], nil
	}
	return "", badID("channel", s)
}

// Clamp returns def for n <= 0 and max for n > max.
func Clamp(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func parseYouTubeURL(s string) (*url.URL, bool) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")
	if host != "youtube.com" && host != "youtu.be" && host != "youtube-nocookie.com" {
		return nil, false
	}
	u.Host = host
	return u, true
}

func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstSegment(path string) string {
	if segs := segments(path); len(segs) > 0 {
		return segs[0]
	}
	return ""
}

func badID(kind, s string) error {
	return errors.Join(ErrBadIdentifier, errors.New(kind+": "+s))
}
