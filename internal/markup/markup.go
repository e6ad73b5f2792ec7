// Package markup builds and strips the inline audio players embedded in
// transcript text, and extracts backtick-delimited reference phrases.
package markup

import (
	"encoding/base64"
	"strings"
)

const (
	openTag  = "<audio"
	closeTag = "/audio>"
)

// AudioPlayer renders MP3 bytes as an autoplaying inline player.
func AudioPlayer(mp3 []byte) string {
	return `<audio src="data:audio/mpeg;base64,` + base64.StdEncoding.EncodeToString(mp3) + `" controls autoplay></audio>`
}

// Attach appends a player to text separated by one blank line.
func Attach(text, player string) string {
	return text + "\n\n" + player
}

// StripAudio removes embedded players. On every line the span from the first
// "<audio" to the last "/audio>" is dropped; matching is case-sensitive and
// never crosses a newline. Surrounding whitespace is left untouched.
// StripAudio(StripAudio(s)) == StripAudio(s).
func StripAudio(s string) string {
	if !strings.Contains(s, openTag) {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		start := strings.Index(line, openTag)
		if start < 0 {
			continue
		}
		end := strings.LastIndex(line, closeTag)
		if end < start+len(openTag) {
			continue
		}
		lines[i] = line[:start] + line[end+len(closeTag):]
	}
	return strings.Join(lines, "\n")
}

// ExtractReference returns the first backtick-delimited phrase in s with
// audio players removed first.
//
// A phrase opens with a run of one or more backticks and closes at the next
// backtick on the same line. A run with no closing backtick later on its
// line opens nothing. Only the first phrase is returned when several exist.
func ExtractReference(s string) (string, bool) {
	s = StripAudio(s)

	for i := 0; i < len(s); {
		if s[i] != '`' {
			i++
			continue
		}

		j := i
		for j < len(s) && s[j] == '`' {
			j++
		}

		rest := s[j:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		if end := strings.IndexByte(rest, '`'); end > 0 {
			return rest[:end], true
		}
		i = j
	}
	return "", false
}
