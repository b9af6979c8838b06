// Package urlnorm derives a canonical source_path from a (source, url) pair.
// Normalisation is total (every input produces an output) and deterministic
// (same input always yields the same output), and idempotent: normalising an
// already-normalised path returns it unchanged.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

// reGoogleDocID matches the document id segment of a Google Docs/Sheets/
// Slides edit URL: /document/d/{ID}, /spreadsheets/d/{ID}, /presentation/d/{ID}.
var reGoogleDocID = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)

// reJiraKey matches a Jira issue key like "JIRA-123" or "ABC-42" anywhere in
// the URL.
var reJiraKey = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

// reSlackArchive matches /archives/{CHANNEL}/p{ts}.
var reSlackArchive = regexp.MustCompile(`/archives/([^/]+)/p(\d+)`)

// Normalise transforms (source, url) into a canonical source_path, applying
// the per-source rule in order until one matches; the fall-through strips
// query/fragment from a parseable URL, or passes the input through
// unchanged if it cannot be parsed.
func Normalise(source, rawURL string) string {
	switch strings.ToLower(source) {
	case "gdocs":
		if id := extractGoogleID(rawURL); id != "" {
			return "gdocs://" + id
		}
	case "gsheets":
		if id := extractGoogleID(rawURL); id != "" {
			return "gsheets://" + id
		}
	case "gslides":
		if id := extractGoogleID(rawURL); id != "" {
			return "gslides://" + id
		}
	case "jira":
		if host, key, ok := extractJira(rawURL); ok {
			return "jira://" + host + ":" + key
		}
	case "slack":
		if workspace, channel, ts, ok := extractSlack(rawURL); ok {
			return "slack://" + workspace + ":/archives/" + channel + "/p" + ts
		}
	case "gemini":
		if id := extractGeminiConversationID(rawURL); id != "" {
			return "gemini://conversation/" + id
		}
	case "ocr":
		// The router already embeds a content hash in the URL.
		return rawURL
	case "accessibility":
		// Already accessibility://…
		return rawURL
	}

	return fallback(rawURL)
}

func extractGoogleID(rawURL string) string {
	m := reGoogleDocID.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func extractJira(rawURL string) (host, key string, ok bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	m := reJiraKey.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", "", false
	}
	host = strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", "", false
	}
	return host, m[1], true
}

func extractSlack(rawURL string) (workspace, channel, ts string, ok bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", false
	}
	m := reSlackArchive.FindStringSubmatch(parsed.Path)
	if len(m) < 3 {
		return "", "", "", false
	}
	workspace = strings.ToLower(parsed.Hostname())
	if workspace == "" {
		return "", "", "", false
	}
	return workspace, m[1], m[2], true
}

func extractGeminiConversationID(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		// Some callers pass a bare conversation id rather than a full URL.
		if rawURL != "" && !strings.Contains(rawURL, "://") {
			return rawURL
		}
		return ""
	}
	segments := trimSegments(parsed.Path)
	if len(segments) == 0 {
		if rawURL != "" && !strings.Contains(rawURL, "://") {
			return rawURL
		}
		return ""
	}
	return segments[len(segments)-1]
}

// fallback parses a URL and drops its query and fragment; if it cannot be
// parsed, the input is returned unchanged.
func fallback(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
