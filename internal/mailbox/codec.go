package mailbox

import (
	"strings"
	"time"
)

const delimiter = "---"

// Message is a decoded mailbox envelope.
type Message struct {
	Kind    Kind
	Title   string
	From    string
	To      string
	Created string
	Body    string
}

// Encode renders the envelope: a key/value header between "---" lines, then "# title" and the body.
func Encode(m Message) string {
	kind := m.Kind
	if kind == "" {
		kind = KindMessage
	}
	created := m.Created
	if created == "" {
		created = time.Now().Format("2006-01-02 15:04:05")
	}
	var b strings.Builder
	b.WriteString(delimiter + "\n")
	b.WriteString("kind: " + string(kind) + "\n")
	b.WriteString("from: " + oneLine(m.From) + "\n")
	b.WriteString("to: " + oneLine(m.To) + "\n")
	b.WriteString("title: " + oneLine(m.Title) + "\n")
	b.WriteString("created: " + created + "\n")
	b.WriteString(delimiter + "\n\n")
	if t := oneLine(m.Title); t != "" {
		b.WriteString("# " + t + "\n\n")
	}
	b.WriteString(strings.TrimSpace(m.Body) + "\n")
	return b.String()
}

// Decode is best-effort. Text without a header is treated as a plain body of kind "message";
// a header without a "title:" key falls back to the first "# " heading. It never fails.
// When the header carries a title, the "# title" line written by Encode is dropped from the body.
func Decode(text string) Message {
	m := Message{Kind: KindMessage}
	body := text
	titled := false
	if strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), delimiter) {
		trimmed := strings.TrimLeft(text, " \t\r\n")
		rest := trimmed[len(delimiter):]
		if end := strings.Index(rest, "\n"+delimiter); end >= 0 {
			header := rest[:end]
			body = rest[end+len("\n"+delimiter):]
			if i := strings.Index(body, "\n"); i >= 0 && strings.TrimSpace(body[:i]) == "" {
				body = body[i+1:]
			} else if strings.TrimSpace(body) == "" {
				body = ""
			}
			titled = parseHeader(header, &m)
		}
	}
	body = strings.TrimSpace(body)
	switch {
	case !titled:
		m.Title = firstHeading(body)
	case m.Title != "":
		body = stripTitleHeading(body, m.Title)
	}
	m.Body = body
	return m
}

// parseHeader fills m from the header lines and reports whether a "title:" key was present.
func parseHeader(header string, m *Message) bool {
	titled := false
	for _, line := range strings.Split(header, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.TrimSpace(k) {
		case "kind":
			if v != "" {
				m.Kind = Kind(v)
			}
		case "title":
			m.Title = v
			titled = true
		case "from":
			m.From = v
		case "to":
			m.To = v
		case "created":
			m.Created = v
		}
	}
	return titled
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// stripTitleHeading removes the leading "# title" line Encode writes, keeping hand-written bodies intact.
func stripTitleHeading(body, title string) string {
	first, rest, _ := strings.Cut(body, "\n")
	if strings.TrimSpace(first) != "# "+title {
		return body
	}
	return strings.TrimSpace(rest)
}

func oneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
