package lightning

import (
	"bytes"
	"fmt"
	"strings"
)

const crlf = "\r\n"

// splitHead separates the head (start line and headers) from the body at the
// first blank line. Bare LF line endings are tolerated.
func splitHead(raw []byte) (head, body []byte) {
	idx, sep := bytes.Index(raw, []byte("\r\n\r\n")), 4
	if lf := bytes.Index(raw, []byte("\n\n")); lf >= 0 && (idx < 0 || lf < idx) {
		idx, sep = lf, 2
	}
	if idx < 0 {
		return raw, nil
	}
	return raw[:idx], raw[idx+sep:]
}

// splitLines splits a head into lines, dropping a trailing CR on each.
func splitLines(head []byte) []string {
	s := strings.TrimRight(string(head), "\r\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// parseHeaders parses "Name: value" lines. One space or tab after the colon is
// dropped and the rest of the value is kept verbatim. Lines without a colon
// or name are an error when strict, and skipped otherwise.
func parseHeaders(lines []string, strict bool) ([]Header, error) {
	headers := make([]Header, 0, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			if strict {
				return nil, fmt.Errorf("invalid header line %q", line)
			}
			continue
		}
		if value != "" && (value[0] == ' ' || value[0] == '\t') {
			value = value[1:]
		}
		headers = append(headers, Header{Name: name, Value: value})
	}
	return headers, nil
}

func lookupHeader(headers []Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func writeHeaders(b *strings.Builder, headers []Header) {
	for _, h := range headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString(crlf)
	}
}
