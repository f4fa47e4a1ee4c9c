// Package inspectlink parses and formats csgo_econ_action_preview links.
package inspectlink

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformed reports a string that is not a preview link or descriptor.
var ErrMalformed = errors.New("malformed inspect link")

const linkPrefix = "steam://rungame/730/76561202255233023/+csgo_econ_action_preview"

// Link is a decoded preview link. Exactly one of S (owner steam id) and
// M (market listing id) is nonzero.
type Link struct {
	S uint64
	A uint64
	D uint64
	M uint64
}

// Parse decodes a full steam:// preview link. The action payload may be
// percent-encoded (%20 between the command and the descriptor). Path
// unescaping only: the literal '+' in +csgo_econ_action_preview must
// survive decoding.
func Parse(raw string) (Link, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	decoded = strings.TrimSpace(decoded)
	if !strings.HasPrefix(decoded, "steam://rungame/730/") {
		return Link{}, fmt.Errorf("op=inspectlink.parse: %w", ErrMalformed)
	}
	i := strings.Index(decoded, "+csgo_econ_action_preview")
	if i < 0 {
		return Link{}, fmt.Errorf("op=inspectlink.parse: %w", ErrMalformed)
	}
	payload := strings.TrimSpace(decoded[i+len("+csgo_econ_action_preview"):])
	return ParsePayload(payload)
}

// ParsePayload decodes the descriptor part of a link: "S...A...D..." for
// inventory items or "M...A...D..." for market listings.
func ParsePayload(payload string) (Link, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Link{}, fmt.Errorf("op=inspectlink.payload: %w", ErrMalformed)
	}
	var l Link
	rest := payload
	switch rest[0] {
	case 'S':
		s, r, err := takeNumber(rest[1:])
		if err != nil {
			return Link{}, err
		}
		l.S, rest = s, r
	case 'M':
		m, r, err := takeNumber(rest[1:])
		if err != nil {
			return Link{}, err
		}
		l.M, rest = m, r
	default:
		return Link{}, fmt.Errorf("op=inspectlink.payload: %w", ErrMalformed)
	}
	if len(rest) == 0 || rest[0] != 'A' {
		return Link{}, fmt.Errorf("op=inspectlink.payload: %w", ErrMalformed)
	}
	a, rest, err := takeNumber(rest[1:])
	if err != nil {
		return Link{}, err
	}
	l.A = a
	if len(rest) == 0 || rest[0] != 'D' {
		return Link{}, fmt.Errorf("op=inspectlink.payload: %w", ErrMalformed)
	}
	d, rest, err := takeNumber(rest[1:])
	if err != nil {
		return Link{}, err
	}
	l.D = d
	if strings.TrimSpace(rest) != "" {
		return Link{}, fmt.Errorf("op=inspectlink.payload: %w", ErrMalformed)
	}
	if l.A == 0 || l.D == 0 || (l.S == 0) == (l.M == 0) {
		return Link{}, fmt.Errorf("op=inspectlink.payload: %w", ErrMalformed)
	}
	return l, nil
}

// Format renders l back into a full preview link.
func (l Link) Format() string {
	var b strings.Builder
	b.WriteString(linkPrefix)
	b.WriteByte(' ')
	if l.M != 0 {
		b.WriteByte('M')
		b.WriteString(strconv.FormatUint(l.M, 10))
	} else {
		b.WriteByte('S')
		b.WriteString(strconv.FormatUint(l.S, 10))
	}
	b.WriteByte('A')
	b.WriteString(strconv.FormatUint(l.A, 10))
	b.WriteByte('D')
	b.WriteString(strconv.FormatUint(l.D, 10))
	return b.String()
}

func takeNumber(s string) (uint64, string, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("op=inspectlink.number: %w", ErrMalformed)
	}
	n, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("op=inspectlink.number: %w", ErrMalformed)
	}
	return n, s[i:], nil
}
