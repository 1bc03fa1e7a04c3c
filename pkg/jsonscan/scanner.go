// Package jsonscan extracts the first complete JSON object embedded in an
// incrementally arriving character stream. The relay runs one Scanner per
// stream to surface a structured payload ahead of full text delivery.
package jsonscan

import "encoding/json"

// State identifies where the scanner is in the character stream.
type State int

const (
	// Scanning means the scanner is looking for, or inside, an object
	// outside of any string literal.
	Scanning State = iota

	// InString means the cursor is inside a JSON string literal, where
	// braces carry no structural meaning.
	InString

	// Escaped means the previous character was a backslash inside a
	// string literal; the current character is consumed verbatim.
	Escaped

	// Balanced means a complete object has been captured. The scanner
	// ignores all further input.
	Balanced
)

// Scanner consumes a stream of characters and captures the first balanced
// top-level JSON object that parses successfully. It is allocation-light:
// one buffer grows per candidate object and no per-character allocation
// occurs.
//
// A Scanner is request-scoped and not safe for concurrent use.
type Scanner struct {
	state State
	buf   []byte
	depth int
}

// New returns a Scanner ready to consume a fresh stream.
func New() *Scanner {
	return &Scanner{}
}

// State returns the scanner's current state.
func (s *Scanner) State() State {
	return s.state
}

// Done reports whether an object has already been captured.
func (s *Scanner) Done() bool {
	return s.state == Balanced
}

// Feed consumes one chunk of streamed text. If the chunk completes the
// first embedded JSON object, Feed returns it and true; every later call
// returns nil and false. A candidate that balances but fails to parse is
// discarded and scanning resumes at the next opening brace.
func (s *Scanner) Feed(chunk string) (json.RawMessage, bool) {
	if s.state == Balanced {
		return nil, false
	}

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		switch s.state {
		case Escaped:
			s.buf = append(s.buf, c)
			s.state = InString

		case InString:
			s.buf = append(s.buf, c)
			switch c {
			case '\\':
				s.state = Escaped
			case '"':
				s.state = Scanning
			}

		case Scanning:
			if s.depth == 0 {
				// Not inside a candidate yet; skip until the first '{'.
				if c != '{' {
					continue
				}
				s.buf = s.buf[:0]
			}

			s.buf = append(s.buf, c)

			switch c {
			case '"':
				s.state = InString
			case '{':
				s.depth++
			case '}':
				s.depth--
				if s.depth == 0 {
					if raw, ok := s.capture(); ok {
						return raw, true
					}
				}
			}
		}
	}

	return nil, false
}

// capture validates the buffered candidate. On success the scanner goes
// Balanced; on failure the buffer is discarded and scanning continues.
func (s *Scanner) capture() (json.RawMessage, bool) {
	if !json.Valid(s.buf) {
		s.buf = s.buf[:0]
		return nil, false
	}

	raw := make(json.RawMessage, len(s.buf))
	copy(raw, s.buf)
	s.state = Balanced
	s.buf = nil

	return raw, true
}
