package request

import (
	"bytes"
	"unicode/utf8"
)

type parseRule func([]byte) error

func applyParseRules(input []byte) error {
	for _, r := range parseRules {
		if err := r(input); err != nil {
			return err
		}
	}
	return nil
}

var parseRules = []parseRule{
	func(b []byte) error {
		if !utf8.Valid(b) {
			return newError(KindParse, "REQ-STR-001", "request must be valid UTF-8")
		}
		return nil
	},
	func(b []byte) error {
		if bytes.Contains(b, []byte("\r")) {
			return newError(KindCanonical, "REQ-CANON-001", "CR line endings not allowed")
		}
		return nil
	},
	func(b []byte) error {
		if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
			return newError(KindCanonical, "REQ-CANON-002", "BOM not allowed")
		}
		return nil
	},
	func(b []byte) error {
		if len(b) > 0 && b[len(b)-1] == '\n' {
			return newError(KindCanonical, "REQ-CANON-003", "trailing newline not allowed")
		}
		return nil
	},
	func(b []byte) error {
		if !bytes.HasPrefix(b, []byte(Preamble+"\n")) {
			return newError(KindParse, "REQ-STR-010", "missing request preamble")
		}
		return nil
	},
	func(b []byte) error {
		for _, line := range bytes.Split(b, []byte("\n")) {
			if len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t') {
				return newError(KindParse, "REQ-STR-030", "trailing whitespace forbidden")
			}
		}
		return nil
	},
}
