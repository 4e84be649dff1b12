package lineproto

import "strings"

// tagSpecials are the bytes that need escaping inside a tag value.
const tagSpecials = ",= \n"

// fieldStringSpecials are the bytes that need escaping inside a quoted field string.
const fieldStringSpecials = "\"\n"

// AppendEscapedTag appends s to dst using tag escaping: commas, spaces and
// equals signs get a leading backslash and a newline becomes the two bytes `\n`.
// Every special byte is ASCII, so multi-byte UTF-8 sequences are copied intact.
func AppendEscapedTag(dst []byte, s string) []byte {
	last := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ',', ' ', '=':
			dst = append(dst, s[last:i]...)
			dst = append(dst, '\\', c)
			last = i + 1
		case '\n':
			dst = append(dst, s[last:i]...)
			dst = append(dst, '\\', 'n')
			last = i + 1
		}
	}
	return append(dst, s[last:]...)
}

// AppendEscapedFieldString appends s to dst as a quoted field string.
// Double quotes become `\"` and newlines become `\n`.
func AppendEscapedFieldString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			dst = append(dst, s[last:i]...)
			dst = append(dst, '\\', '"')
			last = i + 1
		case '\n':
			dst = append(dst, s[last:i]...)
			dst = append(dst, '\\', 'n')
			last = i + 1
		}
	}
	dst = append(dst, s[last:]...)
	return append(dst, '"')
}

// EscapeTag returns the tag-escaped form of s.
// Fast path: s is returned unchanged when it holds nothing to escape.
func EscapeTag(s string) string {
	if !strings.ContainsAny(s, tagSpecials) {
		return s
	}
	return string(AppendEscapedTag(make([]byte, 0, len(s)+16), s))
}

// EscapeFieldString returns s quoted and escaped for use as a string field value.
func EscapeFieldString(s string) string {
	if !strings.ContainsAny(s, fieldStringSpecials) {
		return `"` + s + `"`
	}
	return string(AppendEscapedFieldString(make([]byte, 0, len(s)+8), s))
}
