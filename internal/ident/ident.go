// Package ident encodes, decodes and enumerates catalog identifiers of the
// form U{AAA}_nichibunken_{BBBB}_{CCCC}_{DDDD}.
package ident

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	prefix = "U"
	infix  = "_nichibunken_"

	// MaxCollection is the largest collection id that fits three digits.
	MaxCollection = 999
	// MaxPart is the largest bucket, sub-bucket or sequence that fits four digits.
	MaxPart = 9999

	// encodedLen is len("U") + 3 + len("_nichibunken_") + 4 + 1 + 4 + 1 + 4.
	encodedLen = 1 + 3 + len(infix) + 4 + 1 + 4 + 1 + 4
)

// ErrInvalid is returned (wrapped) for any string that is not a canonical identifier.
var ErrInvalid = errors.New("invalid identifier")

// Parts is the four-part key addressing one catalog record.
type Parts struct {
	Collection int // AAA
	Bucket     int // BBBB
	SubBucket  int // CCCC
	Sequence   int // DDDD
}

// Valid reports whether every part fits its fixed-width field.
func (p Parts) Valid() bool {
	return p.Collection >= 0 && p.Collection <= MaxCollection &&
		inPart(p.Bucket) && inPart(p.SubBucket) && inPart(p.Sequence)
}

func inPart(v int) bool { return v >= 0 && v <= MaxPart }

// String returns the canonical identifier.
func (p Parts) String() string { return Encode(p) }

// Encode returns the canonical zero-padded identifier for p.
// Parts outside the representable ranges are not canonical; callers validate
// with Valid first when the input is untrusted.
func Encode(p Parts) string {
	return fmt.Sprintf("U%03d_nichibunken_%04d_%04d_%04d", p.Collection, p.Bucket, p.SubBucket, p.Sequence)
}

// Decode parses a canonical identifier. It is the exact inverse of Encode on
// valid parts: widths are fixed, the prefix is case-sensitive and nothing may
// trail the last field.
func Decode(s string) (Parts, error) {
	if len(s) != encodedLen || !strings.HasPrefix(s, prefix) {
		return Parts{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	rest := s[len(prefix):]

	aaa, ok := digits(rest[:3])
	if !ok || rest[3:3+len(infix)] != infix {
		return Parts{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	rest = rest[3+len(infix):]

	fields := strings.Split(rest, "_")
	if len(fields) != 3 {
		return Parts{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	var vals [3]int
	for i, f := range fields {
		if len(f) != 4 {
			return Parts{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		v, ok := digits(f)
		if !ok {
			return Parts{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		vals[i] = v
	}

	return Parts{Collection: aaa, Bucket: vals[0], SubBucket: vals[1], Sequence: vals[2]}, nil
}

// digits parses s as an unsigned decimal made only of ASCII digits.
func digits(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	return v, err == nil
}

// BucketKey is the zero-padded bucket string used as a range-memory key.
func BucketKey(bucket int) string {
	return fmt.Sprintf("%04d", bucket)
}
