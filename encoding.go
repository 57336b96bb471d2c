// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// lookupEncoding returns the character set registered under name in the IANA
// index. An empty name or UTF-8 selects no transcoding and returns nil.
func lookupEncoding(name string) (encoding.Encoding, error) {
	if len(name) == 0 {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q: %w", ErrInvalidConfig, name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidConfig, name)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}

// nameCodec translates entry names between UTF-8 and the character set of a container.
type nameCodec struct {
	enc encoding.Encoding
}

// newNameCodec returns the name codec for the configured encoding.
func newNameCodec(cfg *Config) (nameCodec, error) {
	enc, err := cfg.nameEncoding()
	if err != nil {
		return nameCodec{}, err
	}
	return nameCodec{enc: enc}, nil
}

// enabled reports whether names are transcoded.
func (c nameCodec) enabled() bool {
	return c.enc != nil
}

// decode converts a name read from a container into UTF-8.
func (c nameCodec) decode(name string) (string, error) {
	if c.enc == nil || isASCII(name) {
		return name, nil
	}
	s, err := c.enc.NewDecoder().String(name)
	if err != nil {
		return "", fmt.Errorf("cannot decode name %q: %w", name, err)
	}
	return s, nil
}

// encode converts a UTF-8 name into the character set of the container.
func (c nameCodec) encode(name string) (string, error) {
	if c.enc == nil || isASCII(name) {
		return name, nil
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: name is not valid UTF-8: %q", ErrInvalidEntry, name)
	}
	s, err := c.enc.NewEncoder().String(name)
	if err != nil {
		return "", fmt.Errorf("cannot encode name %q: %w", name, err)
	}
	return s, nil
}

// isASCII reports whether s consists of 7-bit characters only.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
