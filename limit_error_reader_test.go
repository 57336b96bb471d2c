// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitErrorReader(t *testing.T) {
	tests := []struct {
		name       string
		limit      int64
		input      string
		bufferSize int
		expectN    int
		wantErr    bool
	}{
		{
			name:       "Under limit",
			limit:      10,
			input:      "12345",
			bufferSize: 5,
			expectN:    5,
		},
		{
			name:       "At limit",
			limit:      5,
			input:      "12345",
			bufferSize: 5,
			expectN:    5,
		},
		{
			name:       "Over limit",
			limit:      4,
			input:      "12345",
			bufferSize: 5,
			expectN:    4,
			wantErr:    true,
		},
		{
			name:       "Under limit with small buffer",
			limit:      10,
			input:      "12345",
			bufferSize: 2,
			expectN:    5,
		},
		{
			name:       "Unlimited",
			limit:      -1,
			input:      "12345",
			bufferSize: 5,
			expectN:    5,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l := newLimitErrorReader(strings.NewReader(test.input), test.limit)
			var out bytes.Buffer
			_, err := io.CopyBuffer(&out, struct{ io.Reader }{l}, make([]byte, test.bufferSize))
			if test.wantErr {
				require.ErrorIs(t, err, ErrMaxInputSizeExceeded)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, test.expectN, out.Len())
			assert.Equal(t, int64(test.expectN), l.ReadBytes())
		})
	}
}

func TestLimitErrorWriter(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		input   string
		expect  string
		wantErr bool
	}{
		{name: "Under limit", limit: 10, input: "12345", expect: "12345"},
		{name: "At limit", limit: 5, input: "12345", expect: "12345"},
		{name: "Over limit", limit: 3, input: "12345", expect: "123", wantErr: true},
		{name: "Zero limit", limit: 0, input: "1", expect: "", wantErr: true},
		{name: "Unlimited", limit: -1, input: "12345", expect: "12345"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			w := limitWriter(&out, test.limit)
			_, err := io.Copy(w, strings.NewReader(test.input))
			if test.wantErr {
				require.ErrorIs(t, err, ErrMaxExtractionSizeExceeded)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, test.expect, out.String())
		})
	}
}

func TestHeaderReader(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		headerSize int
		expectPeek string
	}{
		{name: "longer input", input: "0123456789", headerSize: 4, expectPeek: "0123"},
		{name: "shorter input", input: "01", headerSize: 4, expectPeek: "01"},
		{name: "empty input", input: "", headerSize: 4, expectPeek: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hr, err := newHeaderReader(strings.NewReader(test.input), test.headerSize)
			require.NoError(t, err)
			assert.Equal(t, test.expectPeek, string(hr.PeekHeader()))

			// reading returns the complete input, header included
			data, err := io.ReadAll(hr)
			require.NoError(t, err)
			assert.Equal(t, test.input, string(data))
		})
	}
}
