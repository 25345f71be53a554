package inspect

import (
	"testing"

	xerrors "ChainScope-MCP/internal/errors"
)

func TestParseAddressAccepted(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{"checksummed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{"surrounding whitespace", "  0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed\n"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			addr, err := ParseAddress(tc.raw)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.raw, err)
			}
			if got := addr.Hex(); got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
				t.Fatalf("unexpected canonical form %q", got)
			}
		})
	}
}

func TestParseAddressRejected(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"missing prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{"too short", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea"},
		{"non hex", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaeg"},
		{"bad checksum", "0x5Aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseAddress(tc.raw); err == nil {
				t.Fatalf("expected %q to be rejected", tc.raw)
			} else if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidAddress {
				t.Fatalf("unexpected code %s", code)
			}
		})
	}
}
