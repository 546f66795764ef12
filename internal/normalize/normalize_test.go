package normalize

import (
	"net/url"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "scheme and host lowercased",
			input:    "HTTPS://DOCS.EXAMPLE.COM/Guide",
			expected: "https://docs.example.com/Guide",
		},
		{
			name:     "default https port removed",
			input:    "https://example.com:443/path",
			expected: "https://example.com/path",
		},
		{
			name:     "default http port removed",
			input:    "http://example.com:80/path",
			expected: "http://example.com/path",
		},
		{
			name:     "non-default port preserved",
			input:    "https://example.com:8443/path",
			expected: "https://example.com:8443/path",
		},
		{
			name:     "fragment dropped",
			input:    "https://example.com/path#section",
			expected: "https://example.com/path",
		},
		{
			name:     "dot segments resolved",
			input:    "https://example.com/a/./b/../c",
			expected: "https://example.com/a/c",
		},
		{
			name:     "query parameters sorted",
			input:    "https://example.com/path?b=2&a=1",
			expected: "https://example.com/path?a=1&b=2",
		},
		{
			name:     "reserved characters uppercase hex",
			input:    "https://example.com/path%2fsegment",
			expected: "https://example.com/path%2Fsegment",
		},
		{
			name:     "unreserved characters decoded",
			input:    "https://example.com/%7Euser",
			expected: "https://example.com/~user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Normalize(tt.input, nil)
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tt.input, err)
			}
			if got := result.String(); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://example.com/a/./b/../c?b=2&a=1#frag",
		"HTTP://EXAMPLE.COM:80/Path%2f?x=1",
	}

	for _, in := range inputs {
		first, err := Normalize(in, nil)
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", in, err)
		}
		second, err := Normalize(first.String(), nil)
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", first.String(), err)
		}
		if first.String() != second.String() {
			t.Errorf("Normalize is not idempotent: first=%q second=%q", first.String(), second.String())
		}
	}
}

func TestNormalizeRelativeWithBase(t *testing.T) {
	base, err := url.Parse("https://example.com/docs/guide")
	if err != nil {
		t.Fatalf("failed to parse base: %v", err)
	}

	result, err := Normalize("../other?x=1", base)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got, want := result.String(), "https://example.com/other?x=1"; got != want {
		t.Errorf("Normalize(relative) = %q, want %q", got, want)
	}
}

func TestNormalizeUnsupportedScheme(t *testing.T) {
	for _, in := range []string{"mailto:a@example.com", "ftp://example.com/file", "data:text/plain;base64,aGk="} {
		_, err := Normalize(in, nil)
		if err == nil {
			t.Fatalf("Normalize(%q) expected error, got nil", in)
		}
		nerr, ok := err.(*NormalizeError)
		if !ok {
			t.Fatalf("Normalize(%q) error type = %T, want *NormalizeError", in, err)
		}
		if nerr.Cause != ErrCauseUnsupportedScheme {
			t.Errorf("Normalize(%q) cause = %v, want %v", in, nerr.Cause, ErrCauseUnsupportedScheme)
		}
	}
}

func TestNormalizeMalformed(t *testing.T) {
	_, err := Normalize("https://", nil)
	if err == nil {
		t.Fatal("Normalize(\"https://\") expected error, got nil")
	}
	nerr, ok := err.(*NormalizeError)
	if !ok {
		t.Fatalf("error type = %T, want *NormalizeError", err)
	}
	if nerr.Cause != ErrCauseMalformed {
		t.Errorf("cause = %v, want %v", nerr.Cause, ErrCauseMalformed)
	}
}

func TestFingerprintAgreesWithNormalization(t *testing.T) {
	a, err := Normalize("https://Example.com:443/path/?b=2&a=1#frag", nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	b, err := Normalize("HTTPS://example.com/path/?a=1&b=2", nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Errorf("Fingerprint mismatch for equivalent URLs: %q vs %q", a.String(), b.String())
	}
}

func TestHostKeyEffectiveTLDPlusOne(t *testing.T) {
	u, err := Normalize("https://docs.www.example.co.uk/guide", nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if got, want := HostKey(u, false), "example.co.uk"; got != want {
		t.Errorf("HostKey(subdomains=false) = %q, want %q", got, want)
	}
	if got, want := HostKey(u, true), "docs.www.example.co.uk"; got != want {
		t.Errorf("HostKey(subdomains=true) = %q, want %q", got, want)
	}
}

func TestIsFetchableScheme(t *testing.T) {
	if !IsFetchableScheme("HTTP") || !IsFetchableScheme("https") {
		t.Error("expected http/https to be fetchable")
	}
	if IsFetchableScheme("ftp") || IsFetchableScheme("mailto") {
		t.Error("expected ftp/mailto to be unsupported")
	}
}
