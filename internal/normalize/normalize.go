// Package normalize canonicalizes URLs, derives the host-bucket key and a
// stable content fingerprint.
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Normalize(Normalize(u)) == Normalize(u)
//   - Context-free: does not depend on crawl history
package normalize

import (
	"net"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/publicsuffix"
)

// Normalize canonicalizes raw (optionally resolved against base) following:
//   - scheme and host are lowercased
//   - default ports (80 for http, 443 for https) are stripped
//   - "." and ".." path segments are resolved
//   - unreserved characters are percent-decoded, reserved characters are
//     re-encoded with uppercase hex
//   - query parameters are sorted lexicographically by key
//   - the fragment is dropped
//
// Only http and https schemes are accepted; any other recognized scheme
// (ftp, mailto, data, ...) is reported as ErrCauseUnsupportedScheme so the
// caller can store a terminal-state entry instead of enqueueing it.
func Normalize(raw string, base *url.URL) (url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, &NormalizeError{Message: err.Error(), Cause: ErrCauseMalformed}
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	// Opaque URLs (mailto:, data:) have no host, so a foreign scheme is
	// reported before the host check.
	scheme := strings.ToLower(u.Scheme)
	if scheme != "" && !IsFetchableScheme(scheme) {
		return url.URL{}, &NormalizeError{
			Message: "scheme " + strconv.Quote(scheme) + " is not fetchable",
			Cause:   ErrCauseUnsupportedScheme,
		}
	}
	if u.Host == "" {
		return url.URL{}, &NormalizeError{Message: "missing host", Cause: ErrCauseMalformed}
	}

	if scheme != "http" && scheme != "https" {
		return url.URL{}, &NormalizeError{
			Message: "scheme " + strconv.Quote(scheme) + " is not fetchable",
			Cause:   ErrCauseUnsupportedScheme,
		}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return url.URL{}, &NormalizeError{Message: "missing host", Cause: ErrCauseMalformed}
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	hostport := host
	if port != "" {
		hostport = net.JoinHostPort(host, port)
	}

	escapedPath := cleanPath(reencodeReserved(u.EscapedPath()))
	if escapedPath == "" {
		escapedPath = "/"
	}
	decodedPath, derr := url.PathUnescape(escapedPath)
	if derr != nil {
		return url.URL{}, &NormalizeError{Message: derr.Error(), Cause: ErrCauseMalformed}
	}

	result := url.URL{
		Scheme:  scheme,
		Host:    hostport,
		Path:    decodedPath,
		RawPath: escapedPath,
	}
	if u.RawQuery != "" {
		values, qerr := url.ParseQuery(u.RawQuery)
		if qerr == nil {
			result.RawQuery = sortedQuery(values)
		}
	}

	return result, nil
}

// Fingerprint returns a stable, non-cryptographic 64-bit hash of the
// normalized form scheme+host+port+path+sorted-query. Two URLs that
// normalize identically share one fingerprint, and therefore one link
// state.
func Fingerprint(u url.URL) uint64 {
	u.Fragment = ""
	u.RawFragment = ""
	return xxhash.Sum64String(u.String())
}

// HostKey buckets a URL for politeness and queueing: the registrable
// domain (eTLD+1, the public suffix plus one label) unless subdomains is
// set, in which case the full host is used.
func HostKey(u url.URL, subdomains bool) string {
	host := strings.ToLower(u.Hostname())
	if subdomains {
		return host
	}
	etldPlusOne, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// IP literals and unrecognized suffixes fall back to the bare host.
		return host
	}
	return etldPlusOne
}

// IsFetchableScheme reports whether scheme is accepted for fetching.
func IsFetchableScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

func cleanPath(p string) string {
	if p == "" {
		return p
	}
	hadTrailingSlash := len(p) > 1 && strings.HasSuffix(p, "/")
	cleaned := path.Clean(p)
	if cleaned == "." {
		cleaned = "/"
	}
	if hadTrailingSlash && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}

// reencodeReserved walks an already-escaped path, decoding any percent
// triplet that encodes an RFC 3986 unreserved character and uppercasing
// the hex digits of everything it leaves encoded.
func reencodeReserved(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			val, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				b.WriteByte(s[i])
				i++
				continue
			}
			c := byte(val)
			if isUnreserved(c) {
				b.WriteByte(c)
			} else {
				b.WriteByte('%')
				b.WriteString(strings.ToUpper(s[i+1 : i+3]))
			}
			i += 3
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	default:
		return false
	}
}

func sortedQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
