package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL          = errors.New("empty url")
	ErrMissingHost       = errors.New("missing host")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// NormalizeTarget validates that raw is an absolute http(s) URL and returns
// it with a lowercase scheme, a punycode host, default ports removed, and
// no userinfo or fragment. Path and query are preserved.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &url.Error{Op: "normalize", URL: raw, Err: ErrEmptyURL}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &url.Error{Op: "normalize", URL: raw, Err: ErrUnsupportedScheme}
	}
	if u.Host == "" {
		return "", &url.Error{Op: "normalize", URL: raw, Err: ErrMissingHost}
	}

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}

	port := u.Port()
	switch {
	case (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") || port == "":
		u.Host = hostOnly(host)
	default:
		u.Host = net.JoinHostPort(host, port)
	}

	u.User = nil
	u.Fragment = ""
	return u.String(), nil
}

// hostOnly re-brackets IPv6 literals stripped by Hostname.
func hostOnly(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// HostPort returns host:port of raw, filling in the scheme's default port.
func HostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("couldn't parse url %s: %w", raw, err)
	}
	if u.Host == "" {
		return "", &url.Error{Op: "hostport", URL: raw, Err: ErrMissingHost}
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if strings.EqualFold(u.Scheme, "https") {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// JoinPath appends an API path to a base URL, collapsing the slash between
// them.
//
// Examples:
//
//	JoinPath("http://api.test/v1/", "/users") → "http://api.test/v1/users"
//	JoinPath("http://api.test", "users")      → "http://api.test/users"
func JoinPath(base, p string) string {
	if p == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}

// RewriteLocalhost replaces a loopback host in raw with alias, keeping the
// port. URLs that are not loopback, or that fail to parse, are returned
// unchanged.
func RewriteLocalhost(raw, alias string) string {
	if alias == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if !IsLoopback(u.Hostname()) {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(alias, port)
	} else {
		u.Host = alias
	}
	return u.String()
}

// IsLoopback reports whether host names the local machine.
func IsLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
