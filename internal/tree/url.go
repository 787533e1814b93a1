package tree

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ftp":   "21",
	"ws":    "80",
	"wss":   "443",
}

// NormalizeURL returns the form of a bookmark URL used for hashing and
// matching. Scheme and host are case folded, IDN hosts are converted to
// punycode, default ports are dropped, an empty http path becomes "/" and
// query parameters are re-encoded canonically in their original order.
// Fragments and opaque URLs such as javascript: or data: are kept as is.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)

	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return s
	}

	scheme := strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}

	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	var b strings.Builder

	b.WriteString(scheme)
	b.WriteString(":")

	if u.Host != "" || u.User != nil || scheme == "file" {
		b.WriteString("//")
	}

	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}

	b.WriteString(host)

	path := u.EscapedPath()
	if path == "" && (scheme == "http" || scheme == "https") {
		path = "/"
	}

	b.WriteString(path)

	if u.RawQuery != "" || u.ForceQuery {
		b.WriteByte('?')
		b.WriteString(canonicalQuery(u.RawQuery))
	}

	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.EscapedFragment())
	}

	return b.String()
}

// canonicalQuery decodes and re-encodes each key and value so equivalent
// percent encodings compare equal. Parameter order is preserved.
func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}

	parts := strings.Split(raw, "&")
	for i, part := range parts {
		key, value, hasValue := strings.Cut(part, "=")

		part = canonicalComponent(key)
		if hasValue {
			part += "=" + canonicalComponent(value)
		}

		parts[i] = part
	}

	return strings.Join(parts, "&")
}

func canonicalComponent(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}

	return url.QueryEscape(decoded)
}
