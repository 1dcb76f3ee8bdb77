package syndicate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("syndicate: invalid source URL")

const maxURLLength = 2048

var privateBlocks = func() []*net.IPNet {
	var blocks []*net.IPNet
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"127.0.0.0/8",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	} {
		_, block, _ := net.ParseCIDR(cidr)
		blocks = append(blocks, block)
	}
	return blocks
}()

// NormalizeURL trims raw, defaults the scheme to https and rejects anything
// that is not a plain http(s) URL. Loopback and private addresses are refused
// unless allowLocal is set.
func NormalizeURL(raw string, allowLocal bool) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	case len(raw) > maxURLLength:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidURL, maxURLLength)
	case strings.ContainsAny(raw, "<>\"'` "):
		return "", fmt.Errorf("%w: contains invalid characters", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !allowLocal && isLocal(host) {
		return "", fmt.Errorf("%w: local address %s", ErrInvalidURL, host)
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("%w: path traversal", ErrInvalidURL)
	}
	u.Fragment = ""
	return u.String(), nil
}

func isLocal(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || host == "0.0.0.0" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
