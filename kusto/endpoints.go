package kusto

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ingestPrefix is the host label prefix distinguishing the DM endpoint from
// the engine endpoint.
const ingestPrefix = "ingest-"

// federatedSuffix is a connection-string artifact that may trail the URL.
const federatedSuffix = ";fed=true"

// oneboxHost is a development host that never takes the ingest prefix.
const oneboxHost = "onebox.dev.kusto.windows.net"

// NormalizeEngineURL returns the engine (query) form of a cluster URL:
// the leading "ingest-" host label is stripped and any ";fed=true" suffix
// removed. Scheme, port and path are preserved. The operation is idempotent.
func NormalizeEngineURL(raw string) (string, error) {
	u, err := parseEndpoint(raw)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if !skipNormalization(host) && strings.HasPrefix(strings.ToLower(host), ingestPrefix) {
		setHost(u, host[len(ingestPrefix):])
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// NormalizeIngestionURL returns the DM (ingestion) form of a cluster URL:
// the "ingest-" host label is added when missing and any ";fed=true" suffix
// removed. Localhost, IP literals and the onebox development host are
// returned unchanged. The operation is idempotent.
func NormalizeIngestionURL(raw string) (string, error) {
	u, err := parseEndpoint(raw)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if !skipNormalization(host) && !strings.HasPrefix(strings.ToLower(host), ingestPrefix) {
		setHost(u, ingestPrefix+host)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if l := strings.ToLower(trimmed); strings.HasSuffix(l, federatedSuffix) {
		trimmed = trimmed[:len(trimmed)-len(federatedSuffix)]
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, ClientErrorf("invalid cluster endpoint %q: %v", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, ClientErrorf("cluster endpoint %q must be an absolute URL", raw)
	}
	return u, nil
}

// skipNormalization reports whether the host bypasses prefix handling:
// localhost, IP literals, and the onebox development cluster.
func skipNormalization(host string) bool {
	h := strings.ToLower(host)
	if h == "localhost" || h == oneboxHost {
		return true
	}
	return net.ParseIP(strings.Trim(h, "[]")) != nil
}

func setHost(u *url.URL, hostname string) {
	if port := u.Port(); port != "" {
		u.Host = fmt.Sprintf("%s:%s", hostname, port)
	} else {
		u.Host = hostname
	}
}
