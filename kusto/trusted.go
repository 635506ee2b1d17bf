package kusto

import (
	"net/url"
	"strings"
	"sync"
)

// wellKnownSuffixes lists the host suffixes of the managed clouds. A cluster
// endpoint must match one of these, an explicitly added host, or the
// override policy.
var wellKnownSuffixes = []string{
	".kusto.windows.net",
	".kusto.chinacloudapi.cn",
	".kusto.usgovcloudapi.net",
	".kusto.core.eaglex.ic.gov",
	".kusto.core.microsoft.scloud",
	".kusto.data.microsoft.com",
	".kusto.fabric.microsoft.com",
	".kusto.azuresynapse.net",
}

// TrustedEndpoints validates that cluster endpoints belong to a known
// service domain before any token is sent to them. Safe for concurrent use.
type TrustedEndpoints struct {
	mu       sync.RWMutex
	suffixes []string
	hosts    map[string]struct{}
	override func(host string) bool
}

var defaultTrusted = newTrustedEndpoints()

// DefaultTrusted returns the process-wide registry consulted by NewClient.
func DefaultTrusted() *TrustedEndpoints { return defaultTrusted }

func newTrustedEndpoints() *TrustedEndpoints {
	t := &TrustedEndpoints{}
	t.reset()
	return t
}

func (t *TrustedEndpoints) reset() {
	t.suffixes = append([]string(nil), wellKnownSuffixes...)
	t.hosts = make(map[string]struct{})
	t.override = nil
}

// Reset restores the built-in suffix list, dropping additions and any
// override. Intended for tests.
func (t *TrustedEndpoints) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// AddTrustedHosts extends the registry. Entries starting with "*." are
// treated as suffix matches; anything else must match the host exactly.
// Matching is case-insensitive.
func (t *TrustedEndpoints) AddTrustedHosts(hosts ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if strings.HasPrefix(h, "*.") {
			t.suffixes = append(t.suffixes, h[1:])
			continue
		}
		t.hosts[h] = struct{}{}
	}
}

// SetOverride installs a policy consulted instead of the lists for every
// host. Passing nil removes the override.
func (t *TrustedEndpoints) SetOverride(policy func(host string) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.override = policy
}

// Validate checks that the endpoint's host is trusted. Loopback hosts are
// always accepted so local emulators work without configuration.
func (t *TrustedEndpoints) Validate(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return ClientErrorf("invalid endpoint %q", endpoint)
	}
	host := strings.ToLower(u.Hostname())

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.override != nil {
		if t.override(host) {
			return nil
		}
		return ClientErrorf("endpoint %q rejected by override policy", host)
	}
	if skipNormalization(host) {
		return nil
	}
	if _, ok := t.hosts[host]; ok {
		return nil
	}
	for _, suffix := range t.suffixes {
		if strings.HasSuffix(host, suffix) {
			return nil
		}
	}
	return ClientErrorf("endpoint %q is not a trusted service domain; use AddTrustedHosts if it is yours", host)
}
