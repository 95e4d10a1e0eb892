package observability

import (
	"net/http"
	"net/url"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

var defaultPropagationTargets = []string{
	"api.stripe.com",
}

// WrapRoundTripper traces outbound requests and forwards sentry trace headers
// to the stripe api and any extra hosts given.
func WrapRoundTripper(base http.RoundTripper, extraHosts ...string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return sentryhttpclient.NewSentryRoundTripper(
		base,
		sentryhttpclient.WithTracePropagationTargets(PropagationTargets(extraHosts...)),
	)
}

// NewHTTPClient returns a traced client. extraHosts may be bare hosts or URLs.
func NewHTTPClient(timeout time.Duration, extraHosts ...string) *http.Client {
	client := &http.Client{
		Transport: WrapRoundTripper(http.DefaultTransport, extraHosts...),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}

// PropagationTargets returns the default targets plus the hosts of extra.
func PropagationTargets(extra ...string) []string {
	targets := append([]string(nil), defaultPropagationTargets...)
	seen := make(map[string]struct{}, len(targets)+len(extra))
	for _, target := range targets {
		seen[target] = struct{}{}
	}
	for _, raw := range extra {
		host := raw
		if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
			host = parsed.Hostname()
		}
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		targets = append(targets, host)
	}
	return targets
}
