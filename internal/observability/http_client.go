package observability

import (
	"net/http"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// tracePropagationTargets lists the upstream APIs that receive outgoing trace
// headers: Meta's Graph API, Stripe, and Resend.
var tracePropagationTargets = []string{
	"graph.facebook.com",
	"api.stripe.com",
	"api.resend.com",
}

// NewHTTPClient returns a client whose requests carry sentry spans and trace
// propagation for the known upstreams.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: WrapRoundTripper(http.DefaultTransport),
		Timeout:   timeout,
	}
}

func WrapRoundTripper(base http.RoundTripper) http.RoundTripper {
	return sentryhttpclient.NewSentryRoundTripper(
		base,
		sentryhttpclient.WithTracePropagationTargets(tracePropagationTargets),
	)
}
