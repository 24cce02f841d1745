package gateway

import "net/http"

// allowedHeaders are the caller headers forwarded to the API. Credentials
// (Authorization, Cookie) are never forwarded; the session is attached by the
// authenticating transport.
var allowedHeaders = map[string]bool{
	"Accept":          true,
	"Accept-Encoding": true,
	"Accept-Language": true,
	"Content-Type":    true,
	"If-Match":        true,
	"If-None-Match":   true,
	"X-Request-Id":    true,

	// W3C Trace Context for correlating gateway and API logs
	"Traceparent": true,
	"Tracestate":  true,
}

// filterHeaders keeps only allowed headers. Keys are expected in canonical form.
func filterHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for key, values := range h {
		if allowedHeaders[key] {
			out[key] = values
		}
	}
	return out
}
