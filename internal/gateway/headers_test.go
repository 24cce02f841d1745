package gateway

import (
	"net/http"
	"testing"
)

func TestFilterHeaders(t *testing.T) {
	in := http.Header{}
	in.Set("Authorization", "Bearer forged")
	in.Set("Cookie", "session=abc")
	in.Set("User-Agent", "curl/8.0")
	in.Set("X-Custom", "1")
	in.Set("Accept", "application/json")
	in.Set("Content-Type", "application/json")
	in.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	in.Add("If-None-Match", `"a"`)
	in.Add("If-None-Match", `"b"`)

	out := filterHeaders(in)

	for _, dropped := range []string{"Authorization", "Cookie", "User-Agent", "X-Custom"} {
		if out.Get(dropped) != "" {
			t.Errorf("%s should be dropped", dropped)
		}
	}
	for _, kept := range []string{"Accept", "Content-Type", "Traceparent"} {
		if out.Get(kept) != in.Get(kept) {
			t.Errorf("%s = %q, want %q", kept, out.Get(kept), in.Get(kept))
		}
	}
	if got := out.Values("If-None-Match"); len(got) != 2 {
		t.Errorf("If-None-Match = %v", got)
	}
}
