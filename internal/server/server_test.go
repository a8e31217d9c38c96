package server

import "testing"

func TestShouldSkipJWT(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/healthz", want: true},
		{path: "/api/auth/login", want: true},
		{path: "/api/auth/refresh", want: false},
		{path: "/webhooks/messaging/t-1", want: true},
		{path: "/webhooks/messaging/t-1/twilio", want: true},
		{path: "/docs", want: true},
		{path: "/api/tenants/t-1/conversations", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipJWT(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}
