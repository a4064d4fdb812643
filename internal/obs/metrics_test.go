package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                          "/",
		"/metrics":                                  "/metrics",
		"/documents":                                "/documents",
		"/documents/01hxk5d6g6d6g6d6g6d6g6d6g6":      "/documents/:id",
		"/documents/01hxk5d6g6d6g6d6g6d6g6d6g6/audit": "/documents/:id/audit",
		"/sign/aVeryLongOpaqueBase64UrlShareToken12345": "/sign/:id",
		"/documents?status=pendentes":               "/documents",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
