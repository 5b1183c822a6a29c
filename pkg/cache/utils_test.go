package cache

import "testing"

func TestGenerateKey(t *testing.T) {
	if got := GenerateKey("auth", "token"); got != "auth:token" {
		t.Fatalf("key = %q, want auth:token", got)
	}
	if got := GenerateKey("fetch:progress", "job-1"); got != "fetch:progress:job-1" {
		t.Fatalf("key = %q, want fetch:progress:job-1", got)
	}
}
