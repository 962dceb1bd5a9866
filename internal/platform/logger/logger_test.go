package logger

import "testing"

func TestSanitizeKVs_RedactsSecretsAndHashesIdentities(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"llm_api_key", "sk-123",
		"session_id", "abc",
		"fingerprint", "f00d",
		"dangling",
	})
	if len(out) != 7 {
		t.Fatalf("len=%d want 7", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api key not redacted: %v", out[1])
	}
	hashed, _ := out[3].(string)
	if hashed == "abc" || len(hashed) != len("hash:")+12 {
		t.Fatalf("session id not hashed: %v", out[3])
	}
	if out[5] != "f00d" {
		t.Fatalf("plain value changed: %v", out[5])
	}
	if out[6] != "dangling" {
		t.Fatalf("dangling key dropped: %v", out)
	}
}

func TestNop(t *testing.T) {
	l := Nop().With("service", "Test")
	l.Info("hello", "k", "v")
	l.Sync()
}
