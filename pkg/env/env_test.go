package env

import "testing"

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("WORKSHEETS_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", " console ")
	if v, ok := First("WORKSHEETS_LOG_FORMAT", "LOG_FORMAT"); !ok || v != "console" {
		t.Fatalf("expected console from fallback key, got %q %v", v, ok)
	}
	t.Setenv("WORKSHEETS_LOG_FORMAT", "json")
	if v, _ := First("WORKSHEETS_LOG_FORMAT", "LOG_FORMAT"); v != "json" {
		t.Fatalf("expected prefixed key to win, got %q", v)
	}
}

func TestGetFallback(t *testing.T) {
	t.Setenv("WORKSHEETS_MIGRATIONS_DIR", "   ")
	if got := Get("WORKSHEETS_MIGRATIONS_DIR", "pkg/migrate/migrations"); got != "pkg/migrate/migrations" {
		t.Fatalf("blank value should fall back, got %q", got)
	}
}
