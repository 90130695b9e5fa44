package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("ADMIN_PASSWORD", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.AdminPassword != "" {
		t.Fatalf("expected empty ADMIN_PASSWORD when unset, got %q", cfg.AdminPassword)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CURRENCY", "")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Currency != "PLN" {
		t.Fatalf("expected default currency PLN, got %q", cfg.Currency)
	}
	if cfg.ReportCacheTTLSeconds != 300 {
		t.Fatalf("expected report cache TTL fallback 300, got %d", cfg.ReportCacheTTLSeconds)
	}
}
