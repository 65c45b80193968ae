package config

import (
	"strings"
	"testing"
)

func TestLoad_SeedsUserAgentPool(t *testing.T) {
	cfg := Load()
	if len(cfg.Browser.UserAgents) == 0 {
		t.Fatal("default config has no user agents to rotate")
	}
	for _, ua := range cfg.Browser.UserAgents {
		if !strings.HasPrefix(ua, "Mozilla/5.0 ") {
			t.Errorf("user agent %q does not look like a browser UA", ua)
		}
	}
}

func TestLoad_UserAgentOverride(t *testing.T) {
	t.Setenv("HARVEST_USER_AGENTS", "ua-one, ua-two")
	cfg := Load()
	if len(cfg.Browser.UserAgents) != 2 || cfg.Browser.UserAgents[0] != "ua-one" {
		t.Errorf("UserAgents = %v, want the env override split on commas", cfg.Browser.UserAgents)
	}
}
