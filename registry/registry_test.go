package registry

import (
	"regexp"
	"testing"

	"github.com/use-agent/harvest/models"
)

func TestRoute_RegisteredDomains(t *testing.T) {
	r := New()
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.zillow.com/homedetails/123-Main-St/456_zpid/", "zillow.com"},
		{"https://zillow.com/b/some-building", "zillow.com"},
		{"https://www.realtor.com/realestateandhomes-detail/1", "realtor.com"},
		{"https://www.redfin.com/CA/Oakland/1-Some-Ave-94601/home/1", "redfin.com"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			p := r.Route(tt.url)
			if p.Domain != tt.want {
				t.Errorf("Route(%q).Domain = %q, want %q", tt.url, p.Domain, tt.want)
			}
			if p.Generic() {
				t.Errorf("Route(%q) returned the generic profile", tt.url)
			}
		})
	}
}

func TestRoute_UnregisteredDomainGetsGeneric(t *testing.T) {
	r := New()
	for _, u := range []string{
		"https://tiny-local-broker.example.com/listing/9",
		"https://example.org/",
		"not a url at all",
	} {
		p := r.Route(u)
		if !p.Generic() {
			t.Errorf("Route(%q).Domain = %q, want generic", u, p.Domain)
		}
		if len(p.Strategies) != 1 || !p.HasStrategy(models.StrategyPattern) {
			t.Errorf("generic profile strategies = %v, want pattern only", p.Strategies)
		}
	}
}

func TestRegister_RejectsBadSelector(t *testing.T) {
	r := New()
	err := r.Register(&models.DomainProfile{
		Domain:     "broken.example",
		Strategies: []string{models.StrategySelector},
		Selectors:  map[string][]string{"price": {`[unclosed`}},
	})
	if err == nil {
		t.Fatal("expected selector validation error")
	}
}

func TestRegister_ReplacesProfile(t *testing.T) {
	r := New()
	custom := &models.DomainProfile{
		Domain:     "zillow.com",
		Strategies: []string{models.StrategyPattern},
		Patterns:   map[string][]*regexp.Regexp{"price": {regexp.MustCompile(`\$\d+`)}},
	}
	if err := r.Register(custom); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p := r.Route("https://www.zillow.com/x")
	if len(p.Strategies) != 1 || p.Strategies[0] != models.StrategyPattern {
		t.Errorf("replacement profile not returned, got strategies %v", p.Strategies)
	}
}

func TestHostname(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.Zillow.com/a/b", "zillow.com"},
		{"http://sub.redfin.com/x", "sub.redfin.com"},
		{"nonsense", ""},
	}
	for _, tt := range tests {
		if got := Hostname(tt.in); got != tt.want {
			t.Errorf("Hostname(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLayoutDrift(t *testing.T) {
	r := New()
	r.RecordLayout("zillow.com", 0xF0F0F0F0)
	if drifted, _ := r.LayoutDrifted("zillow.com", 0xF0F0F0F0); drifted {
		t.Error("identical layout reported drifted")
	}
	if drifted, _ := r.LayoutDrifted("never-seen.example", 0x1); drifted {
		t.Error("unknown domain reported drifted")
	}
}
