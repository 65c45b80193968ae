package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Session   SessionConfig
	Extract   ExtractConfig
	Recovery  RecoveryConfig
	Runner    RunnerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Planner   PlannerConfig
	Memory    MemoryConfig
	Persist   PersistConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// DefaultProxy is the default proxy URL for all sessions.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UserAgents is the rotation pool; one is picked per session.
	UserAgents []string
}

// SessionConfig controls one browser session / job attempt.
type SessionConfig struct {
	// AttemptCap is the hard wall-clock limit per attempt, independent of
	// the load-ladder timeout. Safety net against hangs.
	AttemptCap time.Duration // default: 90s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// DismissModals enables cookie-banner / interstitial dismissal before
	// strategies run.
	DismissModals bool // default: true

	// Stealth enables anti-detection JS injection.
	Stealth bool // default: true
}

// ExtractConfig controls strategy execution and merging.
type ExtractConfig struct {
	// ConfidenceFloor drops merged field values below this confidence.
	ConfidenceFloor float64 // default: 0.2

	// MinOverallConfidence is what an attempt must reach to be accepted.
	MinOverallConfidence float64 // default: 0.5

	// EnableVision toggles the vision strategy (higher cost).
	EnableVision bool // default: false

	// FieldImportance weights per-field confidence in the overall score.
	// Unlisted fields weigh 1.0.
	FieldImportance map[string]float64
}

// LadderEntry is one rung of the page-load ladder.
type LadderEntry struct {
	// Wait is the load-wait condition: "networkidle", "domstable",
	// "load" or "static" (plain HTTP fetch, no browser).
	Wait string

	// Timeout bounds this rung's page load.
	Timeout time.Duration
}

// RecoveryConfig controls retries and the per-domain circuit breaker.
type RecoveryConfig struct {
	// Ladder is the ordered list of load strategies tried across attempts.
	// default: networkidle/45s, domstable/30s, load/60s
	Ladder []LadderEntry

	// MaxAttempts bounds the ladder walk. default: 3
	MaxAttempts int

	// BackoffBase is the delay before the second attempt; it doubles per
	// attempt and is capped by BackoffMax. defaults: 1s, 30s
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// FailureThreshold is the consecutive-failure count that opens a
	// domain's circuit breaker. default: 5
	FailureThreshold int

	// Cooldown is how long an open breaker rejects jobs. default: 30m
	Cooldown time.Duration

	// StaticFallback appends a browserless HTTP rung after the ladder.
	StaticFallback bool // default: true
}

// RunnerConfig controls the concurrency manager.
type RunnerConfig struct {
	// MaxWorkers is the global bound on concurrent job attempts
	// (and therefore concurrent browser sessions). default: 8
	MaxWorkers int

	// QueueDepth is how many submissions may wait for a slot before new
	// ones are rejected with backpressure. default: 32
	QueueDepth int

	// DomainRPS is the sustained per-domain request rate. default: 0.5
	DomainRPS float64

	// DomainBurst is the per-domain token bucket size. default: 2
	DomainBurst int

	// DefaultJobTimeout applies when a job has no deadline. default: 90s
	DefaultJobTimeout time.Duration
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting on the HTTP surface.
// This is independent of the per-domain limiter inside the runner.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// PlannerConfig controls the external action-planner collaborator.
type PlannerConfig struct {
	// Enabled toggles planner consultation before extraction.
	Enabled bool // default: false

	// BaseURL is the planner endpoint, OpenAI-compatible chat API.
	BaseURL string

	// APIKey authenticates to the planner.
	APIKey string

	// Model names the planner model.
	Model string // default: "gpt-4o-mini"

	// Timeout bounds one planning call.
	Timeout time.Duration // default: 20s
}

// MemoryConfig controls the external vector-memory collaborator.
type MemoryConfig struct {
	// Enabled toggles past-flow lookup on ladder exhaustion.
	Enabled bool // default: false

	// BaseURL is the memory service endpoint.
	BaseURL string

	// Timeout bounds one lookup or store call.
	Timeout time.Duration // default: 5s
}

// PersistConfig controls outcome delivery to the persistence collaborator.
type PersistConfig struct {
	// WebhookURL receives a signed event per completed job. Empty disables
	// delivery (outcomes are still returned to the caller).
	WebhookURL string

	// Secret signs event bodies with HMAC-SHA256.
	Secret string
}

// CacheConfig controls the merged-record cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached records.
	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("HARVEST_HEADLESS", true),
			MaxPages:     envIntOr("HARVEST_MAX_PAGES", 10),
			DefaultProxy: os.Getenv("HARVEST_PROXY"),
			NoSandbox:    envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("HARVEST_BROWSER_BIN"),
			UserAgents:   envSliceOr("HARVEST_USER_AGENTS", defaultUserAgents()),
		},
		Session: SessionConfig{
			AttemptCap: envDurationOr("HARVEST_ATTEMPT_CAP", 90*time.Second),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			DismissModals: envBoolOr("HARVEST_DISMISS_MODALS", true),
			Stealth:       envBoolOr("HARVEST_STEALTH", true),
		},
		Extract: ExtractConfig{
			ConfidenceFloor:      envFloatOr("HARVEST_CONFIDENCE_FLOOR", 0.2),
			MinOverallConfidence: envFloatOr("HARVEST_MIN_CONFIDENCE", 0.5),
			EnableVision:         envBoolOr("HARVEST_VISION", false),
		},
		Recovery: RecoveryConfig{
			Ladder:           envLadderOr("HARVEST_LOAD_LADDER", defaultLadder()),
			MaxAttempts:      envIntOr("HARVEST_MAX_ATTEMPTS", 3),
			BackoffBase:      envDurationOr("HARVEST_BACKOFF_BASE", 1*time.Second),
			BackoffMax:       envDurationOr("HARVEST_BACKOFF_MAX", 30*time.Second),
			FailureThreshold: envIntOr("HARVEST_FAILURE_THRESHOLD", 5),
			Cooldown:         envDurationOr("HARVEST_COOLDOWN", 30*time.Minute),
			StaticFallback:   envBoolOr("HARVEST_STATIC_FALLBACK", true),
		},
		Runner: RunnerConfig{
			MaxWorkers:        envIntOr("HARVEST_MAX_WORKERS", 8),
			QueueDepth:        envIntOr("HARVEST_QUEUE_DEPTH", 32),
			DomainRPS:         envFloatOr("HARVEST_DOMAIN_RPS", 0.5),
			DomainBurst:       envIntOr("HARVEST_DOMAIN_BURST", 2),
			DefaultJobTimeout: envDurationOr("HARVEST_JOB_TIMEOUT", 90*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 5.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 10),
		},
		Planner: PlannerConfig{
			Enabled: envBoolOr("HARVEST_PLANNER_ENABLED", false),
			BaseURL: os.Getenv("HARVEST_PLANNER_URL"),
			APIKey:  os.Getenv("HARVEST_PLANNER_KEY"),
			Model:   envOr("HARVEST_PLANNER_MODEL", "gpt-4o-mini"),
			Timeout: envDurationOr("HARVEST_PLANNER_TIMEOUT", 20*time.Second),
		},
		Memory: MemoryConfig{
			Enabled: envBoolOr("HARVEST_MEMORY_ENABLED", false),
			BaseURL: os.Getenv("HARVEST_MEMORY_URL"),
			Timeout: envDurationOr("HARVEST_MEMORY_TIMEOUT", 5*time.Second),
		},
		Persist: PersistConfig{
			WebhookURL: os.Getenv("HARVEST_PERSIST_WEBHOOK"),
			Secret:     os.Getenv("HARVEST_PERSIST_SECRET"),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HARVEST_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "json"),
		},
	}
}

func defaultLadder() []LadderEntry {
	return []LadderEntry{
		{Wait: "networkidle", Timeout: 45 * time.Second},
		{Wait: "domstable", Timeout: 30 * time.Second},
		{Wait: "load", Timeout: 60 * time.Second},
	}
}

// defaultUserAgents is the rotation pool used when HARVEST_USER_AGENTS is
// unset. Recent Chrome and Firefox on the three desktop platforms; keep
// these roughly in step with what the bundled Chromium reports.
func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	}
}

// envLadderOr parses "networkidle:45s,domstable:30s,load:60s".
func envLadderOr(key string, fallback []LadderEntry) []LadderEntry {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var ladder []LadderEntry
	for _, part := range strings.Split(v, ",") {
		wait, timeout, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		d, err := time.ParseDuration(timeout)
		if err != nil {
			continue
		}
		switch wait {
		case "networkidle", "domstable", "load", "static":
			ladder = append(ladder, LadderEntry{Wait: wait, Timeout: d})
		}
	}
	if len(ladder) == 0 {
		return fallback
	}
	return ladder
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
