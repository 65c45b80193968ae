package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/use-agent/harvest/models"
)

func TestFailureCounter_OpensAtThreshold(t *testing.T) {
	fc := NewFailureCounter(3, 10*time.Minute)

	for i := 0; i < 2; i++ {
		fc.RecordFailure("slow.example")
		if err := fc.Allow("slow.example"); err != nil {
			t.Fatalf("breaker open after %d failures, threshold is 3", i+1)
		}
	}
	fc.RecordFailure("slow.example")

	err := fc.Allow("slow.example")
	if err == nil {
		t.Fatal("breaker should be open at the threshold")
	}
	var ee *models.ExtractError
	if !errors.As(err, &ee) || ee.Kind != models.ErrKindDomainCooldown {
		t.Errorf("error kind = %v, want DOMAIN_COOLDOWN", err)
	}

	// Unrelated domains are unaffected.
	if err := fc.Allow("fine.example"); err != nil {
		t.Errorf("unrelated domain blocked: %v", err)
	}
}

func TestFailureCounter_OneSuccessResets(t *testing.T) {
	fc := NewFailureCounter(3, 10*time.Minute)
	for i := 0; i < 3; i++ {
		fc.RecordFailure("flaky.example")
	}
	fc.RecordSuccess("flaky.example")

	if err := fc.Allow("flaky.example"); err != nil {
		t.Errorf("breaker still open after success: %v", err)
	}
	if n := fc.Failures("flaky.example"); n != 0 {
		t.Errorf("consecutive failures = %d after success, want 0", n)
	}
}

func TestFailureCounter_CooldownMonotonicWhileFailing(t *testing.T) {
	fc := NewFailureCounter(1, 10*time.Minute)
	clock := time.Now()
	fc.now = func() time.Time { return clock }

	fc.RecordFailure("down.example")
	first := fc.domains["down.example"].cooldownUntil

	// More failures later must only push the window out, never pull it in.
	clock = clock.Add(3 * time.Minute)
	fc.RecordFailure("down.example")
	second := fc.domains["down.example"].cooldownUntil
	if second.Before(first) {
		t.Errorf("cooldown-until moved backwards: %v -> %v", first, second)
	}
}

func TestFailureCounter_CooldownExpires(t *testing.T) {
	fc := NewFailureCounter(1, 10*time.Minute)
	clock := time.Now()
	fc.now = func() time.Time { return clock }

	fc.RecordFailure("down.example")
	if err := fc.Allow("down.example"); err == nil {
		t.Fatal("breaker should be open")
	}

	clock = clock.Add(11 * time.Minute)
	if err := fc.Allow("down.example"); err != nil {
		t.Errorf("breaker still open after cooldown elapsed: %v", err)
	}
}

func TestFailureCounter_Open(t *testing.T) {
	fc := NewFailureCounter(1, time.Hour)
	fc.RecordFailure("a.example")
	fc.RecordSuccess("b.example")

	open := fc.Open()
	if len(open) != 1 || open["a.example"] != 1 {
		t.Errorf("Open() = %v, want only a.example", open)
	}
}
