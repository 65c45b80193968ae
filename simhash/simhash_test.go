package simhash

import (
	"strings"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	text := "div span a img div section footer"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("identical input produced different fingerprints")
	}
}

func TestFingerprint_Empty(t *testing.T) {
	if fp := Fingerprint(""); fp != 0 {
		t.Errorf("empty input should fingerprint to 0, got %064b", fp)
	}
	if fp := Fingerprint("  \t\n "); fp != 0 {
		t.Errorf("whitespace-only input should fingerprint to 0, got %064b", fp)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFingerprintDOM_IgnoresText(t *testing.T) {
	a := `<html><body><div class="x"><span>price $100</span></div></body></html>`
	b := `<html><body><div class="y"><span>completely other words</span></div></body></html>`
	if FingerprintDOM(a) != FingerprintDOM(b) {
		t.Error("same tag structure with different text should fingerprint identically")
	}
}

func TestFingerprintDOM_DetectsRestructure(t *testing.T) {
	old := `<html><body>` + strings.Repeat(`<div><span><a></a></span></div>`, 30) + `</body></html>`
	redesign := `<html><body>` + strings.Repeat(`<section><article><ul><li></li></ul></article></section>`, 30) + `</body></html>`
	d := Distance(FingerprintDOM(old), FingerprintDOM(redesign))
	if d <= driftThreshold {
		t.Errorf("redesigned layout distance %d, want > %d", d, driftThreshold)
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()

	if drifted, _ := tr.Drifted("zillow.com", 0xABCD); drifted {
		t.Error("unknown domain must not report drift")
	}

	tr.Record("zillow.com", 0xABCD)
	if drifted, d := tr.Drifted("zillow.com", 0xABCD); drifted || d != 0 {
		t.Errorf("same fingerprint drifted=%v distance=%d", drifted, d)
	}

	// Flip more bits than the threshold allows.
	far := uint64(0xABCD) ^ (1<<25 - 1)
	if drifted, _ := tr.Drifted("zillow.com", far); !drifted {
		t.Error("distant fingerprint should report drift")
	}
}
