package partial

import (
	"testing"
	"time"
)

func TestFeatureGateDisabledGlobally(t *testing.T) {
	g := NewFeatureGate(StaticFlagSource{Config: FlagConfig{Enabled: false}})
	enabled, _ := g.IsEnabledForSession("session-1")
	if enabled {
		t.Fatal("expected disabled global flag to disable every session")
	}
}

func TestFeatureGateFullRollout(t *testing.T) {
	g := NewFeatureGate(StaticFlagSource{Config: FlagConfig{Enabled: true, RolloutPercentage: 100}})
	enabled, _ := g.IsEnabledForSession("session-1")
	if !enabled {
		t.Fatal("expected 100% rollout to enable every session")
	}
}

func TestFeatureGateVerdictIsSticky(t *testing.T) {
	g := NewFeatureGate(StaticFlagSource{Config: FlagConfig{
		Enabled: true, RolloutPercentage: 50, MinStabilityThreshold: 0.85, MaxBufferTimeout: 5 * time.Second,
	}})

	first, cfg1 := g.IsEnabledForSession("sticky-session")
	second, cfg2 := g.IsEnabledForSession("sticky-session")

	if first != second {
		t.Fatal("expected the same session to receive the same verdict on repeated calls")
	}
	if cfg1 != cfg2 {
		t.Fatal("expected the cached config snapshot to be returned unchanged")
	}
}

func TestFlagConfigValidate(t *testing.T) {
	valid := FlagConfig{RolloutPercentage: 50, MinStabilityThreshold: 0.85, MaxBufferTimeout: 5 * time.Second}
	if !valid.Validate() {
		t.Fatal("expected valid config to pass validation")
	}

	invalidRollout := valid
	invalidRollout.RolloutPercentage = 150
	if invalidRollout.Validate() {
		t.Fatal("expected out-of-range rollout percentage to fail validation")
	}

	invalidStability := valid
	invalidStability.MinStabilityThreshold = 0.5
	if invalidStability.Validate() {
		t.Fatal("expected out-of-range stability threshold to fail validation")
	}

	invalidTimeout := valid
	invalidTimeout.MaxBufferTimeout = time.Second
	if invalidTimeout.Validate() {
		t.Fatal("expected too-short buffer timeout to fail validation")
	}
}
