// SPDX-License-Identifier: MIT
package dsp

import (
	"errors"
	"math"
	"testing"
)

func mustParams(t *testing.T, st StageType) Params {
	t.Helper()
	p, err := DefaultParams(st)
	if err != nil {
		t.Fatalf("DefaultParams(%v) error = %v", st, err)
	}
	return p
}

func TestAddRemoveStages(t *testing.T) {
	cfg := NewConfig(48000)

	for i, st := range []StageType{LPF, PEQ, GainStage} {
		idx, err := cfg.AddStage(0, mustParams(t, st), -1, st.String())
		if err != nil || idx != i {
			t.Fatalf("AddStage(%v) = %d, %v", st, idx, err)
		}
	}
	// Insert at the front.
	if idx, err := cfg.AddStage(0, mustParams(t, HPF), 0, "hp"); err != nil || idx != 0 {
		t.Fatalf("insert = %d, %v", idx, err)
	}

	got := make([]StageType, 0, 4)
	for _, s := range cfg.Channels[0].Active() {
		got = append(got, s.Type())
	}
	want := []StageType{HPF, LPF, PEQ, GainStage}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stages = %v, want %v", got, want)
		}
	}

	if err := cfg.RemoveStage(0, 1); err != nil {
		t.Fatalf("RemoveStage() error = %v", err)
	}
	if cfg.Channels[0].StageCount != 3 || cfg.Channels[0].Stages[1].Type() != PEQ {
		t.Errorf("after remove: %d stages, [1] = %v", cfg.Channels[0].StageCount, cfg.Channels[0].Stages[1].Type())
	}
	if cfg.Channels[0].Stages[3].Params != nil {
		t.Error("vacated slot not cleared")
	}
}

func TestStageErrors(t *testing.T) {
	cfg := NewConfig(48000)
	peq := mustParams(t, PEQ)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"add bad channel", func() error { _, err := cfg.AddStage(MaxChannels, peq, -1, ""); return err }(), ErrChannelRange},
		{"add nil params", func() error { _, err := cfg.AddStage(0, nil, -1, ""); return err }(), ErrStageType},
		{"add mislabeled biquad", func() error { _, err := cfg.AddStage(0, Biquad{Kind: Limiter}, -1, ""); return err }(), ErrStageType},
		{"remove missing", cfg.RemoveStage(0, 0), ErrStageRange},
		{"enable missing", cfg.SetStageEnabled(1, 3, true), ErrStageRange},
		{"reorder bad channel", cfg.ReorderStages(-1, nil), ErrChannelRange},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, tt.err, tt.want)
		}
	}

	if _, err := DefaultParams(stageTypeCount); !errors.Is(err, ErrStageType) {
		t.Errorf("DefaultParams(invalid) err = %v", err)
	}
}

func TestStageFull(t *testing.T) {
	cfg := NewConfig(48000)
	for range MaxStages {
		if _, err := cfg.AddStage(2, mustParams(t, GainStage), -1, ""); err != nil {
			t.Fatalf("AddStage() error = %v", err)
		}
	}
	if _, err := cfg.AddStage(2, mustParams(t, GainStage), -1, ""); !errors.Is(err, ErrStageFull) {
		t.Errorf("overflow err = %v, want ErrStageFull", err)
	}
}

func TestReorderStages(t *testing.T) {
	cfg := NewConfig(48000)
	for _, st := range []StageType{LPF, HPF, Notch} {
		if _, err := cfg.AddStage(1, mustParams(t, st), -1, st.String()); err != nil {
			t.Fatal(err)
		}
	}

	for _, bad := range [][]int{{0, 1}, {0, 0, 1}, {0, 1, 3}, {-1, 0, 1}} {
		if err := cfg.ReorderStages(1, bad); !errors.Is(err, ErrBadOrder) {
			t.Errorf("ReorderStages(%v) err = %v, want ErrBadOrder", bad, err)
		}
	}

	if err := cfg.ReorderStages(1, []int{2, 0, 1}); err != nil {
		t.Fatalf("ReorderStages() error = %v", err)
	}
	want := []string{"notch", "lpf", "hpf"}
	for i, s := range cfg.Channels[1].Active() {
		if s.Label != want[i] {
			t.Errorf("stage %d = %q, want %q", i, s.Label, want[i])
		}
	}
}

func TestCoefficientsDerived(t *testing.T) {
	cfg := NewConfig(48000)
	p := Biquad{Kind: PEQ, Frequency: 1000, GainDB: 6, Q: 1}
	if _, err := cfg.AddStage(0, p, -1, "bump"); err != nil {
		t.Fatal(err)
	}
	ch := &cfg.Channels[0]

	if got := ch.ResponseDB(1000, 48000); math.Abs(got-6) > 0.05 {
		t.Errorf("PEQ gain at center = %v dB, want 6", got)
	}
	if got := ch.ResponseDB(20, 48000); math.Abs(got) > 0.1 {
		t.Errorf("PEQ gain far below center = %v dB, want ~0", got)
	}

	if err := cfg.SetStageEnabled(0, 0, false); err != nil {
		t.Fatal(err)
	}
	if got := ch.ResponseDB(1000, 48000); got != 0 {
		t.Errorf("disabled stage response = %v, want 0", got)
	}
}

func TestDesignFrequencyClamped(t *testing.T) {
	cfg := NewConfig(48000)
	// Above Nyquist and at zero the designers would return all-zero
	// coefficients; the clamp keeps them usable.
	for _, f := range []float64{0, -10, 30000} {
		idx, err := cfg.AddStage(3, Biquad{Kind: LPF, Frequency: f}, -1, "")
		if err != nil {
			t.Fatal(err)
		}
		c, _ := cfg.Channels[3].Stages[idx].Coefficients()
		if c.B0 == 0 && c.B1 == 0 && c.B2 == 0 {
			t.Errorf("frequency %v produced zero coefficients", f)
		}
	}
}

func TestGainStageAndSampleRate(t *testing.T) {
	cfg := NewConfig(0)
	if cfg.SampleRate != DefaultSampleRate {
		t.Fatalf("SampleRate = %v", cfg.SampleRate)
	}
	if _, err := cfg.AddStage(5, Gain{GainDB: -6}, -1, "trim"); err != nil {
		t.Fatal(err)
	}
	g := cfg.Channels[5].Stages[0].Params.(Gain)
	if math.Abs(g.Linear-0.501187) > 1e-5 {
		t.Errorf("linear gain = %v", g.Linear)
	}

	if _, err := cfg.AddStage(5, Biquad{Kind: HPF, Frequency: 100}, -1, ""); err != nil {
		t.Fatal(err)
	}
	before, _ := cfg.Channels[5].Stages[1].Coefficients()
	cfg.SetSampleRate(96000)
	after, _ := cfg.Channels[5].Stages[1].Coefficients()
	if before == after {
		t.Error("SetSampleRate did not recompute coefficients")
	}
	if cfg.Stages() != 2 {
		t.Errorf("Stages() = %d", cfg.Stages())
	}
}

func TestLabelTruncated(t *testing.T) {
	cfg := NewConfig(48000)
	idx, _ := cfg.AddStage(0, Gain{}, -1, "a-very-long-stage-label")
	if l := cfg.Channels[0].Stages[idx].Label; len(l) > MaxLabelLen {
		t.Errorf("label %q longer than %d", l, MaxLabelLen)
	}
}

func TestParseStageType(t *testing.T) {
	for st := range stageTypeCount {
		got, err := ParseStageType(st.String())
		if err != nil || got != st {
			t.Errorf("ParseStageType(%q) = %v, %v", st.String(), got, err)
		}
	}
	if _, err := ParseStageType("fir"); err == nil {
		t.Error("ParseStageType accepted an unsupported type")
	}
}
