package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/pkg/types"
)

func TestDictation_StartStopWithoutSpeech(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, registry.Candidate{
		Ref: "notes", Visible: true, Value: "keep me",
		Signals: []registry.Signal{{Provenance: registry.ProvenanceLabelFor, Text: "Notes"}},
	})
	w := registry.NewMemoryWriter()
	d := NewDictation(DictationConfig{Registry: reg, Writer: w})

	if err := d.Start("Notes"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := d.Stop()

	if res.Transcript != "" {
		t.Errorf("Transcript = %q, want empty", res.Transcript)
	}
	if res.Reason != ReasonStopped || !res.Bound {
		t.Errorf("unexpected result %+v", res)
	}
	if n := len(w.Writes()); n != 0 {
		t.Errorf("writes = %d, want 0", n)
	}
	if f, _ := reg.Lookup("Notes"); f.Value != "keep me" {
		t.Errorf("Notes = %q, want untouched", f.Value)
	}
	if d.State() != StateIdle {
		t.Errorf("State = %s, want idle", d.State())
	}
}

func TestDictation_FinalsAccumulateAndSilenceFinalizes(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("phone", "Phone number"))
	w := registry.NewMemoryWriter()
	out := newResults()
	d := NewDictation(DictationConfig{
		Registry: reg,
		Writer:   w,
		Silence:  30 * time.Millisecond,
		OnFinal:  out.add,
	})

	if err := d.Start("Phone number"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx := context.Background()
	d.HandleTranscript(ctx, types.Transcript{Text: "five five"})
	d.HandleTranscript(ctx, final("five five five", 0.8))
	d.HandleTranscript(ctx, final("one two three four", 0.6))

	res := out.wait(t)
	if res.Reason != ReasonSilence {
		t.Errorf("Reason = %s, want silence", res.Reason)
	}
	if res.Transcript != "5551234" {
		t.Errorf("Transcript = %q, want 5551234", res.Transcript)
	}
	if res.Confidence < 0.69 || res.Confidence > 0.71 {
		t.Errorf("Confidence = %v, want 0.7", res.Confidence)
	}
	if v, _ := w.Value("Phone number"); v != "5551234" {
		t.Errorf("written value = %q", v)
	}
	if f, _ := reg.Lookup("Phone number"); f.Value != "5551234" {
		t.Errorf("registry value = %q", f.Value)
	}
	if d.State() != StateIdle {
		t.Errorf("State = %s, want idle", d.State())
	}
}

func TestDictation_EmptyNormalisedChunkKeepsValue(t *testing.T) {
	t.Parallel()

	phone := labelled("phone", "Phone number")
	phone.Value = "5551234"
	reg := newTestRegistry(t, phone)
	w := registry.NewMemoryWriter()
	out := newResults()
	d := NewDictation(DictationConfig{
		Registry: reg,
		Writer:   w,
		Silence:  30 * time.Millisecond,
		OnFinal:  out.add,
	})
	if err := d.Start("Phone number"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.HandleTranscript(context.Background(), final("um hmm", 0.9))
	out.wait(t)

	if v, ok := w.Value("Phone number"); ok {
		t.Errorf("written value = %q, want no write", v)
	}
	if f, _ := reg.Lookup("Phone number"); f.Value != "5551234" {
		t.Errorf("registry value = %q, want 5551234", f.Value)
	}
}

func TestDictation_NewFinalRearmsSilence(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("notes", "Notes"))
	out := newResults()
	d := NewDictation(DictationConfig{
		Registry: reg,
		Writer:   registry.NewMemoryWriter(),
		Silence:  80 * time.Millisecond,
		OnFinal:  out.add,
	})
	if err := d.Start("Notes"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx := context.Background()
	d.HandleTranscript(ctx, final("first part", 0))
	time.Sleep(40 * time.Millisecond)
	d.HandleTranscript(ctx, final("second part", 0))

	res := out.wait(t)
	if res.Transcript != "First part second part" {
		t.Errorf("Transcript = %q", res.Transcript)
	}
	if res.Confidence != defaultConfidence {
		t.Errorf("Confidence = %v, want default %v", res.Confidence, defaultConfidence)
	}
	time.Sleep(100 * time.Millisecond)
	if n := out.count(); n != 1 {
		t.Errorf("OnFinal calls = %d, want 1", n)
	}
}

func TestDictation_UnboundLabelWritesNothing(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("notes", "Notes"))
	w := registry.NewMemoryWriter()
	d := NewDictation(DictationConfig{Registry: reg, Writer: w})

	if err := d.Start("Contact email"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.HandleTranscript(context.Background(), final("Ada at example dot com", 0.9))
	res := d.Stop()

	if res.Bound {
		t.Error("expected unbound result")
	}
	if res.Transcript != "ada@example.com" {
		t.Errorf("Transcript = %q, want email formatting from the label", res.Transcript)
	}
	if n := len(w.Writes()); n != 0 {
		t.Errorf("writes = %d, want 0", n)
	}
}

func TestDictation_CaseInsensitiveLabel(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("notes", "Notes"))
	d := NewDictation(DictationConfig{Registry: reg, Writer: registry.NewMemoryWriter()})
	if err := d.Start("notes"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()
	if d.Label() != "Notes" {
		t.Errorf("Label = %q, want Notes", d.Label())
	}
}

func TestDictation_InterimOnlyOnStop(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("notes", "Notes"))
	w := registry.NewMemoryWriter()
	d := NewDictation(DictationConfig{Registry: reg, Writer: w})

	if err := d.Start("Notes"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.HandleTranscript(context.Background(), types.Transcript{Text: "half a thought"})
	res := d.Stop()

	if res.Transcript != "Half a thought" {
		t.Errorf("Transcript = %q", res.Transcript)
	}
	if n := len(w.Writes()); n != 0 {
		t.Errorf("interim text was written %d times", n)
	}
}

func TestDictation_StartWhileActive(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("notes", "Notes"))
	d := NewDictation(DictationConfig{Registry: reg, Writer: registry.NewMemoryWriter()})
	if err := d.Start("Notes"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()
	if err := d.Start("Notes"); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start = %v, want ErrSessionActive", err)
	}
}

func TestDictation_IgnoresChunksWhenIdle(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("notes", "Notes"))
	w := registry.NewMemoryWriter()
	d := NewDictation(DictationConfig{Registry: reg, Writer: w})
	d.HandleTranscript(context.Background(), final("stray", 1))
	if n := len(w.Writes()); n != 0 {
		t.Errorf("writes = %d, want 0", n)
	}
}

func TestDictation_Checkbox(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		checked bool
		said    []string
		want    string
	}{
		{name: "explicit yes", checked: false, said: []string{"yes"}, want: "true"},
		{name: "explicit uncheck", checked: true, said: []string{"uncheck it"}, want: "false"},
		{name: "toggle", checked: false, said: []string{"fever"}, want: "true"},
		{name: "toggle is stable across chunks", checked: true, said: []string{"fever", "please"}, want: "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := newTestRegistry(t, registry.Candidate{
				Ref: "fever", Visible: true, Control: registry.ControlCheckbox, Checked: tt.checked,
				Signals: []registry.Signal{{Provenance: registry.ProvenanceAriaLabel, Text: "Fever"}},
			})
			w := registry.NewMemoryWriter()
			d := NewDictation(DictationConfig{Registry: reg, Writer: w})
			if err := d.Start("Fever"); err != nil {
				t.Fatalf("Start: %v", err)
			}
			for _, s := range tt.said {
				d.HandleTranscript(context.Background(), final(s, 0.9))
			}
			d.Stop()

			if v, _ := w.Value("Fever"); v != tt.want {
				t.Errorf("written = %q, want %q", v, tt.want)
			}
			if f, _ := reg.Lookup("Fever"); f.Value != tt.want {
				t.Errorf("registry value = %q, want %q", f.Value, tt.want)
			}
		})
	}
}

func TestDictation_Keywords(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, labelled("dob", "Date of birth"))
	d := NewDictation(DictationConfig{Registry: reg, Writer: registry.NewMemoryWriter()})
	if err := d.Start("Date of birth"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	kw := d.Keywords()
	if len(kw) != 2 || kw[0].Keyword != "Date" || kw[1].Keyword != "birth" {
		t.Errorf("Keywords = %+v", kw)
	}
}
