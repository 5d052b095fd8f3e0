package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/formscribe/pkg/types"
)

func sig(p Provenance, text string) []Signal { return []Signal{{Provenance: p, Text: text}} }

func newTestRegistry(t *testing.T, cands ...Candidate) *Registry {
	t.Helper()
	r := New(SurfaceFunc(func(context.Context) ([]Candidate, error) { return cands, nil }))
	if _, err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return r
}

func TestDiscover_BuildsFields(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t,
		Candidate{Ref: "a", Visible: true, NativeType: "email", Signals: sig(ProvenanceWrappingLabel, "*Email:")},
		Candidate{Ref: "b", Visible: false, Signals: sig(ProvenanceLabelFor, "Hidden")},
		Candidate{Ref: "c", Visible: true, Signals: sig(ProvenancePlaceholder, "Phone number")},
		Candidate{Ref: "d", Visible: true, Control: ControlCheckbox, Checked: true, Signals: sig(ProvenanceSibling, "Subscribe")},
		Candidate{Ref: "e", Visible: true, Signals: sig(ProvenanceLabelFor, "Submit")},
	)

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	email, ok := r.Lookup("Email")
	if !ok {
		t.Fatal("Email not discovered")
	}
	if email.Type != types.FieldEmail || email.Confidence != 1.0 || email.Position != 0 || email.Control != ControlText {
		t.Errorf("unexpected email field %+v", email)
	}
	phone, _ := r.Lookup("Phone number")
	if phone.Type != types.FieldPhone || phone.Confidence != 0.5 || phone.Position != 2 {
		t.Errorf("unexpected phone field %+v", phone)
	}
	sub, _ := r.Lookup("Subscribe")
	if sub.Value != "true" || !sub.Checked {
		t.Errorf("checkbox value = %q checked=%v", sub.Value, sub.Checked)
	}
	if _, ok := r.Lookup("Hidden"); ok {
		t.Error("invisible candidate was registered")
	}
}

func TestDiscover_DuplicateLabelLowerPositionWins(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t,
		Candidate{Ref: "first", Visible: true, Value: "one", Signals: sig(ProvenancePlaceholder, "Name")},
		Candidate{Ref: "second", Visible: true, Value: "two", Signals: sig(ProvenanceWrappingLabel, "Name")},
	)
	f, _ := r.Lookup("Name")
	if f.Ref != "first" || f.Value != "one" {
		t.Errorf("got %+v, want first candidate", f)
	}
}

func TestDiscover_ReplacesWholeSet(t *testing.T) {
	t.Parallel()

	pass := 0
	r := New(SurfaceFunc(func(context.Context) ([]Candidate, error) {
		pass++
		if pass == 1 {
			return []Candidate{{Ref: "a", Visible: true, Signals: sig(ProvenanceAriaLabel, "Old field")}}, nil
		}
		return []Candidate{{Ref: "b", Visible: true, Signals: sig(ProvenanceAriaLabel, "New field")}}, nil
	}))
	ctx := context.Background()
	if _, err := r.Discover(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := r.Discover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["Old field"]; ok {
		t.Error("old field survived rediscovery")
	}
	if _, ok := r.Lookup("New field"); !ok {
		t.Error("new field missing")
	}
}

func TestDiscover_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(nil).Discover(context.Background()); !errors.Is(err, ErrNoSurface) {
		t.Errorf("nil surface err = %v", err)
	}

	boom := errors.New("boom")
	r := New(SurfaceFunc(func(context.Context) ([]Candidate, error) { return nil, boom }))
	if _, err := r.Discover(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestResolveFuzzy(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t,
		Candidate{Ref: "a", Visible: true, Signals: sig(ProvenanceAriaLabel, "Email")},
		Candidate{Ref: "b", Visible: true, Signals: sig(ProvenanceAriaLabel, "EMAIL")},
		Candidate{Ref: "c", Visible: true, Signals: sig(ProvenanceAriaLabel, "Phone")},
	)

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"EMAIL", "EMAIL", true},
		{"email", "Email", true},
		{"pHoNe", "Phone", true},
		{"Phone number", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := r.ResolveFuzzy(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ResolveFuzzy(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t,
		Candidate{Ref: "a", Visible: true, Signals: sig(ProvenanceAriaLabel, "Email")},
		Candidate{Ref: "b", Visible: true, Value: "keep", Signals: sig(ProvenanceAriaLabel, "Locked")},
		Candidate{Ref: "c", Visible: true, Control: ControlCheckbox, Signals: sig(ProvenanceAriaLabel, "Consent")},
	)
	w := NewMemoryWriter("Locked")
	ctx := context.Background()

	if !r.Apply(ctx, "Email", "a@b.com", w) {
		t.Error("Apply(Email) = false")
	}
	if r.Apply(ctx, "Locked", "new", w) {
		t.Error("Apply(Locked) = true for rejecting writer")
	}
	if r.Apply(ctx, "Missing", "x", w) {
		t.Error("Apply(Missing) = true")
	}
	if !r.Apply(ctx, "Consent", "yes", w) {
		t.Error("Apply(Consent) = false")
	}

	snap := r.Snapshot()
	want := map[string]string{"Email": "a@b.com", "Locked": "keep", "Consent": "true"}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("Snapshot[%q] = %q, want %q", k, snap[k], v)
		}
	}
	if v, _ := w.Value("Consent"); v != "true" {
		t.Errorf("writer consent = %q", v)
	}
	if n := len(w.Writes()); n != 3 {
		t.Errorf("writer calls = %d, want 3", n)
	}
}

func TestFields_OrderedByPosition(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t,
		Candidate{Ref: "a", Visible: true, Signals: sig(ProvenanceAriaLabel, "Zeta")},
		Candidate{Ref: "b", Visible: true, Signals: sig(ProvenanceAriaLabel, "Alpha")},
		Candidate{Ref: "c", Visible: true, Signals: sig(ProvenanceAriaLabel, "Mid")},
	)
	fields := r.Fields()
	got := []string{fields[0].Label, fields[1].Label, fields[2].Label}
	want := []string{"Zeta", "Alpha", "Mid"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Fields order = %v, want %v", got, want)
		}
	}
}

func TestNearest(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t,
		Candidate{Ref: "a", Visible: true, Signals: sig(ProvenanceAriaLabel, "Email Address")},
		Candidate{Ref: "b", Visible: true, Signals: sig(ProvenanceAriaLabel, "Phone")},
	)
	label, score, ok := r.Nearest("emial address")
	if !ok || label != "Email Address" {
		t.Errorf("Nearest = (%q, %v, %v), want Email Address", label, score, ok)
	}
	if _, _, ok := r.Nearest("zzzz"); ok {
		t.Error("Nearest(zzzz) reported a match")
	}
	if _, ok := r.ResolveFuzzy("emial address"); ok {
		t.Error("near match must not resolve")
	}
}
