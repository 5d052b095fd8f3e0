package registry

import "testing"

func TestCheckedCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		wantState bool
		wantOK    bool
	}{
		{"uncheck", false, true},
		{"check it", true, true},
		{"yes please", true, true},
		{"No, check it", false, true},
		{"Disabled", false, true},
		{"turn it on", true, true},
		{"checkbox", false, false},
		{"not now", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		state, ok := CheckedCommand(tt.in)
		if state != tt.wantState || ok != tt.wantOK {
			t.Errorf("CheckedCommand(%q) = (%v, %v), want (%v, %v)", tt.in, state, ok, tt.wantState, tt.wantOK)
		}
	}
}

func TestCheckedState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		current bool
		want    bool
	}{
		{"true", false, true},
		{"true", true, true},
		{"false", true, false},
		{"", true, false},
		{"", false, true},
		{"whatever", false, true},
	}
	for _, tt := range tests {
		if got := CheckedState(tt.value, tt.current); got != tt.want {
			t.Errorf("CheckedState(%q, %v) = %v, want %v", tt.value, tt.current, got, tt.want)
		}
	}
}

func TestControl_Toggle(t *testing.T) {
	t.Parallel()

	for _, c := range []Control{ControlCheckbox, ControlRadio} {
		if !c.Toggle() {
			t.Errorf("%s should toggle", c)
		}
	}
	for _, c := range []Control{ControlText, ControlTextarea, ControlSelect} {
		if c.Toggle() {
			t.Errorf("%s should not toggle", c)
		}
	}
}
