package loadstate

import (
	"errors"
	"testing"
)

// drive applies actions that are all expected to succeed.
func drive(t *testing.T, m *Machine, actions ...Action) {
	t.Helper()
	for _, a := range actions {
		if err := m.Submit(a); err != nil {
			t.Fatalf("submit %T: %v", a, err)
		}
	}
}

func TestFullLoadCycle(t *testing.T) {
	m := NewMachine()

	steps := []struct {
		action Action
		phase  Phase
		label  string
	}{
		{StartLoading{Source: "/vol.zip"}, PhaseStoppingUI, "stopping"},
		{UIStoppedComplete{}, PhaseCleaningResources, "cleaning"},
		{ResourcesClearedComplete{}, PhasePreparingFile, "preparing"},
		{FilePreparationComplete{Viewer: "viewer-state"}, PhaseReady, "ready"},
	}

	for _, step := range steps {
		if err := m.Submit(step.action); err != nil {
			t.Fatalf("submit %T: %v", step.action, err)
		}
		state := m.Current()
		if state.Phase != step.phase {
			t.Fatalf("after %T: phase = %v, want %v", step.action, state.Phase, step.phase)
		}
		if state.Phase.String() != step.label {
			t.Fatalf("label = %q, want %q", state.Phase.String(), step.label)
		}
		if state.Pending != "/vol.zip" {
			t.Fatalf("pending = %q, want /vol.zip", state.Pending)
		}
	}

	if v := m.Current().Viewer; v != "viewer-state" {
		t.Fatalf("ready payload = %v, want viewer-state", v)
	}
}

func TestStartLoadingOnlyFromIdle(t *testing.T) {
	tests := []struct {
		name  string
		setup []Action
	}{
		{"from stopping", []Action{StartLoading{Source: "a"}}},
		{"from cleaning", []Action{StartLoading{Source: "a"}, UIStoppedComplete{}}},
		{"from preparing", []Action{StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{}}},
		{"from ready", []Action{StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{}, FilePreparationComplete{Viewer: 1}}},
		{"from error", []Action{StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{}, FilePreparationFailed{Err: errors.New("boom")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			drive(t, m, tt.setup...)
			before := m.Current()

			if err := m.Submit(StartLoading{Source: "b"}); !errors.Is(err, ErrStateConflict) {
				t.Fatalf("err = %v, want ErrStateConflict", err)
			}
			after := m.Current()
			if after != before {
				t.Fatalf("state changed on rejected action: %+v -> %+v", before, after)
			}
		})
	}
}

func TestOutOfOrderSignalsRejected(t *testing.T) {
	tests := []struct {
		name   string
		setup  []Action
		action Action
	}{
		{"ui-stopped from idle", nil, UIStoppedComplete{}},
		{"resources-cleared from idle", nil, ResourcesClearedComplete{}},
		{"prep-complete from idle", nil, FilePreparationComplete{Viewer: 1}},
		{"prep-failed from idle", nil, FilePreparationFailed{Err: errors.New("x")}},
		{"resources-cleared from stopping", []Action{StartLoading{Source: "a"}}, ResourcesClearedComplete{}},
		{"prep-complete from cleaning", []Action{StartLoading{Source: "a"}, UIStoppedComplete{}}, FilePreparationComplete{Viewer: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			drive(t, m, tt.setup...)
			before := m.Current()

			if err := m.Submit(tt.action); !errors.Is(err, ErrStateConflict) {
				t.Fatalf("err = %v, want ErrStateConflict", err)
			}
			if m.Current() != before {
				t.Fatal("state changed on rejected action")
			}
		})
	}
}

func TestResetFromAnyState(t *testing.T) {
	setups := map[string][]Action{
		"idle":      nil,
		"stopping":  {StartLoading{Source: "a"}},
		"cleaning":  {StartLoading{Source: "a"}, UIStoppedComplete{}},
		"preparing": {StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{}},
		"ready":     {StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{}, FilePreparationComplete{Viewer: 1}},
		"error":     {StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{}, FilePreparationFailed{Err: errors.New("boom")}},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			m := NewMachine()
			drive(t, m, setup...)
			if err := m.Submit(Reset{}); err != nil {
				t.Fatalf("reset: %v", err)
			}
			state := m.Current()
			if state.Phase != PhaseIdle || state.Pending != "" || state.Viewer != nil || state.Err != "" {
				t.Fatalf("state after reset = %+v, want pristine idle", state)
			}

			// Idle accepts a new load after reset.
			if err := m.Submit(StartLoading{Source: "b"}); err != nil {
				t.Fatalf("start after reset: %v", err)
			}
		})
	}
}

func TestNilViewerResolvesToError(t *testing.T) {
	m := NewMachine()
	drive(t, m, StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{})

	if err := m.Submit(FilePreparationComplete{Viewer: nil}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	state := m.Current()
	if state.Phase != PhaseError {
		t.Fatalf("phase = %v, want PhaseError", state.Phase)
	}
	if state.Err == "" {
		t.Fatal("error state should carry a message")
	}
}

func TestPreparationFailureCarriesMessage(t *testing.T) {
	m := NewMachine()
	drive(t, m, StartLoading{Source: "a"}, UIStoppedComplete{}, ResourcesClearedComplete{})

	if err := m.Submit(FilePreparationFailed{Err: errors.New("archive vanished")}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	state := m.Current()
	if state.Phase != PhaseError || state.Err != "archive vanished" {
		t.Fatalf("state = %+v, want error with message", state)
	}
}
