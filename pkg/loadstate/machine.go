// Package loadstate serializes source switches through an explicit state
// machine: stop UI -> release resources -> open next source -> ready.
// Completion signals replace fixed delays so rapid next/previous navigation
// cannot leak handles or race a half-finished teardown.
package loadstate

import (
	"errors"
	"sync"
)

// ErrStateConflict is returned when an action is rejected because the
// machine is not in the state the action requires. The machine is unchanged.
var ErrStateConflict = errors.New("load already in progress")

// Phase identifies the current step of a source switch.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStoppingUI
	PhaseCleaningResources
	PhasePreparingFile
	PhaseReady
	PhaseError
)

// String returns the UI phase label.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStoppingUI:
		return "stopping"
	case PhaseCleaningResources:
		return "cleaning"
	case PhasePreparingFile:
		return "preparing"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the machine's tagged state. Pending carries the requested source
// from acceptance until the load resolves; Viewer is set in PhaseReady and
// Err in PhaseError.
type State struct {
	Phase   Phase
	Pending string
	Viewer  any
	Err     string
}

// Action is a state machine input.
type Action interface{ isAction() }

// StartLoading requests a switch to Source. Accepted only from PhaseIdle; at
// most one load request is pending at a time, concurrent attempts are
// rejected, never queued.
type StartLoading struct{ Source string }

// UIStoppedComplete signals the UI has released the current source.
type UIStoppedComplete struct{}

// ResourcesClearedComplete signals caches are cleared and the old handle is
// closed.
type ResourcesClearedComplete struct{}

// FilePreparationComplete carries the prepared viewer state. A nil Viewer
// resolves to PhaseError.
type FilePreparationComplete struct{ Viewer any }

// FilePreparationFailed resolves the load to PhaseError.
type FilePreparationFailed struct{ Err error }

// Reset returns the machine to PhaseIdle from any state.
type Reset struct{}

func (StartLoading) isAction()             {}
func (UIStoppedComplete) isAction()        {}
func (ResourcesClearedComplete) isAction() {}
func (FilePreparationComplete) isAction()  {}
func (FilePreparationFailed) isAction()    {}
func (Reset) isAction()                    {}

// Machine holds the current state and applies the transition table.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine starts in PhaseIdle.
func NewMachine() *Machine {
	return &Machine{state: State{Phase: PhaseIdle}}
}

// Current returns the observable state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Submit applies one action. Invalid actions return ErrStateConflict and
// leave the state unchanged.
func (m *Machine) Submit(action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch a := action.(type) {
	case StartLoading:
		if m.state.Phase != PhaseIdle {
			return ErrStateConflict
		}
		m.state = State{Phase: PhaseStoppingUI, Pending: a.Source}
		return nil

	case UIStoppedComplete:
		if m.state.Phase != PhaseStoppingUI {
			return ErrStateConflict
		}
		m.state = State{Phase: PhaseCleaningResources, Pending: m.state.Pending}
		return nil

	case ResourcesClearedComplete:
		if m.state.Phase != PhaseCleaningResources {
			return ErrStateConflict
		}
		m.state = State{Phase: PhasePreparingFile, Pending: m.state.Pending}
		return nil

	case FilePreparationComplete:
		if m.state.Phase != PhasePreparingFile {
			return ErrStateConflict
		}
		if a.Viewer == nil {
			m.state = State{Phase: PhaseError, Pending: m.state.Pending, Err: "file preparation produced no viewer state"}
			return nil
		}
		m.state = State{Phase: PhaseReady, Pending: m.state.Pending, Viewer: a.Viewer}
		return nil

	case FilePreparationFailed:
		if m.state.Phase != PhasePreparingFile {
			return ErrStateConflict
		}
		msg := "file preparation failed"
		if a.Err != nil {
			msg = a.Err.Error()
		}
		m.state = State{Phase: PhaseError, Pending: m.state.Pending, Err: msg}
		return nil

	case Reset:
		m.state = State{Phase: PhaseIdle}
		return nil

	default:
		return ErrStateConflict
	}
}
