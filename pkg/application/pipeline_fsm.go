package application

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Pipeline states. A run moves through them in order; failed is reachable
// from every non-terminal state.
const (
	StateInit              = "init"
	StateVelocitiesFetched = "velocities_fetched"
	StateEstimatesComputed = "estimates_computed"
	StateReportsBuilt      = "reports_built"
	StateEmailed           = "emailed"
	StatePersisted         = "persisted"
	StateDone              = "done"
	StateFailed            = "failed"
)

const (
	eventAdvance = "advance"
	eventFail    = "fail"
)

// pipelineOrder lists the non-terminal states in run order.
var pipelineOrder = []string{
	StateInit,
	StateVelocitiesFetched,
	StateEstimatesComputed,
	StateReportsBuilt,
	StateEmailed,
	StatePersisted,
}

// PipelineContext carries run data visible to guards.
type PipelineContext struct {
	RunID string
}

// PipelineMachine tracks the state of one run.
type PipelineMachine struct {
	interpreter *statekit.Interpreter[PipelineContext]
	failedStage string
}

// NewPipelineMachine builds a machine starting in init.
func NewPipelineMachine(runID string) (*PipelineMachine, error) {
	builder := statekit.NewMachine[PipelineContext]("estimation-pipeline").
		WithInitial(StateInit).
		WithContext(PipelineContext{RunID: runID})

	for i, state := range pipelineOrder {
		next := StateDone
		if i+1 < len(pipelineOrder) {
			next = pipelineOrder[i+1]
		}
		builder.State(statekit.StateID(state)).
			On(eventAdvance).Target(statekit.StateID(next)).
			On(eventFail).Target(StateFailed).
			Done()
	}

	// Terminal states accept no events.
	builder.State(StateDone).Done()
	builder.State(StateFailed).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &PipelineMachine{interpreter: interpreter}, nil
}

// Advance moves to the next stage.
func (m *PipelineMachine) Advance() error {
	return m.send(eventAdvance)
}

// Fail moves to failed, recording the stage whose work failed.
func (m *PipelineMachine) Fail(stage string) error {
	if err := m.send(eventFail); err != nil {
		return err
	}
	m.failedStage = stage
	return nil
}

func (m *PipelineMachine) send(event string) error {
	before := m.Current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if after := m.Current(); after != before {
		return nil
	}
	return fmt.Errorf("pipeline cannot %s from state %q", event, before)
}

// Current returns the current state.
func (m *PipelineMachine) Current() string {
	return string(m.interpreter.State().Value)
}

// FailedStage returns the stage that failed, or "" if the run has not failed.
func (m *PipelineMachine) FailedStage() string {
	return m.failedStage
}

// Terminal reports whether the run has finished.
func (m *PipelineMachine) Terminal() bool {
	s := m.Current()
	return s == StateDone || s == StateFailed
}
