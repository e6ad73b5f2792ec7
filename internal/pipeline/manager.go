package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRetention is how many finished runs the manager keeps for inspection
const DefaultRetention = 256

// Manager runs pipelines step by step and records their progress.
// Steps run strictly in order and a run stops at the first failed step;
// every later step is marked skipped and never executed.
type Manager struct {
	logger      *zap.Logger
	instances   map[ID]*Instance
	order       []ID
	retention   int
	definitions map[string]Definition
	eventChan   chan Event
	observers   []Observer
	mu          sync.RWMutex
}

// NewManager creates a new pipeline manager
func NewManager(logger *zap.Logger, retention int) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		logger:      logger,
		instances:   make(map[ID]*Instance),
		retention:   retention,
		definitions: make(map[string]Definition),
		eventChan:   make(chan Event, 100),
	}
}

// RegisterDefinition registers a pipeline definition
func (m *Manager) RegisterDefinition(def Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID()] = def
	m.logger.Info("Pipeline definition registered", zap.String("id", def.ID()))
}

// AddObserver registers an observer for step completions
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Run executes a registered pipeline to completion on the calling goroutine.
// It returns the run id and the error of the first failed step, if any.
func (m *Manager) Run(ctx context.Context, definitionID string, data Data) (ID, error) {
	m.mu.RLock()
	def, exists := m.definitions[definitionID]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("pipeline definition not found: %s", definitionID)
	}
	return m.RunDefinition(ctx, def, data)
}

// RunDefinition executes def without registering it.
func (m *Manager) RunDefinition(ctx context.Context, def Definition, data Data) (ID, error) {
	if data == nil {
		data = Data{}
	}
	steps := def.Steps()
	id := ID(fmt.Sprintf("%s_%d", def.ID(), time.Now().UnixNano()))

	stepExecs := make([]StepExecution, len(steps))
	for i, step := range steps {
		stepExecs[i] = StepExecution{
			ID:    step.ID(),
			State: StepStatePending,
		}
	}

	sessionID, _ := data[DataKeySessionID].(string)
	instance := &Instance{
		ID:         id,
		Definition: def.ID(),
		SessionID:  sessionID,
		State:      StateStarted,
		Data:       data,
		Steps:      stepExecs,
		StartedAt:  time.Now(),
	}
	m.store(instance)

	m.emitEvent(instance, "", EventPipelineStarted, nil)
	m.logger.Debug("Pipeline started",
		zap.String("pipelineID", string(id)),
		zap.String("definition", def.ID()),
		zap.String("sessionID", sessionID))

	if timeout := def.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.updateState(id, StateRunning)

	for i, step := range steps {
		if err := m.executeStep(ctx, instance, i, step); err != nil {
			m.logger.Warn("Step failed",
				zap.String("pipelineID", string(id)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
			m.skipRemaining(id, i+1)
			m.finish(instance, StateFailed, err)
			return id, fmt.Errorf("%s: %w", step.ID(), err)
		}
	}

	m.finish(instance, StateCompleted, nil)
	return id, nil
}

// executeStep executes a single step
func (m *Manager) executeStep(ctx context.Context, instance *Instance, stepIndex int, step Step) error {
	m.updateStepState(instance.ID, stepIndex, StepStateRunning)

	start := time.Now()
	m.setStepStartTime(instance.ID, stepIndex, start)
	m.emitEvent(instance, step.ID(), EventStepStarted, nil)

	var result StepResult
	if err := ctx.Err(); err != nil {
		result = Failed(err)
	} else {
		result = step.Execute(ctx, instance.Data)
	}
	if !result.Success && result.Error == nil {
		result.Error = errors.New("step reported failure without an error")
	}

	now := time.Now()
	m.setStepCompletionTime(instance.ID, stepIndex, now)
	m.notify(instance.Definition, step.ID(), now.Sub(start), result.Error)

	if result.Success {
		m.setStepResult(instance.ID, stepIndex, result.Data)
		m.updateStepState(instance.ID, stepIndex, StepStateCompleted)
		m.emitEvent(instance, step.ID(), EventStepCompleted, nil)

		m.logger.Debug("Step completed",
			zap.String("pipelineID", string(instance.ID)),
			zap.String("stepID", string(step.ID())),
			zap.Duration("duration", now.Sub(start)))
		return nil
	}

	m.updateStepState(instance.ID, stepIndex, StepStateFailed)
	m.setStepError(instance.ID, stepIndex, result.Error.Error())
	m.emitEvent(instance, step.ID(), EventStepFailed, result.Error.Error())
	return result.Error
}

func (m *Manager) finish(instance *Instance, state State, err error) {
	now := time.Now()

	m.mu.Lock()
	instance.State = state
	instance.CompletedAt = &now
	if err != nil {
		instance.Error = err.Error()
	}
	m.mu.Unlock()

	if state == StateCompleted {
		m.emitEvent(instance, "", EventPipelineCompleted, nil)
		m.logger.Debug("Pipeline completed", zap.String("pipelineID", string(instance.ID)))
		return
	}
	m.emitEvent(instance, "", EventPipelineFailed, instance.Error)
}

// Get returns a snapshot of a run by id
func (m *Manager) Get(id ID) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	instance, exists := m.instances[id]
	if !exists {
		return nil, false
	}
	snapshot := *instance
	snapshot.Data = nil
	snapshot.Steps = append([]StepExecution(nil), instance.Steps...)
	return &snapshot, true
}

// EventChannel returns the event channel for listening to pipeline events
func (m *Manager) EventChannel() <-chan Event {
	return m.eventChan
}

func (m *Manager) store(instance *Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[instance.ID] = instance
	m.order = append(m.order, instance.ID)
	for len(m.order) > m.retention {
		delete(m.instances, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *Manager) notify(definition string, step StepID, d time.Duration, err error) {
	m.mu.RLock()
	observers := m.observers
	m.mu.RUnlock()

	for _, o := range observers {
		o.StepFinished(definition, step, d, err)
	}
}

// Helper methods for updating run state
func (m *Manager) updateState(id ID, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[id]; exists {
		instance.State = state
	}
}

func (m *Manager) updateStepState(id ID, stepIndex int, state StepState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[id]; exists && stepIndex < len(instance.Steps) {
		instance.Steps[stepIndex].State = state
	}
}

func (m *Manager) skipRemaining(id ID, from int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[id]; exists {
		for i := from; i < len(instance.Steps); i++ {
			instance.Steps[i].State = StepStateSkipped
		}
	}
}

func (m *Manager) setStepStartTime(id ID, stepIndex int, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[id]; exists && stepIndex < len(instance.Steps) {
		instance.Steps[stepIndex].StartedAt = &t
	}
}

func (m *Manager) setStepCompletionTime(id ID, stepIndex int, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[id]; exists && stepIndex < len(instance.Steps) {
		instance.Steps[stepIndex].CompletedAt = &t
	}
}

func (m *Manager) setStepResult(id ID, stepIndex int, result interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[id]; exists && stepIndex < len(instance.Steps) {
		instance.Steps[stepIndex].Result = result
	}
}

func (m *Manager) setStepError(id ID, stepIndex int, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[id]; exists && stepIndex < len(instance.Steps) {
		instance.Steps[stepIndex].Error = errMsg
	}
}

func (m *Manager) emitEvent(instance *Instance, step StepID, eventType string, data interface{}) {
	event := Event{
		PipelineID: instance.ID,
		Definition: instance.Definition,
		SessionID:  instance.SessionID,
		StepID:     step,
		Type:       eventType,
		Timestamp:  time.Now(),
		Data:       data,
	}
	select {
	case m.eventChan <- event:
	default:
		m.logger.Warn("Event channel full, dropping event", zap.String("type", event.Type))
	}
}
