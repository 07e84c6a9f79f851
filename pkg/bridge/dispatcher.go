package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/logger"
)

// EngineSender submits messages to the realtime engine on behalf of a tool
// call. The bridge implements it.
type EngineSender interface {
	SendEngineJSON(v any) error
}

// Tool is a callable function exposed to the realtime engine.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema for the arguments
	Execute     func(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolDefinition is the engine-facing description sent in the session
// handshake.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// PendingToolCall tracks an in-flight tool execution.
type PendingToolCall struct {
	ID           string // internal correlation id
	EngineCallID string // engine-assigned call id the result must answer
	Name         string
	StartedAt    time.Time
}

// Dispatcher routes engine function calls to registered tools and submits the
// results back. Tool failures never escalate to session errors, the caller
// hears an apology instead.
type Dispatcher struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	order    []string
	pending  map[string]PendingToolCall
	timeout  time.Duration
	language string
}

// NewDispatcher creates a dispatcher. The language selects the apology spoken
// on tool failure.
func NewDispatcher(timeout time.Duration, language string) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		tools:    make(map[string]Tool),
		pending:  make(map[string]PendingToolCall),
		timeout:  timeout,
		language: language,
	}
}

// RegisterTool adds a tool to the registry. Registering the same name twice
// is an error.
func (d *Dispatcher) RegisterTool(t Tool) error {
	if t.Name == "" || t.Execute == nil {
		return fmt.Errorf("tool requires a name and an execute function")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	d.tools[t.Name] = t
	d.order = append(d.order, t.Name)
	return nil
}

// Lookup returns the named tool.
func (d *Dispatcher) Lookup(name string) (Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// Definitions lists the registered tools in registration order for the
// session handshake.
func (d *Dispatcher) Definitions() []ToolDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(d.order))
	for _, name := range d.order {
		t := d.tools[name]
		defs = append(defs, ToolDefinition{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// PendingCount reports the number of in-flight tool calls.
func (d *Dispatcher) PendingCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pending)
}

// Dispatch executes a tool call and submits the output back to the engine.
// Unknown tools, execution errors and timeouts all resolve to a spoken
// apology so the conversation keeps going. Callers run it in its own
// goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, sender EngineSender, callSid, engineCallID, name, rawArgs string) {
	pendingID := uuid.New().String()
	d.mu.Lock()
	d.pending[pendingID] = PendingToolCall{
		ID:           pendingID,
		EngineCallID: engineCallID,
		Name:         name,
		StartedAt:    time.Now(),
	}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, pendingID)
		d.mu.Unlock()
	}()

	output := d.run(ctx, callSid, name, rawArgs)

	item := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": engineCallID,
			"output":  output,
		},
	}
	if err := sender.SendEngineJSON(item); err != nil {
		logger.Error("failed to submit tool output",
			zap.String("call_sid", callSid),
			zap.String("tool", name),
			zap.Error(err))
		return
	}
	if err := sender.SendEngineJSON(map[string]any{"type": "response.create"}); err != nil {
		logger.Error("failed to request response after tool output",
			zap.String("call_sid", callSid),
			zap.String("tool", name),
			zap.Error(err))
	}
}

func (d *Dispatcher) run(ctx context.Context, callSid, name, rawArgs string) string {
	tool, ok := d.Lookup(name)
	if !ok {
		logger.Warn("engine requested unknown tool",
			zap.String("call_sid", callSid),
			zap.String("tool", name))
		return d.apology()
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		output string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := tool.Execute(runCtx, json.RawMessage(rawArgs))
		done <- result{output: output, err: err}
	}()

	// The deadline wins even when Execute ignores its context, so the pending
	// record is always evicted on time.
	select {
	case res := <-done:
		if res.err != nil {
			logger.Warn("tool execution failed",
				zap.String("call_sid", callSid),
				zap.String("tool", name),
				zap.Error(res.err))
			return d.apology()
		}
		return res.output
	case <-runCtx.Done():
		logger.Warn("tool execution timed out",
			zap.String("call_sid", callSid),
			zap.String("tool", name),
			zap.Duration("timeout", d.timeout))
		return d.apology()
	}
}

func (d *Dispatcher) apology() string {
	if d.language == "de" {
		return "Entschuldigung, das konnte ich gerade nicht nachschlagen. Kann ich sonst noch etwas für Sie tun?"
	}
	return "Sorry, I could not look that up right now. Is there anything else I can help you with?"
}
