// ABOUTME: Skill descriptors and reply types for the router.
// ABOUTME: A skill is a named recipe composed of one or more tool calls.

package skill

import (
	"context"
	"encoding/json"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
)

// Invoker issues tool calls. Satisfied by bridge.Bridge; tests use fakes.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) protocol.ToolResult
}

// Descriptor describes a skill to callers without exposing its recipe.
type Descriptor struct {
	ID          string
	Description string
	// Mutating skills change platform state and are never retried.
	Mutating bool
}

// StepResult records one tool call made while executing a skill.
type StepResult struct {
	Tool    string
	Payload json.RawMessage
	Failure *protocol.Failure
}

// Reply is the composed outcome of a skill execution. When a step fails
// the reply short-circuits: Steps holds everything up to and including
// the failing step, and Failed names it.
type Reply struct {
	SkillID string
	Text    string
	Steps   []StepResult
	Failed  string
	Failure *protocol.Failure
}

// OK reports whether every step of the skill succeeded.
func (r *Reply) OK() bool {
	return r.Failure == nil
}

func (r *Reply) addStep(tool string, result protocol.ToolResult) bool {
	step := StepResult{Tool: tool, Payload: result.Payload, Failure: result.Failure}
	r.Steps = append(r.Steps, step)
	if !result.OK() {
		r.Failed = tool
		r.Failure = result.Failure
		return false
	}
	return true
}
