package mcp

import (
	"context"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/domscout/internal/descriptor"
	"github.com/xkilldash9x/domscout/internal/engine"
)

// CommandRequest is the JSON body posted by the agent.
type CommandRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

// rawInput is the params shape used when the agent forwards its tool string
// untouched.
type rawInput struct {
	Input *string `json:"input"`
}

// CommandResponse is the JSON envelope returned to the agent.
type CommandResponse struct {
	Status string      `json:"status"` // "success" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Executor runs resolve-and-act calls. *engine.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, d descriptor.Descriptor) (engine.Outcome, error)
	Cleanup(ctx context.Context) error
}
