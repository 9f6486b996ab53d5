package contract

import (
	"errors"
	"fmt"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")
	ErrToolExecution   = errors.New("tool execution failed")
	ErrLoopExhausted   = errors.New("reason-act loop exhausted")
	ErrConfiguration   = errors.New("agent misconfigured")
	ErrTransport       = errors.New("session transport failed")
)

// ToolExecutionError is returned by tool adapters. Field names the offending
// argument when the failure is an argument validation problem.
type ToolExecutionError struct {
	Tool  string
	Field string
	Err   error
}

func (e *ToolExecutionError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("tool=%s field=%s: %v", e.Tool, e.Field, e.Err)
	default:
		return fmt.Sprintf("tool=%s: %v", e.Tool, e.Err)
	}
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

func (e *ToolExecutionError) Is(target error) bool { return target == ErrToolExecution }

// LoopExhaustedError reports a specialist that kept requesting tools past its
// model invocation ceiling.
type LoopExhaustedError struct {
	Agent      AgentType
	Iterations int
}

func (e *LoopExhaustedError) Error() string {
	return fmt.Sprintf("%v: agent=%s after %d model invocations", ErrLoopExhausted, e.Agent, e.Iterations)
}

func (e *LoopExhaustedError) Is(target error) bool { return target == ErrLoopExhausted }
