package swarmtypes

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for expected, non-structured conditions.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrMemoryKeyNotFound = errors.New("working memory key not found")
	ErrProposalClosed    = errors.New("proposal already closed")
	ErrNoEligibleAgent   = errors.New("no eligible agent for capability")
)

// TaskExecutionError wraps the underlying cause of a per-agent failure
// (LLM failure after retries, parser failure, predicate check failure). It
// is non-fatal to the swarm: it is surfaced in the Agent's output and as a
// task_failed event, never propagated as an exception.
type TaskExecutionError struct {
	TaskID string
	AgentID AgentID
	Cause   error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s: agent %s: %v", e.TaskID, e.AgentID, e.Cause)
}

func (e *TaskExecutionError) Unwrap() error { return e.Cause }

// ConflictUnresolvedError reports that the conflict engine's own resolution
// strategy failed. Engine.MarkUnresolved records it and broadcasts a
// HelpRequest(High); no participating task's state is changed.
type ConflictUnresolvedError struct {
	Conflict Conflict
	Cause    error
}

func (e *ConflictUnresolvedError) Error() string {
	return fmt.Sprintf("conflict %s unresolved: %v", e.Conflict.ID, e.Cause)
}

func (e *ConflictUnresolvedError) Unwrap() error { return e.Cause }

// DeadlineExceededError reports that the overall execution timer fired.
type DeadlineExceededError struct {
	Deadline time.Duration
	Elapsed  time.Duration
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("deadline of %s exceeded after %s", e.Deadline, e.Elapsed)
}

// BudgetExceededError reports an explicit memory/token cap crossed. It
// mirrors DeadlineExceededError's handling.
type BudgetExceededError struct {
	Kind  string // "tokens" or "memory_mb"
	Limit int64
	Used  int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded: used %d of %d", e.Kind, e.Used, e.Limit)
}

// InvalidConfigError is rejected synchronously at construction time.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Reason)
}

// InternalError is reserved for states the implementation believes
// unreachable. It is logged at Error level by callers; per spec it should
// crash in debug builds and degrade to DeadlineExceeded in release builds,
// a policy decision left to the Coordinator's configuration rather than
// encoded here.
type InternalError struct {
	Where string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error at %s: %v", e.Where, e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// CycleError reports a dependency cycle found during DAG construction. It
// enumerates every task-id participating in the cycle, not merely the one
// where detection tripped.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving tasks: %v", e.Cycle)
}
