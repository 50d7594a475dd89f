package lua

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/ringchan"
)

// Script entry points looked up after loading
const (
	ProcessFunction   = "process"
	IsAnomalyFunction = "is_anomaly"
)

// Script error types
const (
	ErrTypeSyntax  = "syntax"
	ErrTypeRuntime = "runtime"
	ErrTypeResult  = "result"
	ErrTypeAPI     = "api"
)

// OutputRecord is a single line printed by a script
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// ScriptError describes a rule script failure
type ScriptError struct {
	Type       string // syntax, runtime, result, api
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *ScriptError) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := "Lua error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("Lua %s error (%s)", e.Type, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.Underlying
}

// Is matches any *ScriptError with the same Type
func (e *ScriptError) Is(target error) bool {
	if target == nil {
		return false
	}
	var scriptErr *ScriptError
	if errors.As(target, &scriptErr) {
		return e.Type == scriptErr.Type
	}
	return false
}

// RuleEngine runs a user-supplied Lua script as a reading.Rule.
//
// The script may define process(v) returning a non-negative integer and/or
// is_anomaly(v) returning a boolean. Functions the script does not define, and
// calls that fail or return the wrong type, fall back to the pipeline defaults.
type RuleEngine struct {
	state      *lua.State
	stateMutex sync.Mutex
	logger     *logrus.Logger
	source     string
	hasProcess bool
	hasAnomaly bool
	outputChan *ringchan.RingChannel[OutputRecord]
}

var _ reading.Rule = (*RuleEngine)(nil)

// NewRuleEngine creates an engine with an empty Lua state
func NewRuleEngine(logger *logrus.Logger) *RuleEngine {
	engine := &RuleEngine{
		logger:     logger,
		outputChan: ringchan.New[OutputRecord](100),
	}

	engine.stateMutex.Lock()
	engine.resetInternal()
	engine.stateMutex.Unlock()

	return engine
}

func (e *RuleEngine) resetInternal() {
	if e.state != nil {
		e.state.Close()
	}

	e.state = lua.NewState()
	e.state.OpenLibs()
	e.hasProcess = false
	e.hasAnomaly = false

	e.registerPrintCaptureInternal()
}

func (e *RuleEngine) registerPrintCaptureInternal() {
	e.state.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)

		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}

		e.outputChan.Send(OutputRecord{
			Content:   strings.Join(parts, "\t") + "\n",
			Timestamp: time.Now(),
			Source:    "stdout",
		})
		return 0
	})
	e.state.SetGlobal("print")
}

// OutputChannel returns script print output
func (e *RuleEngine) OutputChannel() <-chan OutputRecord {
	return e.outputChan.C()
}

// LoadScriptFile loads a rule script from a file
func (e *RuleEngine) LoadScriptFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return &ScriptError{
			Type:       ErrTypeAPI,
			Message:    fmt.Sprintf("failed to read script: %v", err),
			Source:     filename,
			Underlying: err,
		}
	}
	return e.LoadScript(string(content), filename)
}

// LoadScript executes script in a fresh state and records which rule
// functions it defines.
func (e *RuleEngine) LoadScript(script, name string) error {
	if strings.TrimSpace(script) == "" {
		return &ScriptError{Type: ErrTypeAPI, Message: "empty script", Source: name}
	}

	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state == nil {
		return &ScriptError{Type: ErrTypeAPI, Message: "engine closed", Source: name}
	}

	e.resetInternal()
	e.source = name

	if err := e.state.DoString(script); err != nil {
		e.state.SetTop(0)
		scriptErr := parseScriptError(ErrTypeSyntax, name, err)
		e.outputChan.Send(OutputRecord{
			Content:   scriptErr.Error() + "\n",
			Timestamp: time.Now(),
			Source:    "stderr",
		})
		return scriptErr
	}
	e.state.SetTop(0)

	e.hasProcess = e.isFunctionInternal(ProcessFunction)
	e.hasAnomaly = e.isFunctionInternal(IsAnomalyFunction)

	e.logger.WithFields(logrus.Fields{
		"script":     name,
		"process":    e.hasProcess,
		"is_anomaly": e.hasAnomaly,
	}).Info("Rule script loaded")

	if !e.hasProcess && !e.hasAnomaly {
		e.logger.WithField("script", name).Warn("Rule script defines neither process nor is_anomaly; defaults apply")
	}
	return nil
}

func (e *RuleEngine) isFunctionInternal(name string) bool {
	e.state.GetGlobal(name)
	defer e.state.Pop(1)
	return e.state.IsFunction(-1)
}

// HasProcess reports whether the loaded script defines process(v)
func (e *RuleEngine) HasProcess() bool {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	return e.hasProcess
}

// HasIsAnomaly reports whether the loaded script defines is_anomaly(v)
func (e *RuleEngine) HasIsAnomaly() bool {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	return e.hasAnomaly
}

// Process implements reading.Rule
func (e *RuleEngine) Process(v reading.Reading) (reading.Reading, bool) {
	var result reading.Reading
	err := e.call(ProcessFunction, v, func(L *lua.State) error {
		if !L.IsNumber(-1) {
			return fmt.Errorf("%s must return a number, got %s", ProcessFunction, L.Typename(int(L.Type(-1))))
		}
		n := L.ToNumber(-1)
		if math.IsNaN(n) || n < 0 || n != math.Trunc(n) || n >= math.MaxUint64 {
			return fmt.Errorf("%s must return a non-negative integer, got %v", ProcessFunction, n)
		}
		result = reading.Reading(n)
		return nil
	})
	if err != nil {
		e.logFallback(ProcessFunction, v, err)
		return v, false
	}
	return result, true
}

// IsAnomaly implements reading.Rule
func (e *RuleEngine) IsAnomaly(v reading.Reading) (bool, bool) {
	var result bool
	err := e.call(IsAnomalyFunction, v, func(L *lua.State) error {
		if !L.IsBoolean(-1) {
			return fmt.Errorf("%s must return a boolean, got %s", IsAnomalyFunction, L.Typename(int(L.Type(-1))))
		}
		result = L.ToBoolean(-1)
		return nil
	})
	if err != nil {
		e.logFallback(IsAnomalyFunction, v, err)
		return false, false
	}
	return result, true
}

// errNotDefined marks a rule function the script does not provide
var errNotDefined = errors.New("function not defined")

func (e *RuleEngine) call(fn string, v reading.Reading, result func(L *lua.State) error) error {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state == nil {
		return &ScriptError{Type: ErrTypeAPI, Message: "engine closed", Source: e.source}
	}
	defined := e.hasProcess
	if fn == IsAnomalyFunction {
		defined = e.hasAnomaly
	}
	if !defined {
		return errNotDefined
	}
	if uint64(v) > math.MaxInt64 {
		return &ScriptError{Type: ErrTypeAPI, Message: fmt.Sprintf("value %d exceeds script integer range", v), Source: e.source}
	}

	L := e.state
	top := L.GetTop()
	defer L.SetTop(top)

	L.GetGlobal(fn)
	L.PushInteger(int64(v))
	if err := L.Call(1, 1); err != nil {
		return parseScriptError(ErrTypeRuntime, e.source, err)
	}
	if err := result(L); err != nil {
		return &ScriptError{Type: ErrTypeResult, Message: err.Error(), Source: e.source}
	}
	return nil
}

func (e *RuleEngine) logFallback(fn string, v reading.Reading, err error) {
	if errors.Is(err, errNotDefined) {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"function": fn,
		"value":    v,
		"error":    err,
	}).Warn("Rule script failed, using default")
}

// Close releases the Lua state and the output channel
func (e *RuleEngine) Close() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
		e.state = nil
		e.outputChan.Close()
	}
}

// parseScriptError extracts the line number from messages shaped like
// `[string "..."]:3: attempt to call a nil value`.
func parseScriptError(errType, source string, err error) *ScriptError {
	msg := err.Error()
	var luaErr *lua.LuaError
	if errors.As(err, &luaErr) {
		msg = luaErr.Error()
	}

	line := 0
	message := msg
	if idx := strings.Index(msg, "]:"); idx >= 0 {
		rest := msg[idx+2:]
		if parts := strings.SplitN(rest, ":", 2); len(parts) == 2 {
			if parsed, scanErr := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &line); scanErr == nil && parsed == 1 {
				message = strings.TrimSpace(parts[1])
			}
		}
	}

	return &ScriptError{
		Type:       errType,
		Message:    message,
		Line:       line,
		Source:     source,
		Underlying: err,
	}
}
