package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dop251/goja"

	"github.com/jirsi-platform/core/internal/apperrors"
	"github.com/jirsi-platform/core/internal/metrics"
)

// Request describes one plugin invocation.
type Request struct {
	Script       string
	EntryPoint   string
	Input        map[string]any
	Secrets      map[string]string
	Capabilities map[Capability]bool
	Limits       Limits
	Allowlist    *Allowlist
	HTTPClient   *http.Client
	Entities     EntityStore
}

// Result is what a successful invocation returns.
type Result struct {
	Output map[string]any
	Logs   []string
	Usage  Usage
}

// Engine runs ScriptNode plugins in an isolated goja runtime, one per
// invocation, under a Tracker enforcing Limits.
type Engine struct {
	metrics *metrics.Metrics
}

func NewEngine() *Engine { return &Engine{} }

// WithMetrics attaches a Metrics sink that Execute reports invocation
// outcomes and fuel consumption against. Passing nil disables reporting.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// Execute compiles and runs req.Script, invoking req.EntryPoint with
// req.Input. Every host capability call is mediated through the tracker
// and, for http_fetch, the allowlist; exceeding any limit or targeting a
// disallowed URL aborts the plugin with the matching apperrors code.
// Memory use is not measured: nothing charges Limits.MaxMemoryBytes during
// a run, so Execute never returns CodeResourceMemoryExceeded.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	tracker := NewTracker(req.Limits)
	vm := goja.New()

	var logs []string
	var hostErr error

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		if hostErr != nil {
			return goja.Undefined()
		}
		if !req.Capabilities[CapLog] {
			hostErr = apperrors.New(apperrors.CodeForbiddenDestination, "log capability not granted", http.StatusForbidden)
			panic(vm.ToValue(hostErr.Error()))
		}
		if err := tracker.ConsumeFuel(fuelPerLogCall); err != nil {
			hostErr = err
			panic(vm.ToValue(err.Error()))
		}
		args := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.String()
		}
		logs = append(logs, fmt.Sprint(args))
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	_ = vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		if hostErr != nil {
			return goja.Undefined()
		}
		if !req.Capabilities[CapHTTPFetch] {
			hostErr = apperrors.New(apperrors.CodeForbiddenDestination, "http_fetch capability not granted", http.StatusForbidden)
			panic(vm.ToValue(hostErr.Error()))
		}
		url := call.Argument(0).String()
		if req.Allowlist == nil || !req.Allowlist.IsAllowed(url) {
			hostErr = apperrors.New(apperrors.CodeForbiddenDestination, "destination not on allowlist", http.StatusForbidden).
				WithDetails("url", url)
			panic(vm.ToValue(hostErr.Error()))
		}
		if err := tracker.TrackHTTPRequest(); err != nil {
			hostErr = err
			panic(vm.ToValue(err.Error()))
		}
		if err := tracker.ConsumeFuel(fuelPerHTTPCall); err != nil {
			hostErr = err
			panic(vm.ToValue(err.Error()))
		}
		body, status, err := e.doFetch(ctx, req.HTTPClient, url)
		if err != nil {
			hostErr = apperrors.Network(err)
			panic(vm.ToValue(err.Error()))
		}
		response := vm.NewObject()
		_ = response.Set("status", status)
		_ = response.Set("ok", status >= 200 && status < 300)
		_ = response.Set("text", string(body))
		return response
	})

	entities := vm.NewObject()
	_ = entities.Set("read", func(call goja.FunctionCall) goja.Value {
		if hostErr != nil {
			return goja.Undefined()
		}
		if !req.Capabilities[CapEntityRead] {
			hostErr = apperrors.New(apperrors.CodeForbiddenDestination, "entity_read capability not granted", http.StatusForbidden)
			panic(vm.ToValue(hostErr.Error()))
		}
		if err := tracker.TrackEntityOp(); err != nil {
			hostErr = err
			panic(vm.ToValue(err.Error()))
		}
		if err := tracker.ConsumeFuel(fuelPerEntityCall); err != nil {
			hostErr = err
			panic(vm.ToValue(err.Error()))
		}
		entityType, id := call.Argument(0).String(), call.Argument(1).String()
		if req.Entities == nil {
			return goja.Null()
		}
		fields, err := req.Entities.ReadEntity(ctx, entityType, id)
		if err != nil {
			hostErr = apperrors.Storage(err)
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(fields)
	})
	_ = entities.Set("write", func(call goja.FunctionCall) goja.Value {
		if hostErr != nil {
			return goja.Undefined()
		}
		if !req.Capabilities[CapEntityWrite] {
			hostErr = apperrors.New(apperrors.CodeForbiddenDestination, "entity_write capability not granted", http.StatusForbidden)
			panic(vm.ToValue(hostErr.Error()))
		}
		if err := tracker.TrackEntityOp(); err != nil {
			hostErr = err
			panic(vm.ToValue(err.Error()))
		}
		if err := tracker.ConsumeFuel(fuelPerEntityCall); err != nil {
			hostErr = err
			panic(vm.ToValue(err.Error()))
		}
		entityType, id := call.Argument(0).String(), call.Argument(1).String()
		fields, _ := call.Argument(2).Export().(map[string]any)
		if req.Entities != nil {
			if err := req.Entities.WriteEntity(ctx, entityType, id, fields); err != nil {
				hostErr = apperrors.Storage(err)
				panic(vm.ToValue(err.Error()))
			}
		}
		return goja.Undefined()
	})
	_ = vm.Set("entities", entities)

	secretsObj := vm.NewObject()
	for k, v := range req.Secrets {
		_ = secretsObj.Set(k, v)
	}
	_ = vm.Set("secrets", secretsObj)
	_ = vm.Set("input", vm.ToValue(req.Input))

	timer := time.AfterFunc(req.Limits.Timeout, func() {
		vm.Interrupt(interruptTimeout)
	})
	defer timer.Stop()

	// A tight compute loop that never calls a host function never charges
	// fuel through ConsumeFuel; this fires fuel exhaustion proportionally to
	// wall-clock time so it is still caught as FuelExhausted, ahead of the
	// wall-clock timeout above (see Limits.FuelExhaustionWindow).
	if window, ok := req.Limits.FuelExhaustionWindow(); ok {
		fuelTimer := time.AfterFunc(window, func() {
			tracker.ForceFuelExhausted()
			vm.Interrupt(interruptFuelExhausted)
		})
		defer fuelTimer.Stop()
	}

	result, err := e.run(vm, req)
	if err != nil {
		if hostErr != nil {
			e.reportOutcome(req.Limits.Profile, hostErr, tracker.Usage())
			return nil, hostErr
		}
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if interrupted.Value() == interruptFuelExhausted {
				fuelErr := apperrors.New(apperrors.CodeResourceFuelExhausted, "plugin fuel exhausted", http.StatusTooManyRequests).
					WithDetails("consumed", tracker.Usage().FuelConsumed).WithDetails("limit", req.Limits.MaxFuel)
				e.reportOutcome(req.Limits.Profile, fuelErr, tracker.Usage())
				return nil, fuelErr
			}
			timeoutErr := apperrors.New(apperrors.CodeResourceTimeout, "plugin execution timed out", http.StatusRequestTimeout)
			e.reportOutcome(req.Limits.Profile, timeoutErr, tracker.Usage())
			return nil, timeoutErr
		}
		wrapped := apperrors.Wrap(apperrors.CodeInternal, "plugin execution failed", http.StatusInternalServerError, err)
		e.reportOutcome(req.Limits.Profile, wrapped, tracker.Usage())
		return nil, wrapped
	}

	e.reportOutcome(req.Limits.Profile, nil, tracker.Usage())
	return &Result{Output: result, Logs: logs, Usage: tracker.Usage()}, nil
}

// reportOutcome records one invocation's metrics. A nil err reports
// "success"; otherwise the outcome label is the error's apperrors code,
// matching the ResourceError variants enumerated in spec §4.I.
func (e *Engine) reportOutcome(profile string, err error, usage Usage) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		var svcErr *apperrors.Error
		if errors.As(err, &svcErr) {
			outcome = string(svcErr.Code)
			e.metrics.ObserveSandboxAbort(outcome)
		}
	}
	e.metrics.ObserveSandboxInvocation(profile, outcome, usage.FuelConsumed)
}

func (e *Engine) run(vm *goja.Runtime, req Request) (map[string]any, error) {
	if _, err := vm.RunString(req.Script); err != nil {
		return nil, err
	}
	entryPoint, ok := goja.AssertFunction(vm.Get(req.EntryPoint))
	if !ok {
		return nil, fmt.Errorf("entry point %q is not a function", req.EntryPoint)
	}
	resultVal, err := entryPoint(goja.Undefined(), vm.Get("input"))
	if err != nil {
		return nil, err
	}
	if resultVal == nil || goja.IsUndefined(resultVal) || goja.IsNull(resultVal) {
		return nil, nil
	}
	exported := resultVal.Export()
	if m, ok := exported.(map[string]any); ok {
		return m, nil
	}
	encoded, err := json.Marshal(exported)
	if err != nil {
		return map[string]any{"result": exported}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return map[string]any{"result": exported}, nil
	}
	return out, nil
}

func (e *Engine) doFetch(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	if client == nil {
		client = http.DefaultClient
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
