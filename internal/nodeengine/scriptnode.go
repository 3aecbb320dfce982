package nodeengine

import (
	"context"
	"net/http"

	"github.com/jirsi-platform/core/internal/sandbox"
)

// NodeScript is the user-supplied plugin node type tag (spec §4.I).
const NodeScript = "script.custom"

// ScriptSecretsResolver looks up the secret values a plugin declared it
// needs (Config["secrets"], a list of names) without the graph definition
// itself ever carrying secret material.
type ScriptSecretsResolver interface {
	Resolve(ctx context.Context, tenantID, graphID string, names []string) (map[string]string, error)
}

// ScriptNodeHandler bridges a graph's script.custom node into the Plugin
// Sandbox (spec §4.I), the Node Engine's counterpart to the original's
// script_node.rs delegating into plugin_sandbox.rs.
type ScriptNodeHandler struct {
	Engine     *sandbox.Engine
	Entities   sandbox.EntityStore
	Secrets    ScriptSecretsResolver
	HTTPClient *http.Client
	Allowlist  *sandbox.Allowlist
}

func (ScriptNodeHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "input", Type: PortObject}},
		Outputs: []Port{{Name: "output", Type: PortObject}, {Name: "logs", Type: PortArray}},
	}
}

func (h ScriptNodeHandler) Execute(ctx context.Context, node Node, inputs map[string]any, run *Context) (any, error) {
	script, _ := node.Config["script"].(string)
	entryPoint, _ := node.Config["entry_point"].(string)
	if entryPoint == "" {
		entryPoint = "handle"
	}

	trust, _ := node.Config["trust"].(string)
	limits := sandbox.Untrusted()
	switch trust {
	case "trusted":
		limits = sandbox.Trusted()
	case "system":
		limits = sandbox.System()
	}

	caps := map[sandbox.Capability]bool{sandbox.CapLog: true}
	if rawCaps, ok := node.Config["capabilities"].([]any); ok {
		for _, c := range rawCaps {
			if s, ok := c.(string); ok {
				caps[sandbox.Capability(s)] = true
			}
		}
	}

	var secrets map[string]string
	if h.Secrets != nil {
		names := stringSlice(node.Config["secrets"])
		tenantID := configTenant(node, run)
		resolved, err := h.Secrets.Resolve(ctx, tenantID.String(), node.ID.String(), names)
		if err != nil {
			return nil, err
		}
		secrets = resolved
	}

	input, _ := inputs["input"].(map[string]any)
	if input == nil {
		input = map[string]any{"value": inputs["value"], "trigger": run.Values[TriggerKey]}
	}

	allowlist := h.Allowlist
	if allowlist == nil {
		allowlist = sandbox.DefaultAllowlist()
	}

	result, err := h.Engine.Execute(ctx, sandbox.Request{
		Script:       script,
		EntryPoint:   entryPoint,
		Input:        input,
		Secrets:      secrets,
		Capabilities: caps,
		Limits:       limits,
		Allowlist:    allowlist,
		HTTPClient:   h.HTTPClient,
		Entities:     h.Entities,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"output": result.Output, "logs": result.Logs}, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
