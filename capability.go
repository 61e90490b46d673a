// Copyright 2026 Socotra, Inc.

package mcp

import "fmt"

// ClientCapabilities declares what a client supports. It is exchanged during
// initialize and cached for the lifetime of the connection.
type ClientCapabilities struct {
	Roots       *RootsCapability       `json:"roots,omitempty"`
	Sampling    *SamplingCapability    `json:"sampling,omitempty"`
	Elicitation *ElicitationCapability `json:"elicitation,omitempty"`
}

// RootsCapability declares that a client can list filesystem roots, and
// optionally that it will notify the server when that list changes.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapability declares that a client can service createMessage
// requests (LLM sampling on the host's behalf). It carries no sub-bits.
type SamplingCapability struct{}

// ElicitationCapability declares which elicitation modes a client accepts.
// A Form or URL member suppresses the empty-object back-compat injection
// described in §4.E; see normalizeElicitationCapability.
type ElicitationCapability struct {
	Form *FormElicitation `json:"form,omitempty"`
	URL  *URLElicitation  `json:"url,omitempty"`
}

// FormElicitation declares support for schema-validated form-mode
// elicitation, and optionally client-side default injection (§4.F.1).
type FormElicitation struct {
	ApplyDefaults bool `json:"applyDefaults,omitempty"`
}

// URLElicitation declares support for out-of-band URL-mode elicitation.
type URLElicitation struct{}

// normalizeElicitationCapability applies the back-compat shim from §4.E: an
// elicitation capability object present but with neither Form nor URL set is
// treated as "empty means form-mode supported." The normalized value, not
// the raw input, is authoritative from this point on (§9).
func normalizeElicitationCapability(c ClientCapabilities) ClientCapabilities {
	if c.Elicitation != nil && c.Elicitation.Form == nil && c.Elicitation.URL == nil {
		c.Elicitation.Form = &FormElicitation{}
	}
	return c
}

// ServerCapabilities declares what a server supports.
type ServerCapabilities struct {
	Tools       *ToolsCapability       `json:"tools,omitempty"`
	Resources   *ResourcesCapability   `json:"resources,omitempty"`
	Prompts     *PromptsCapability     `json:"prompts,omitempty"`
	Logging     *LoggingCapability     `json:"logging,omitempty"`
	Completions *CompletionsCapability `json:"completions,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type LoggingCapability struct{}

type CompletionsCapability struct{}

// requiredServerCapability reports whether method requires a server
// capability, and if so whether caps declares it. The required result is
// false for methods with no server-capability requirement (the gate is then
// trivially satisfied).
func requiredServerCapability(method string, caps ServerCapabilities) (required, satisfied bool) {
	switch method {
	case "logging/setLevel":
		return true, caps.Logging != nil
	case "prompts/list", "prompts/get":
		return true, caps.Prompts != nil
	case "resources/list", "resources/read", "resources/templates/list":
		return true, caps.Resources != nil
	case "resources/subscribe", "resources/unsubscribe":
		return true, caps.Resources != nil && caps.Resources.Subscribe
	case "tools/list", "tools/call":
		return true, caps.Tools != nil
	case "completion/complete":
		return true, caps.Completions != nil
	}
	return false, false
}

// requiredClientCapability reports whether method requires a client
// capability, and if so whether caps declares it.
func requiredClientCapability(method string, caps ClientCapabilities) (required, satisfied bool) {
	switch method {
	case "sampling/createMessage":
		return true, caps.Sampling != nil
	case "elicitation/create":
		return true, caps.Elicitation != nil
	case "roots/list":
		return true, caps.Roots != nil
	case "notifications/roots/list_changed":
		return true, caps.Roots != nil && caps.Roots.ListChanged
	}
	return false, false
}

// capabilityError formats the local, pre-send gate failure described in
// §4.E/§7: it never leaves the process, since the gate fails before any
// frame is written.
func capabilityError(side, method, capability string) error {
	return fmt.Errorf("%s does not support %s (required for %s)", side, capability, method)
}

func elicitationModeCapability(caps ClientCapabilities, mode string) bool {
	if caps.Elicitation == nil {
		return false
	}
	switch mode {
	case "form", "":
		return caps.Elicitation.Form != nil
	case "url":
		return caps.Elicitation.URL != nil
	}
	return false
}
