// Package schema compiles and evaluates JSON Schema documents for the two
// places MCP needs them at runtime: validating a tool's structuredContent
// against its declared outputSchema, and validating an elicitation
// response's content against its requestedSchema. It also carries the
// completable-argument side table and default-injection helper used by
// the completion and elicitation subsystems.
package schema

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// CompiledSchema is a schema document that has already been parsed and is
// ready to validate values against.
type CompiledSchema interface {
	Validate(data any) (ok bool, message string)
}

// Validator compiles raw JSON Schema documents (as decoded into a
// map[string]any) into CompiledSchema values.
type Validator interface {
	Compile(schemaDoc map[string]any) (CompiledSchema, error)
}

// NewJSONSchemaValidator returns a Validator backed by gojsonschema, the
// default used throughout the engine when ServerOptions/ClientOptions do
// not supply one.
func NewJSONSchemaValidator() Validator { return jsonSchemaValidator{} }

type jsonSchemaValidator struct{}

func (jsonSchemaValidator) Compile(schemaDoc map[string]any) (CompiledSchema, error) {
	bits, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, err
	}
	sch, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(bits))
	if err != nil {
		return nil, err
	}
	return &compiledJSONSchema{schema: sch}, nil
}

type compiledJSONSchema struct {
	schema *gojsonschema.Schema
}

func (c *compiledJSONSchema) Validate(data any) (bool, string) {
	result, err := c.schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return false, err.Error()
	}
	if result.Valid() {
		return true, ""
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return false, strings.Join(msgs, "; ")
}

// CachingValidator memoizes compiled schemas by a caller-chosen key (a tool
// or prompt name), so a client need not recompile a tool's outputSchema on
// every callTool. Invalidate drops one entry; InvalidateAll drops the whole
// cache, which a client does whenever listTools() returns a fresh catalog.
type CachingValidator struct {
	inner Validator

	mu    sync.Mutex
	cache map[string]CompiledSchema
}

// NewCachingValidator wraps inner with a name-keyed compile cache.
func NewCachingValidator(inner Validator) *CachingValidator {
	return &CachingValidator{inner: inner, cache: make(map[string]CompiledSchema)}
}

// CompileNamed compiles schemaDoc under name, returning the cached schema if
// name was already compiled and not since invalidated.
func (c *CachingValidator) CompileNamed(name string, schemaDoc map[string]any) (CompiledSchema, error) {
	c.mu.Lock()
	if cs, ok := c.cache[name]; ok {
		c.mu.Unlock()
		return cs, nil
	}
	c.mu.Unlock()

	cs, err := c.inner.Compile(schemaDoc)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache[name] = cs
	c.mu.Unlock()
	return cs, nil
}

// Get returns the cached schema for name, if one has been compiled.
func (c *CachingValidator) Get(name string) (CompiledSchema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.cache[name]
	return cs, ok
}

// Invalidate drops the cached schema for name, if any.
func (c *CachingValidator) Invalidate(name string) {
	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()
}

// InvalidateAll drops every cached schema.
func (c *CachingValidator) InvalidateAll() {
	c.mu.Lock()
	c.cache = make(map[string]CompiledSchema)
	c.mu.Unlock()
}

// ApplyDefaults returns a copy of content with any required property of
// schemaDoc that is absent from content and carries a JSON Schema "default"
// filled in. The walk recurses into nested object properties and into every
// branch of oneOf/anyOf, unconditionally: a branch that does not apply to
// this content can still contribute a default, so a form may come back with
// fields belonging to a branch the caller never selected. That
// over-population is deliberate rather than a bug to engineer away; MCP
// form-mode elicitation has no way to learn which branch the client meant
// before the defaults are applied.
func ApplyDefaults(schemaDoc map[string]any, content map[string]any) map[string]any {
	out := make(map[string]any, len(content))
	for k, v := range content {
		out[k] = v
	}
	applyDefaultsInto(schemaDoc, out)
	return out
}

func applyDefaultsInto(schemaDoc map[string]any, out map[string]any) {
	if schemaDoc == nil {
		return
	}
	required := requiredSet(schemaDoc["required"])
	props, _ := schemaDoc["properties"].(map[string]any)
	for name, raw := range props {
		propSchema, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, isObject := propSchema["properties"]; isObject {
			nested, ok := out[name].(map[string]any)
			if !ok {
				if !required[name] {
					continue // don't invent an object for a field that was never set
				}
				nested = make(map[string]any)
			}
			applyDefaultsInto(propSchema, nested)
			if len(nested) > 0 {
				out[name] = nested
			}
			continue
		}
		if _, present := out[name]; present || !required[name] {
			continue
		}
		if def, ok := propSchema["default"]; ok {
			out[name] = def
		}
	}
	for _, key := range [...]string{"oneOf", "anyOf"} {
		branches, _ := schemaDoc[key].([]any)
		for _, b := range branches {
			if branchSchema, ok := b.(map[string]any); ok {
				applyDefaultsInto(branchSchema, out)
			}
		}
	}
}

func requiredSet(v any) map[string]bool {
	arr, _ := v.([]any)
	set := make(map[string]bool, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			set[s] = true
		}
	}
	return set
}
