// Package tools defines the ToolDefinition shape ToolRouter registers and
// dispatches against, plus the risk-level and source taxonomy it carries.
package tools

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Ident names a tool, e.g. "dispatch_subtasks" or "handoff_to".
type Ident string

func (i Ident) String() string { return string(i) }

// RiskLevel classifies a tool's blast radius for ToolPolicy's default-deny
// rule on high-risk tools.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Source distinguishes builtin tools (compiled into the binary) from
// external tools served by an out-of-process tool server.
type Source string

const (
	SourceBuiltin  Source = "builtin"
	SourceExternal Source = "external"
)

// Metadata carries the policy and scheduling facts ToolPolicy and
// ToolScheduler consult.
type Metadata struct {
	Risk            RiskLevel
	Mutating        bool
	SupportsParallel bool
	Source          Source
}

// ReadOnlyParallel reports whether this tool is eligible for the
// ToolScheduler's read-only concurrent batch.
func (m Metadata) ReadOnlyParallel() bool {
	return !m.Mutating && m.SupportsParallel
}

// Handler executes a tool call's params and returns a structured result or
// an error. params is a generic keyed container: the LLM produces arbitrary
// JSON, so strongly-typed handlers coerce at the edge and return an error
// on type mismatch.
type Handler func(ctx context.Context, params map[string]any) (Result, error)

// Result is the value a Handler returns on success. RequiresSuspension and
// RequiresApproval signal the two suspension triggers AgentRunner.Step
// checks for after a tool call completes.
type Result struct {
	Output             any
	RequiresSuspension bool
	ChildRunIDs        []string
	RequiresApproval   bool
	HumanInterventionNote string
}

// Definition is the ToolDefinition.
type Definition struct {
	Name        Ident
	Description string
	Parameters  json.RawMessage // JSON Schema
	Metadata    Metadata
	Handler     Handler

	schema *jsonschema.Schema
}

// CompileSchema parses Parameters as a JSON Schema so Validate can be used
// before dispatch. It is safe to call repeatedly; later calls recompile.
func (d *Definition) CompileSchema() error {
	if len(d.Parameters) == 0 {
		d.schema = nil
		return nil
	}
	compiler := jsonschema.NewCompiler()
	res, err := jsonschema.UnmarshalJSON(bytes.NewReader(d.Parameters))
	if err != nil {
		return err
	}
	resourceURL := "mem://tool-params/" + string(d.Name)
	if err := compiler.AddResource(resourceURL, res); err != nil {
		return err
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return err
	}
	d.schema = schema
	return nil
}

// Validate checks params against the tool's JSON Schema, if one was
// compiled via CompileSchema. Tools without a schema always validate.
func (d *Definition) Validate(params map[string]any) error {
	if d.schema == nil {
		return nil
	}
	return d.schema.Validate(params)
}

