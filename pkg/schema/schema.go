// Package schema compiles a Tool's declared input_schema document into
// a validator for tools/call arguments, using the same jsonschema
// representation the teacher's dynamic tool registrations build
// (pkg/gateway/dynamic_mcps.go, pkg/gateway/capabilitites.go) — there
// it describes a tool's shape to a client; here it also enforces that
// shape against the arguments a client actually sends.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Compile turns a Tool.InputSchema document into a resolved validator.
// A nil or empty document compiles to a nil Resolved: a tool with no
// declared schema accepts any arguments.
func Compile(doc map[string]any) (*jsonschema.Resolved, error) {
	if len(doc) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling input schema: %w", err)
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing input schema: %w", err)
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving input schema: %w", err)
	}
	return resolved, nil
}

// Validate checks args against a compiled schema. A nil schema always
// passes, matching Compile's treatment of an undeclared schema.
func Validate(resolved *jsonschema.Resolved, args map[string]any) error {
	if resolved == nil {
		return nil
	}
	return resolved.Validate(args)
}
