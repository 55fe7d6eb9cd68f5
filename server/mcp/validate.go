package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrInvalidArguments marks a request rejected at the tool boundary.
var ErrInvalidArguments = errors.New("invalid arguments")

// argValidator checks call arguments against a tool's declared input schema
type argValidator struct {
	schema *jsonschema.Schema
}

func newArgValidator(tool mcp.Tool) (*argValidator, error) {
	schemaBytes, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s input schema: %w", tool.Name, err)
	}

	compiled, err := jsonschema.NewCompiler().Compile(schemaBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid %s input schema: %w", tool.Name, err)
	}
	return &argValidator{schema: compiled}, nil
}

// Validate returns an ErrInvalidArguments error listing every violation.
func (v *argValidator) Validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}

	result := v.schema.Validate(args)
	if result.IsValid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors))
	for field, e := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Message))
	}
	sort.Strings(msgs)
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
}

// bindArguments decodes validated arguments into a typed request.
func bindArguments(args map[string]any, target any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
