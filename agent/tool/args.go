package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/mapstructure"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

// decodeArgs maps the model's JSON arguments onto out. Scalars are coerced
// where it is lossless; unknown keys are rejected.
func decodeArgs(toolName, argumentsJSON string, out any) error {
	raw := map[string]any{}
	if s := strings.TrimSpace(argumentsJSON); s != "" {
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return &contractx.ToolExecutionError{
				Tool: toolName,
				Err:  fmt.Errorf("%w: arguments are not a JSON object: %v", contractx.ErrSchemaViolation, err),
			}
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return &contractx.ToolExecutionError{Tool: toolName, Err: err}
	}
	if err := dec.Decode(raw); err != nil {
		return &contractx.ToolExecutionError{
			Tool: toolName,
			Err:  fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err),
		}
	}
	return nil
}

// validationFailure converts an ozzo error into a ToolExecutionError naming
// the first offending field.
func validationFailure(toolName string, err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for f := range fieldErrs {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		field := fields[0]
		return &contractx.ToolExecutionError{
			Tool:  toolName,
			Field: field,
			Err:   fmt.Errorf("%w: %v", contractx.ErrValidation, fieldErrs[field]),
		}
	}
	return &contractx.ToolExecutionError{
		Tool: toolName,
		Err:  fmt.Errorf("%w: %v", contractx.ErrValidation, err),
	}
}

func categoryValues() []any {
	names := contractx.CategoryNames()
	out := make([]any, 0, len(names))
	for _, n := range names {
		out = append(out, n)
	}
	return out
}
