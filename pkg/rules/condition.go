package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic"
)

// EvaluateCondition applies a JSONLogic condition to data and reports whether
// the result is true. A nil condition always matches.
func EvaluateCondition(condition map[string]any, data map[string]any) (bool, error) {
	if len(condition) == 0 {
		return true, nil
	}

	ruleJSON, err := json.Marshal(condition)
	if err != nil {
		return false, fmt.Errorf("failed to encode condition: %w", err)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("failed to encode condition data: %w", err)
	}

	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(ruleJSON), bytes.NewReader(dataJSON), &result); err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	var out any
	if err := json.Unmarshal(result.Bytes(), &out); err != nil {
		return false, fmt.Errorf("failed to decode condition result %q: %w",
			strings.TrimSpace(result.String()), err)
	}

	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition must evaluate to a boolean, got %T", out)
	}
	return b, nil
}
