package actions

import "encoding/json"

// Definition describes an action a plugin exposes.
type Definition struct {
	ID             string              `json:"id"`
	ActionID       string              `json:"action_id"`
	Name           string              `json:"name"`
	Classification string              `json:"classification"`
	Summary        string              `json:"summary"`
	SupportedTypes map[string]string   `json:"supported_types"`
	AcceptMultiple bool                `json:"accept_multiple"`
	Async          bool                `json:"async"`
	Format         string              `json:"format"`
	Params         json.RawMessage     `json:"params,omitempty"`
	ExtraSchema    json.RawMessage     `json:"extra_schema,omitempty"`
	Metadata       map[string][]string `json:"metadata,omitempty"`
}

// Supports reports whether the action accepts selectors of the given type.
func (d Definition) Supports(selectorType string) bool {
	if len(d.SupportedTypes) == 0 {
		return false
	}
	_, ok := d.SupportedTypes[selectorType]
	return ok
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePending = "pending"
)

// Result is the outcome of an executed action. Output is free-form and its
// interpretation depends on Format.
type Result struct {
	Outcome string          `json:"outcome"`
	Summary string          `json:"summary"`
	Format  string          `json:"format,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	Link    string          `json:"link,omitempty"`
	TaskID  string          `json:"task_id,omitempty"`
}

// Succeeded reports whether the action completed successfully.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}
