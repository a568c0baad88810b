package policy

import (
	"fmt"
	"slices"
)

// AllowList is the set of function names a session may execute. Names are
// expected to be normalized by the caller before insertion and lookup.
type AllowList struct {
	names []string
}

// NewAllowList builds an allow-list preserving first-seen order and dropping
// empty and repeated names.
func NewAllowList(names ...string) AllowList {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return AllowList{names: out}
}

func (a AllowList) Allows(name string) bool {
	return name != "" && slices.Contains(a.names, name)
}

func (a AllowList) Names() []string {
	return slices.Clone(a.names)
}

func (a AllowList) Len() int { return len(a.names) }

// FunctionDecision is the outcome of checking a model-requested call.
type FunctionDecision struct {
	Allowed bool
	// Notice is the user-facing explanation for a rejected call.
	Notice string
	// Result is the synthetic error result returned upstream for a rejected
	// call so the model does not wait on it.
	Result map[string]any
}

// DecideFunction checks name against the allow-list.
func (a AllowList) DecideFunction(name string) FunctionDecision {
	if a.Allows(name) {
		return FunctionDecision{Allowed: true}
	}
	return FunctionDecision{
		Notice: fmt.Sprintf("Error: function %s is not enabled for this assistant.", name),
		Result: map[string]any{
			"error":  fmt.Sprintf("Function %s not allowed", name),
			"status": "error",
		},
	}
}
