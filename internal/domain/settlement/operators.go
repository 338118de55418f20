package settlement

import (
	"errors"
	"strings"
)

var ErrUnauthorizedOperator = errors.New("operator is not allowed to drive settlement")

// Operators is the allow list of identities that may begin or resume
// settlement. Matching ignores case and surrounding whitespace.
type Operators struct {
	allowed map[string]struct{}
}

func NewOperators(refs []string) *Operators {
	allowed := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if key := normalizeOperator(ref); key != "" {
			allowed[key] = struct{}{}
		}
	}
	return &Operators{allowed: allowed}
}

// Authorize returns ErrUnauthorizedOperator unless ref is on the list.
func (o *Operators) Authorize(ref string) error {
	if o == nil {
		return ErrUnauthorizedOperator
	}
	key := normalizeOperator(ref)
	if key == "" {
		return ErrUnauthorizedOperator
	}
	if _, ok := o.allowed[key]; !ok {
		return ErrUnauthorizedOperator
	}
	return nil
}

func (o *Operators) Len() int {
	if o == nil {
		return 0
	}
	return len(o.allowed)
}

func normalizeOperator(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}
