package bulkimport

import (
	"fmt"

	"github.com/ignite/loadboard/internal/domain"
)

var transitions = map[domain.State][]domain.State{
	domain.StateCollecting:         {domain.StatePreviewing},
	domain.StatePreviewing:         {domain.StateImporting},
	// back to previewing only when an import failed before writing anything
	domain.StateImporting:          {domain.StateCompleted, domain.StatePartiallyCompleted, domain.StatePreviewing},
	domain.StateCompleted:          {domain.StateUndone},
	domain.StatePartiallyCompleted: {domain.StateUndone},
}

// Transition validates a session state change.
func Transition(from, to domain.State) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	if from == domain.StateUndone && to == domain.StateUndone {
		return ErrAlreadyUndone
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
