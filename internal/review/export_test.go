package review

import "github.com/google/uuid"

// InMemory reports whether the orchestrator still holds the execution.
func (o *Orchestrator) InMemory(id uuid.UUID) bool {
	return o.lookup(id) != nil
}
