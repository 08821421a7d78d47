package blob

import (
	memorystore "idotplan/internal/infra/blob/memory"
)

// NewMemory returns an in-memory blob.Store used by tests and dry runs.
func NewMemory() Store { return memorystore.New() }
