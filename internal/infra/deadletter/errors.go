// Package deadletter stores collection operations that exhausted their retry
// budget so an operator can inspect and replay them.
package deadletter

import (
	"fmt"

	"batch-collector/internal/domain/entity"
)

func notFound(id string) error {
	return fmt.Errorf("dead letter %s: %w", id, entity.ErrNotFound)
}
