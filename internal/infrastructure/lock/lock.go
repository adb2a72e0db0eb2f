// Package lock serializes ledger writes per customer. MemoryLocker covers a
// single process; RedisLocker extends the guarantee across instances.
package lock

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/shared"
)

// ErrLockUnavailable is returned when a lock could not be acquired in time
var ErrLockUnavailable = shared.NewDomainError("LOCK_UNAVAILABLE", "Another write for this customer is in progress")

// CustomerKey returns the lock key guarding writes to one customer's ledger
func CustomerKey(customerID uuid.UUID) string {
	return fmt.Sprintf("ledger:customer:%s", customerID)
}

func unavailable(key string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrLockUnavailable, key, cause)
}
