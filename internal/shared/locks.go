package shared

import "fmt"

// SessionLockKey builds the advisory lock key serialising mutations of a
// consolidation session's line set.
func SessionLockKey(sessionID int64) string {
	return fmt.Sprintf("consolidation:session:%d:lock", sessionID)
}

// PlanLockKey builds the advisory lock key serialising fulfillment quantity
// updates when concurrent completion events arrive.
func PlanLockKey(planID int64) string {
	return fmt.Sprintf("fulfillment:plan:%d:lock", planID)
}
