package leave

import "context"

// ConflictDetector checks a candidate range against a user's PENDING and
// APPROVED requests. REJECTED/CANCELLED requests never block.
//
// It fails closed: if the overlap query errors the candidate is treated as
// conflicting and the returned *ConflictError is retryable.
type ConflictDetector struct {
	Store RequestStore
}

func NewConflictDetector(store RequestStore) *ConflictDetector {
	return &ConflictDetector{Store: store}
}

// Check returns nil when [start, end] is free, *ConflictError otherwise.
func (d *ConflictDetector) Check(ctx context.Context, userID string, start, end Date) error {
	if start.After(end) {
		return &InvalidRangeError{Start: start, End: end}
	}
	existing, err := d.Store.FindActiveOverlapping(ctx, userID, start, end)
	if err != nil {
		return &ConflictError{UserID: userID, Start: start, End: end, Cause: err}
	}
	// Stores may return a superset.
	for _, r := range existing {
		if r.Active() && r.Overlaps(start, end) {
			return &ConflictError{UserID: userID, Start: start, End: end, ExistingID: r.ID}
		}
	}
	return nil
}

// HasConflict reports whether [start, end] overlaps an active request.
// Any failure, including a malformed range, counts as a conflict.
func (d *ConflictDetector) HasConflict(ctx context.Context, userID string, start, end Date) bool {
	return d.Check(ctx, userID, start, end) != nil
}
