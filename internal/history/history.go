// Package history provides the append-only snapshot store. Every collection
// run appends a new record per account; nothing is ever deduplicated or
// upserted. Repeated runs over unchanged infrastructure accumulate distinct
// entries.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one per-account snapshot handed to the sink. Instances is the
// serialized instance list; the store treats it as opaque.
type Record struct {
	RunUUID        string
	AccountID      string
	CollectedAt    time.Time // UTC
	LocalTimestamp string    // operator-local display time
	Total          int
	Instances      json.RawMessage
}

// Sink is the durable boundary write. Append is at-least-once: callers may
// retry on transient failure, and each successful call produces a distinct
// history entry.
type Sink interface {
	Append(ctx context.Context, rec *Record) error
}

// SinkError reports a failed persistence attempt. Unlike per-account auth or
// API failures it is not swallowed; a collected-but-unsaved snapshot is a
// user-visible loss.
type SinkError struct {
	AccountID string
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("history: appending snapshot for account %s: %v", e.AccountID, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
