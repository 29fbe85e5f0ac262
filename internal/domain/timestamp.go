package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is an entity timestamp: stored and handled internally as epoch
// seconds, exchanged with clients as epoch milliseconds. The conversion
// happens at the JSON boundary so storage and business logic never see the
// wire unit.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp { return Timestamp(time.Now().Unix()) }

// Time converts to a time.Time.
func (t Timestamp) Time() time.Time { return time.Unix(int64(t), 0) }

// MarshalJSON emits epoch milliseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(t)*1000, 10), nil
}

// UnmarshalJSON accepts epoch milliseconds (or null) and truncates to seconds.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(ms / 1000)
	return nil
}
