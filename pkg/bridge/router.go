package bridge

import (
	"crypto/md5"
	"encoding/binary"
)

// Router decides whether a call rides the realtime engine or the turn-based
// fallback. The decision is a pure function of the call ID so a call always
// lands on the same side regardless of which instance handles it.
type Router struct {
	Enabled    bool
	Percentage int // rollout percentage within [0,100]
}

// UseRealtime reports whether the given call should use the realtime engine.
// The call ID is hashed into one of 100 buckets; calls below the configured
// percentage go realtime.
func (r Router) UseRealtime(callID string) bool {
	if !r.Enabled || r.Percentage <= 0 || callID == "" {
		return false
	}
	if r.Percentage >= 100 {
		return true
	}
	sum := md5.Sum([]byte(callID))
	bucket := binary.BigEndian.Uint32(sum[:4]) % 100
	return int(bucket) < r.Percentage
}
