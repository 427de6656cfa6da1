// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmd101

// Event reports what a single Feed call did.
// Faults never stop the decoder; they are reported for statistics only.
type Event uint8

const (
	EventNone Event = iota
	EventRow
	EventFrameAccepted
	EventChecksumMismatch
	EventUnknownCode
	EventSyncLost
	EventStoreOverflow
)

// IsFault returns true for events that discarded data
func (e Event) IsFault() bool {
	switch e {
	case EventChecksumMismatch, EventUnknownCode, EventSyncLost, EventStoreOverflow:
		return true
	}
	return false
}

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventRow:
		return "row"
	case EventFrameAccepted:
		return "frame_accepted"
	case EventChecksumMismatch:
		return "checksum_mismatch"
	case EventUnknownCode:
		return "unknown_code"
	case EventSyncLost:
		return "sync_lost"
	case EventStoreOverflow:
		return "store_overflow"
	default:
		return "unknown"
	}
}
