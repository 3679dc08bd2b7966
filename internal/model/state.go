package model

import "time"

// SyncState is what this device remembers about its last successful sync.
// It is only written after a push or pull completes.
type SyncState struct {
	LastSyncTimestamp *time.Time `json:"lastSyncTimestamp,omitempty"`
	RemoteContainerID string     `json:"remoteContainerId,omitempty"`
	LastConfigHash    string     `json:"lastConfigHash,omitempty"`
	LastContextsHash  string     `json:"lastContextsHash,omitempty"`
}

// HasSynced reports whether a sync has ever completed on this device.
func (s SyncState) HasSynced() bool {
	return s.LastSyncTimestamp != nil
}
