package model

import "time"

type (
	// ConnectionState is owned by the connection manager; everything else
	// reads it, nothing else mutates it.
	ConnectionState uint8

	// StateChange is pushed on every connection-state transition.
	StateChange struct {
		State     ConnectionState
		PeerCount int
		At        time.Time
	}

	// Announce is the wire frame exchanged through the relay. A frame either
	// announces a stored envelope (FrameAnnounce), reports presence counts
	// (FramePresence), or acknowledges delivery (FrameDelivered).
	Announce struct {
		Type      string `json:"type"`
		From      string `json:"from,omitempty"`
		To        string `json:"to,omitempty"`
		StoreID   string `json:"store_id,omitempty"`
		MessageID string `json:"message_id,omitempty"`
		PeerCount int    `json:"peer_count,omitempty"`
		Timestamp int64  `json:"timestamp,omitempty"`
	}
)

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

const (
	FrameAnnounce  = "announce"
	FramePresence  = "presence"
	FrameDelivered = "delivered"
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}
