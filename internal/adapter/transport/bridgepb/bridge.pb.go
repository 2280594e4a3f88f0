//go:build hostbridge

// Package bridgepb contains the message types for the host bridge gRPC service.
//
// These types are hand-written Go structs with JSON serialization instead of
// protobuf-generated code, carried over gRPC's JSON codec.
package bridgepb

// Frame carries one opaque shiplink frame in either direction. A frame with
// Close set is the last one on the stream.
type Frame struct {
	Data  []byte       `json:"data,omitempty"`
	Close *CloseNotice `json:"close,omitempty"`
}

// CloseNotice ends an Exchange stream with a close code.
type CloseNotice struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// WatchRequest subscribes to host lifecycle events.
type WatchRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

// HostEvent is a host lifecycle notification.
type HostEvent struct {
	Kind string `json:"kind"` // "closing"
}

// HostEventClosing announces that the host is about to terminate.
const HostEventClosing = "closing"

// QueryMetadataKey is the gRPC metadata key holding the encoded handshake query.
const QueryMetadataKey = "x-shiplink-query"
