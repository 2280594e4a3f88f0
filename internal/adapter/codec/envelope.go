// Package codec implements the binary wire encoding of shiplink envelopes.
//
// Frames are protobuf-wire records (tag + varint / length-delimited fields)
// built with protowire. Opaque values (call params, results, error data, user
// records, chat items) travel as JSON bytes inside length-delimited fields.
package codec

import (
	"encoding/json"
	"fmt"

	"shiplink/internal/domain"
)

// ProtocolVersion is sent with every request.
const ProtocolVersion = 1

// Kind is the discriminant tag of a frame.
type Kind uint8

const (
	KindRequest  Kind = 1
	KindResponse Kind = 2
	KindWelcome  Kind = 3
	KindChat     Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindWelcome:
		return "welcome"
	case KindChat:
		return "chat"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Envelope is the closed set of frames: *Request, *Response, *Welcome, *Chat.
type Envelope interface {
	Kind() Kind
	envelope()
}

// Request is a client call descriptor. A nil entry in Params is "absent";
// trailing absent entries are never put on the wire.
type Request struct {
	Version uint32
	ID      uint64
	Method  string
	Params  []json.RawMessage
}

// ErrorObject is the structured failure carried by a Response.
type ErrorObject struct {
	Code    int
	Message string
	Data    json.RawMessage
}

// Response answers exactly one Request. Error == nil means success;
// Result may be nil for calls that return nothing.
type Response struct {
	ID     uint64
	Result json.RawMessage
	Error  *ErrorObject
}

// Welcome is the handshake push that moves the connection to Ready.
type Welcome struct {
	User            domain.User
	ServerTime      int64 // unix milliseconds
	SessionToken    string
	OfflineDuration int64 // milliseconds
}

// Chat is a broadcast push of zero or more items.
type Chat struct {
	Items []domain.ChatItem
}

func (*Request) Kind() Kind  { return KindRequest }
func (*Response) Kind() Kind { return KindResponse }
func (*Welcome) Kind() Kind  { return KindWelcome }
func (*Chat) Kind() Kind     { return KindChat }

func (*Request) envelope()  {}
func (*Response) envelope() {}
func (*Welcome) envelope()  {}
func (*Chat) envelope()     {}

// NewRequest marshals params to JSON and builds a Request. A nil param is
// kept as absent; trailing absent params are dropped.
func NewRequest(id uint64, method string, params ...any) (*Request, error) {
	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		if p == nil {
			continue
		}
		if r, ok := p.(json.RawMessage); ok {
			raw[i] = r
			continue
		}
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal param %d of %s: %w", i, method, err)
		}
		raw[i] = b
	}
	return &Request{
		Version: ProtocolVersion,
		ID:      id,
		Method:  method,
		Params:  TrimAbsent(raw),
	}, nil
}

// TrimAbsent drops the trailing run of absent (nil or empty) params.
func TrimAbsent(params []json.RawMessage) []json.RawMessage {
	n := len(params)
	for n > 0 && len(params[n-1]) == 0 {
		n--
	}
	if n == 0 {
		return nil
	}
	return params[:n]
}

// ToRPCError converts a wire failure into the typed client error.
func (e *ErrorObject) ToRPCError() *domain.RPCError {
	return &domain.RPCError{Code: e.Code, Message: e.Message, Data: e.Data}
}
