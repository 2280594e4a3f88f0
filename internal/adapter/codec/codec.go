package codec

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"shiplink/internal/domain"
)

// Field numbers of the frame record.
const (
	fieldKind         protowire.Number = 1
	fieldVersion      protowire.Number = 2
	fieldID           protowire.Number = 3
	fieldMethod       protowire.Number = 4
	fieldParam        protowire.Number = 5
	fieldResult       protowire.Number = 6
	fieldError        protowire.Number = 7
	fieldUser         protowire.Number = 8
	fieldServerTime   protowire.Number = 9
	fieldSessionToken protowire.Number = 10
	fieldOffline      protowire.Number = 11
	fieldItem         protowire.Number = 12
)

// Field numbers of the nested error record.
const (
	errFieldCode    protowire.Number = 1
	errFieldMessage protowire.Number = 2
	errFieldData    protowire.Number = 3
)

// Encode serializes an envelope into a single binary frame.
func Encode(env Envelope) ([]byte, error) {
	b := appendVarint(nil, fieldKind, uint64(env.Kind()))

	switch e := env.(type) {
	case *Request:
		b = appendVarint(b, fieldVersion, uint64(e.Version))
		b = appendVarint(b, fieldID, e.ID)
		b = appendBytes(b, fieldMethod, []byte(e.Method))
		for _, p := range TrimAbsent(e.Params) {
			// Absent params in the middle keep their slot as a zero-length value.
			b = appendBytes(b, fieldParam, p)
		}
	case *Response:
		b = appendVarint(b, fieldID, e.ID)
		if e.Error != nil {
			b = appendBytes(b, fieldError, encodeError(e.Error))
		} else if e.Result != nil {
			b = appendBytes(b, fieldResult, e.Result)
		}
	case *Welcome:
		user, err := json.Marshal(e.User)
		if err != nil {
			return nil, fmt.Errorf("encode welcome user: %w", err)
		}
		b = appendBytes(b, fieldUser, user)
		b = appendVarint(b, fieldServerTime, protowire.EncodeZigZag(e.ServerTime))
		b = appendBytes(b, fieldSessionToken, []byte(e.SessionToken))
		b = appendVarint(b, fieldOffline, protowire.EncodeZigZag(e.OfflineDuration))
	case *Chat:
		for i, item := range e.Items {
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("encode chat item %d: %w", i, err)
			}
			b = appendBytes(b, fieldItem, raw)
		}
	default:
		return nil, fmt.Errorf("encode: unsupported envelope %T", env)
	}
	return b, nil
}

// Decode parses one frame. Any malformed or truncated input yields an
// error wrapping domain.ErrMalformedFrame.
func Decode(data []byte) (Envelope, error) {
	var (
		kind      Kind
		req       Request
		resp      Response
		welcome   Welcome
		chat      Chat
		userRaw   []byte
		haveUser  bool
		haveToken bool
		haveID    bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, malformed("tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType && isVarintField(num):
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, malformed(fmt.Sprintf("field %d", num), protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldKind:
				if v > math.MaxUint8 {
					return nil, malformed("kind", fmt.Errorf("value %d out of range", v))
				}
				kind = Kind(v)
			case fieldVersion:
				req.Version = uint32(v)
			case fieldID:
				req.ID, resp.ID = v, v
				haveID = true
			case fieldServerTime:
				welcome.ServerTime = protowire.DecodeZigZag(v)
			case fieldOffline:
				welcome.OfflineDuration = protowire.DecodeZigZag(v)
			}
		case typ == protowire.BytesType && isBytesField(num):
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, malformed(fmt.Sprintf("field %d", num), protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldMethod:
				req.Method = string(v)
			case fieldParam:
				req.Params = append(req.Params, cloneOrNil(v))
			case fieldResult:
				resp.Result = clone(v)
			case fieldError:
				eo, err := decodeError(v)
				if err != nil {
					return nil, err
				}
				resp.Error = eo
			case fieldUser:
				userRaw, haveUser = v, true
			case fieldSessionToken:
				welcome.SessionToken = string(v)
				haveToken = true
			case fieldItem:
				var item domain.ChatItem
				if err := json.Unmarshal(v, &item); err != nil {
					return nil, malformed("chat item", err)
				}
				chat.Items = append(chat.Items, item)
			}
		default:
			// Unknown field: skip it so newer servers can add fields.
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, malformed(fmt.Sprintf("field %d", num), protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	switch kind {
	case KindRequest:
		if !haveID || req.Method == "" {
			return nil, malformed("request", fmt.Errorf("missing id or method"))
		}
		req.Params = TrimAbsent(req.Params)
		return &req, nil
	case KindResponse:
		if !haveID {
			return nil, malformed("response", fmt.Errorf("missing id"))
		}
		if resp.Error != nil && resp.Result != nil {
			return nil, malformed("response", fmt.Errorf("both result and error set"))
		}
		return &resp, nil
	case KindWelcome:
		if !haveUser || !haveToken {
			return nil, malformed("welcome", fmt.Errorf("missing user or session token"))
		}
		if err := json.Unmarshal(userRaw, &welcome.User); err != nil {
			return nil, malformed("welcome user", err)
		}
		return &welcome, nil
	case KindChat:
		return &chat, nil
	case 0:
		return nil, malformed("frame", fmt.Errorf("missing kind"))
	default:
		return nil, malformed("frame", fmt.Errorf("unknown kind %d", kind))
	}
}

func encodeError(e *ErrorObject) []byte {
	b := appendVarint(nil, errFieldCode, protowire.EncodeZigZag(int64(e.Code)))
	b = appendBytes(b, errFieldMessage, []byte(e.Message))
	if e.Data != nil {
		b = appendBytes(b, errFieldData, e.Data)
	}
	return b
}

func decodeError(data []byte) (*ErrorObject, error) {
	eo := &ErrorObject{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, malformed("error tag", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == errFieldCode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, malformed("error code", protowire.ParseError(n))
			}
			eo.Code = int(protowire.DecodeZigZag(v))
			data = data[n:]
		case (num == errFieldMessage || num == errFieldData) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, malformed("error field", protowire.ParseError(n))
			}
			if num == errFieldMessage {
				eo.Message = string(v)
			} else {
				eo.Data = clone(v)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, malformed("error field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return eo, nil
}

func isVarintField(num protowire.Number) bool {
	switch num {
	case fieldKind, fieldVersion, fieldID, fieldServerTime, fieldOffline:
		return true
	}
	return false
}

func isBytesField(num protowire.Number) bool {
	switch num {
	case fieldMethod, fieldParam, fieldResult, fieldError, fieldUser, fieldSessionToken, fieldItem:
		return true
	}
	return false
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// clone copies v so decoded values do not alias the read buffer.
func clone(v []byte) json.RawMessage {
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

func cloneOrNil(v []byte) json.RawMessage {
	if len(v) == 0 {
		return nil
	}
	return clone(v)
}

func malformed(what string, err error) error {
	return domain.NewDomainError("codec.Decode", domain.ErrMalformedFrame, fmt.Sprintf("%s: %v", what, err))
}
