// Package transport is raw secure-socket transport and JSON parsing: a
// thin adapter from websocket byte frames to the client/relay JSON
// arrays the protocol defines, with no retry or reconnect logic of its
// own — that belongs to RelayConnection (internal/relayconn), one layer
// up.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// Socket is one live connection to a relay. It is deliberately minimal:
// Dial/Send/Recv/Close, with no notion of subscriptions or state —
// RelayConnection owns that.
type Socket struct {
	conn *websocket.Conn
	url string
}

// Dial opens a websocket connection to url (expected ws:// or wss://).
func Dial(ctx context.Context, url string) (*Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &Socket{conn: conn, url: url}, nil
}

// Close closes the underlying connection with a normal closure status.
func (s *Socket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}

// SendEvent writes a client→relay `["EVENT", <event>]` frame.
func (s *Socket) SendEvent(ctx context.Context, ev nostrtypes.Event) error {
	return s.writeJSON(ctx, []any{"EVENT", ev})
}

// SendReq writes a client→relay `["REQ", <sub_id>, <filter>,...]` frame.
func (s *Socket) SendReq(ctx context.Context, subID string, filters []nostrtypes.Filter) error {
	frame := make([]any, 0, 2+len(filters))
	frame = append(frame, "REQ", subID)
	for _, f := range filters {
		frame = append(frame, f)
	}
	return s.writeJSON(ctx, frame)
}

// SendClose writes a client→relay `["CLOSE", <sub_id>]` frame.
func (s *Socket) SendClose(ctx context.Context, subID string) error {
	return s.writeJSON(ctx, []any{"CLOSE", subID})
}

func (s *Socket) writeJSON(ctx context.Context, frame []any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write to %s: %w", s.url, err)
	}
	return nil
}

// FrameKind tags the relay→client message variant: Event, Eose,
// Closed, Ok, or Notice.
type FrameKind int

const (
	FrameEvent FrameKind = iota
	FrameEose
	FrameClosed
	FrameOk
	FrameNotice
)

// Frame is a parsed relay→client message. Only the fields relevant to
// Kind are populated.
type Frame struct {
	Kind FrameKind

	SubID string // Event, Eose, Closed
	Event nostrtypes.Event
	Reason string // Closed
	EventID nostrtypes.EventID
	OK bool
	Message string // Ok, Notice
}

// Recv blocks for the next relay→client frame and parses it into one
// of the five known message shapes. An unrecognized first element is a
// protocol parse error the caller should count and drop, not a fatal
// transport error.
func (s *Socket) Recv(ctx context.Context) (Frame, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: read from %s: %w", s.url, err)
	}
	return parseFrame(data)
}

var ErrProtocolParse = fmt.Errorf("transport: malformed relay frame")

func parseFrame(data []byte) (Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return Frame{}, ErrProtocolParse
	}
	var label string
	if err := json.Unmarshal(raw[0], &label); err != nil {
		return Frame{}, ErrProtocolParse
	}

	switch label {
	case "EVENT":
		if len(raw) != 3 {
			return Frame{}, ErrProtocolParse
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return Frame{}, ErrProtocolParse
		}
		var ev nostrtypes.Event
		if err := json.Unmarshal(raw[2], &ev); err != nil {
			return Frame{}, fmt.Errorf("%w: event payload: %v", ErrProtocolParse, err)
		}
		return Frame{Kind: FrameEvent, SubID: subID, Event: ev}, nil

	case "EOSE":
		if len(raw) != 2 {
			return Frame{}, ErrProtocolParse
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return Frame{}, ErrProtocolParse
		}
		return Frame{Kind: FrameEose, SubID: subID}, nil

	case "CLOSED":
		if len(raw) != 3 {
			return Frame{}, ErrProtocolParse
		}
		var subID, reason string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return Frame{}, ErrProtocolParse
		}
		_ = json.Unmarshal(raw[2], &reason)
		return Frame{Kind: FrameClosed, SubID: subID, Reason: reason}, nil

	case "OK":
		if len(raw) != 4 {
			return Frame{}, ErrProtocolParse
		}
		var idHex string
		if err := json.Unmarshal(raw[1], &idHex); err != nil {
			return Frame{}, ErrProtocolParse
		}
		id, err := nostrtypes.ParseEventID(idHex)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: event id: %v", ErrProtocolParse, err)
		}
		var ok bool
		var msg string
		_ = json.Unmarshal(raw[2], &ok)
		_ = json.Unmarshal(raw[3], &msg)
		return Frame{Kind: FrameOk, EventID: id, OK: ok, Message: msg}, nil

	case "NOTICE":
		if len(raw) != 2 {
			return Frame{}, ErrProtocolParse
		}
		var msg string
		_ = json.Unmarshal(raw[1], &msg)
		return Frame{Kind: FrameNotice, Message: msg}, nil
	}

	return Frame{}, ErrProtocolParse
}
