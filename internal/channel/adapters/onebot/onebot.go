// Package onebot implements the chat transport over a OneBot v11 websocket
// connection.
package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shareclub/curator/internal/channel"
)

const apiTimeout = 15 * time.Second

// eventBuffer must absorb any burst that arrives while a handler blocks inside
// callAPI: readLoop is the only reader of the socket, so once the buffer fills
// it stalls and pending API responses sit unread until the call times out.
const eventBuffer = 256

// Adapter maintains one websocket connection to a OneBot implementation. It
// implements channel.Transport and channel.MessageResolver, and surfaces
// inbound events on a single channel consumed by the bot loop.
type Adapter struct {
	logger *slog.Logger
	url    string
	token  string

	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan apiResponse

	events chan channel.Event
}

// NewAdapter creates a OneBot adapter for the given websocket endpoint.
func NewAdapter(log *slog.Logger, url, accessToken string) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "onebot")),
		url:     url,
		token:   accessToken,
		pending: make(map[string]chan apiResponse),
		events:  make(chan channel.Event, eventBuffer),
	}
}

// Connect dials the websocket endpoint and starts the read loop.
func (a *Adapter) Connect(ctx context.Context) error {
	header := http.Header{}
	if a.token != "" {
		header.Set("Authorization", "Bearer "+a.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.url, err)
	}
	a.conn = conn
	go a.readLoop()
	a.logger.Info("connected", slog.String("url", a.url))
	return nil
}

// Close tears down the connection; the events channel closes once the read
// loop exits.
func (a *Adapter) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}

// Events returns the inbound event stream.
func (a *Adapter) Events() <-chan channel.Event {
	return a.events
}

// wireSegment is a OneBot message segment: a type tag plus a type-specific
// data object.
type wireSegment struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireEvent struct {
	PostType      string          `json:"post_type"`
	MetaEventType string          `json:"meta_event_type"`
	MessageType   string          `json:"message_type"`
	SelfID        int64           `json:"self_id"`
	UserID        int64           `json:"user_id"`
	GroupID       int64           `json:"group_id"`
	Sender        wireSender      `json:"sender"`
	Message       []wireSegment   `json:"message"`
	Status        json.RawMessage `json:"status"`
	RetCode       int             `json:"retcode"`
	Data          json.RawMessage `json:"data"`
	Echo          string          `json:"echo"`
}

type wireSender struct {
	Nickname string `json:"nickname"`
}

type apiResponse struct {
	RetCode int
	Data    json.RawMessage
}

func (a *Adapter) readLoop() {
	defer close(a.events)
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			a.logger.Error("read failed", slog.Any("error", err))
			return
		}
		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			a.logger.Warn("unparseable frame", slog.Any("error", err))
			continue
		}
		if ev.Echo != "" {
			a.deliver(ev.Echo, apiResponse{RetCode: ev.RetCode, Data: ev.Data})
			continue
		}
		switch ev.PostType {
		case "message":
			a.events <- channel.Event{Kind: channel.EventMessage, Message: inboundFromWire(ev)}
		case "meta_event":
			if ev.MetaEventType == "heartbeat" {
				a.events <- channel.Event{Kind: channel.EventHeartbeat, HeartbeatOK: heartbeatGood(ev.Status)}
			}
		default:
			a.logger.Debug("ignored frame", slog.String("post_type", ev.PostType))
		}
	}
}

func heartbeatGood(status json.RawMessage) bool {
	var parsed struct {
		Good bool `json:"good"`
	}
	if err := json.Unmarshal(status, &parsed); err != nil {
		return false
	}
	return parsed.Good
}

func inboundFromWire(ev wireEvent) channel.InboundMessage {
	return channel.InboundMessage{
		Private:  ev.MessageType == "private",
		SelfID:   ev.SelfID,
		GroupID:  ev.GroupID,
		Sender:   channel.Sender{UserID: ev.UserID, Nickname: ev.Sender.Nickname},
		Segments: segmentsFromWire(ev.Message),
	}
}

func segmentsFromWire(wire []wireSegment) []channel.Segment {
	segments := make([]channel.Segment, 0, len(wire))
	for _, ws := range wire {
		segments = append(segments, segmentFromWire(ws))
	}
	return segments
}

func segmentFromWire(ws wireSegment) channel.Segment {
	raw, _ := json.Marshal(ws)
	switch ws.Type {
	case "text":
		var data struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(ws.Data, &data) == nil {
			return channel.Segment{Type: channel.SegmentText, Text: data.Text, Raw: raw}
		}
	case "image":
		var data struct {
			File string `json:"file"`
			URL  string `json:"url"`
		}
		if json.Unmarshal(ws.Data, &data) == nil {
			return channel.Segment{Type: channel.SegmentImage, File: data.File, URL: data.URL, Raw: raw}
		}
	case "json":
		var data struct {
			Data string `json:"data"`
		}
		if json.Unmarshal(ws.Data, &data) == nil {
			return channel.Segment{Type: channel.SegmentRich, Data: data.Data, Raw: raw}
		}
	case "at":
		var data struct {
			QQ string `json:"qq"`
		}
		if json.Unmarshal(ws.Data, &data) == nil {
			return channel.Segment{Type: channel.SegmentAt, TargetID: data.QQ, Raw: raw}
		}
	case "reply":
		var data struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(ws.Data, &data) == nil {
			return channel.Segment{Type: channel.SegmentReply, TargetID: data.ID, Raw: raw}
		}
	}
	return channel.Segment{Type: channel.SegmentUnknown, Raw: raw}
}

func segmentToWire(seg channel.Segment) json.RawMessage {
	switch seg.Type {
	case channel.SegmentText:
		return mustWire("text", map[string]any{"text": seg.Text})
	case channel.SegmentAt:
		return mustWire("at", map[string]any{"qq": seg.TargetID})
	case channel.SegmentImage:
		return mustWire("image", map[string]any{"file": seg.File, "url": seg.URL})
	case channel.SegmentReply:
		return mustWire("reply", map[string]any{"id": seg.TargetID})
	default:
		if len(seg.Raw) > 0 {
			return json.RawMessage(seg.Raw)
		}
		return mustWire("text", map[string]any{"text": ""})
	}
}

func mustWire(segType string, data map[string]any) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"type": segType, "data": data})
	return raw
}

func segmentsToWire(segments []channel.Segment) []json.RawMessage {
	wire := make([]json.RawMessage, 0, len(segments))
	for _, seg := range segments {
		wire = append(wire, segmentToWire(seg))
	}
	return wire
}

// SendGroupMessage delivers ordered segments to a group conversation.
func (a *Adapter) SendGroupMessage(ctx context.Context, groupID int64, segments []channel.Segment) error {
	_, err := a.callAPI(ctx, "send_group_msg", map[string]any{
		"group_id":    groupID,
		"message":     segmentsToWire(segments),
		"auto_escape": false,
	})
	return err
}

// SendPrivateMessage delivers ordered segments to a single user.
func (a *Adapter) SendPrivateMessage(ctx context.Context, userID int64, segments []channel.Segment) error {
	_, err := a.callAPI(ctx, "send_private_msg", map[string]any{
		"user_id":     userID,
		"message":     segmentsToWire(segments),
		"auto_escape": false,
	})
	return err
}

// GetMessage resolves a previously sent message's segments by id.
func (a *Adapter) GetMessage(ctx context.Context, messageID string) ([]channel.Segment, error) {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse message id: %w", err)
	}
	data, err := a.callAPI(ctx, "get_msg", map[string]any{"message_id": id})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Message []wireSegment `json:"message"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse get_msg response: %w", err)
	}
	return segmentsFromWire(parsed.Message), nil
}

func (a *Adapter) callAPI(ctx context.Context, action string, params any) (json.RawMessage, error) {
	echo := uuid.NewString()
	resultCh := make(chan apiResponse, 1)
	a.pendingMu.Lock()
	a.pending[echo] = resultCh
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, echo)
		a.pendingMu.Unlock()
	}()

	payload := map[string]any{"action": action, "params": params, "echo": echo}
	a.writeMu.Lock()
	err := a.conn.WriteJSON(payload)
	a.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", action, err)
	}

	select {
	case resp := <-resultCh:
		if resp.RetCode != 0 {
			return nil, fmt.Errorf("call %s: retcode %d", action, resp.RetCode)
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(apiTimeout):
		return nil, fmt.Errorf("call %s: timed out", action)
	}
}

func (a *Adapter) deliver(echo string, resp apiResponse) {
	a.pendingMu.Lock()
	ch, ok := a.pending[echo]
	a.pendingMu.Unlock()
	if !ok {
		a.logger.Warn("response without caller", slog.String("echo", echo))
		return
	}
	ch <- resp
}
