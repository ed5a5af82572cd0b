// Package channel defines the transport-facing message model: typed segments,
// inbound events, and the send/resolve interfaces adapters implement.
package channel

import (
	"context"
	"encoding/json"
)

// SegmentType identifies one kind of message segment. The set is closed;
// anything an adapter cannot map lands on SegmentUnknown.
type SegmentType string

const (
	SegmentText    SegmentType = "text"
	SegmentImage   SegmentType = "image"
	SegmentRich    SegmentType = "json"
	SegmentAt      SegmentType = "at"
	SegmentReply   SegmentType = "reply"
	SegmentUnknown SegmentType = "unknown"
)

// Segment is one typed piece of a chat message. Only the fields matching Type
// are meaningful; Raw preserves the adapter's original payload so unsupported
// segments can be echoed back verbatim.
type Segment struct {
	Type SegmentType
	// Text carries the literal text for SegmentText.
	Text string
	// URL and File describe a SegmentImage; File is the original filename and
	// is used only to infer the extension.
	URL  string
	File string
	// Data is the raw JSON payload of a SegmentRich share card.
	Data string
	// TargetID is the mentioned user for SegmentAt, or the referenced message
	// id for SegmentReply.
	TargetID string
	Raw      json.RawMessage
}

// TextSegment builds a plain text segment.
func TextSegment(text string) Segment {
	return Segment{Type: SegmentText, Text: text}
}

// AtSegment builds a mention segment for the given user id.
func AtSegment(userID string) Segment {
	return Segment{Type: SegmentAt, TargetID: userID}
}

// Sender identifies who sent an inbound message.
type Sender struct {
	UserID   int64
	Nickname string
}

// InboundMessage is one chat event delivered by an adapter.
type InboundMessage struct {
	// Private is true for direct messages; group messages carry GroupID.
	Private  bool
	SelfID   int64
	GroupID  int64
	Sender   Sender
	Segments []Segment
}

// ReplyKind says whether a reply goes back to the group or to a user directly.
type ReplyKind string

const (
	ReplyGroup   ReplyKind = "group"
	ReplyPrivate ReplyKind = "private"
)

// Reply is an ordered list of segments addressed at a group or a user.
type Reply struct {
	Kind     ReplyKind
	TargetID int64
	Segments []Segment
}

// GroupReply builds a group-addressed reply.
func GroupReply(groupID int64, segments ...Segment) Reply {
	return Reply{Kind: ReplyGroup, TargetID: groupID, Segments: segments}
}

// PrivateReply builds a user-addressed reply.
func PrivateReply(userID int64, segments ...Segment) Reply {
	return Reply{Kind: ReplyPrivate, TargetID: userID, Segments: segments}
}

// EventKind distinguishes the events an adapter surfaces to the bot loop.
type EventKind string

const (
	EventMessage   EventKind = "message"
	EventHeartbeat EventKind = "heartbeat"
)

// Event is one adapter-level occurrence: an inbound message or a heartbeat
// health report.
type Event struct {
	Kind        EventKind
	Message     InboundMessage
	HeartbeatOK bool
}

// Transport sends replies through the chat platform.
type Transport interface {
	SendGroupMessage(ctx context.Context, groupID int64, segments []Segment) error
	SendPrivateMessage(ctx context.Context, userID int64, segments []Segment) error
}

// MessageResolver fetches a previously sent message's segments by id, used by
// the reply-import flow.
type MessageResolver interface {
	GetMessage(ctx context.Context, messageID string) ([]Segment, error)
}
