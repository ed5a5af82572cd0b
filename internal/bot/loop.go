// Package bot runs the single-threaded inbound event loop.
package bot

import (
	"context"
	"log/slog"

	"github.com/shareclub/curator/internal/channel"
)

// Handler processes one inbound message to completion and returns the replies
// to deliver.
type Handler interface {
	Handle(ctx context.Context, msg channel.InboundMessage) ([]channel.Reply, error)
}

// Source supplies the adapter's event stream.
type Source interface {
	Events() <-chan channel.Event
}

// AdminDirectory resolves the administrator to notify on failures.
type AdminDirectory interface {
	AdminID(ctx context.Context) (int64, error)
}

// Loop consumes adapter events one at a time. Each handler invocation runs to
// completion, storage and network calls included, before the next event is
// taken; there is no internal fan-out.
type Loop struct {
	logger    *slog.Logger
	source    Source
	transport channel.Transport
	handler   Handler
	admins    AdminDirectory
}

// NewLoop creates a bot loop.
func NewLoop(log *slog.Logger, source Source, transport channel.Transport, handler Handler, admins AdminDirectory) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		logger:    log.With(slog.String("service", "bot")),
		source:    source,
		transport: transport,
		handler:   handler,
		admins:    admins,
	}
}

// Run blocks until the context is cancelled or the event stream closes.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-l.source.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case channel.EventMessage:
				l.dispatch(ctx, ev.Message)
			case channel.EventHeartbeat:
				if !ev.HeartbeatOK {
					l.logger.Error("heartbeat exception")
					l.notifyAdmin(ctx, "心跳异常")
				}
			}
		}
	}
}

// dispatch runs one handler invocation. Handler errors notify the admin and
// the loop keeps going; only the process supervisor stops it.
func (l *Loop) dispatch(ctx context.Context, msg channel.InboundMessage) {
	replies, err := l.handler.Handle(ctx, msg)
	if err != nil {
		l.logger.Error("handle message failed", slog.Any("error", err))
		l.notifyAdmin(ctx, "消息处理出现问题，请及时处理")
		return
	}
	for _, reply := range replies {
		l.send(ctx, reply)
	}
}

func (l *Loop) send(ctx context.Context, reply channel.Reply) {
	var err error
	switch reply.Kind {
	case channel.ReplyGroup:
		err = l.transport.SendGroupMessage(ctx, reply.TargetID, reply.Segments)
	case channel.ReplyPrivate:
		err = l.transport.SendPrivateMessage(ctx, reply.TargetID, reply.Segments)
	}
	if err != nil {
		l.logger.Error("send reply failed", slog.Any("error", err))
	}
}

func (l *Loop) notifyAdmin(ctx context.Context, text string) {
	adminID, err := l.admins.AdminID(ctx)
	if err != nil {
		l.logger.Error("admin lookup failed", slog.Any("error", err))
		return
	}
	if err := l.transport.SendPrivateMessage(ctx, adminID, []channel.Segment{channel.TextSegment(text)}); err != nil {
		l.logger.Error("notify admin failed", slog.Any("error", err))
	}
}
