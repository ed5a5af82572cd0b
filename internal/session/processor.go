// Package session implements the recording conversation: command dispatch,
// the title/content/remark state machine, classification, and the admin flows.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shareclub/curator/internal/channel"
	"github.com/shareclub/curator/internal/record"
)

const remarkPrompt = "内容记录完成，如果还需记录请回复：1\n当前记录者做为署名者请回复：2\n跳过署名请回复：3\n修改署名者请直接输入"

// Store is the storage surface the processor drives.
type Store interface {
	LoadSession(ctx context.Context) (record.Session, error)
	SaveSession(ctx context.Context, sess record.Session) error
	AdminID(ctx context.Context) (int64, error)
	MaxTitleLength(ctx context.Context) (int, error)
	ShareRoot(ctx context.Context) (string, error)
	SetScratch(ctx context.Context, text string) error
	CreateRecord(ctx context.Context, title string) (string, error)
	AppendContent(ctx context.Context, recordID, payload string, kind record.ContentKind) error
	SetRemark(ctx context.Context, recordID, remark string) error
	ListAllRecords(ctx context.Context) ([]record.Record, error)
	ListRecordsInRange(ctx context.Context, start, end time.Time) ([]record.Record, error)
	DeleteRecord(ctx context.Context, id string) error
}

// ImageFetcher downloads an image into dir and returns the stored filename.
type ImageFetcher interface {
	Fetch(ctx context.Context, url, ext, dir string) (string, error)
}

// Archiver regenerates the whole document tree.
type Archiver interface {
	Generate(ctx context.Context) error
}

// Publisher pushes the generated tree to its remote.
type Publisher interface {
	Publish(ctx context.Context) error
}

// Processor handles one inbound chat event at a time and returns the replies
// to deliver.
type Processor struct {
	store     Store
	resolver  channel.MessageResolver
	images    ImageFetcher
	archiver  Archiver
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewProcessor creates the session processor.
func NewProcessor(log *slog.Logger, store Store, resolver channel.MessageResolver, images ImageFetcher, archiver Archiver, publisher Publisher) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		store:     store,
		resolver:  resolver,
		images:    images,
		archiver:  archiver,
		publisher: publisher,
		logger:    log.With(slog.String("service", "session")),
		now:       time.Now,
	}
}

// Handle dispatches one inbound message by the persisted session stage.
func (p *Processor) Handle(ctx context.Context, msg channel.InboundMessage) ([]channel.Reply, error) {
	if msg.Private {
		return p.handlePrivate(ctx, msg)
	}
	sess, err := p.store.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	switch sess.Stage {
	case record.StageWaitingCommand:
		return p.handleCommand(ctx, msg, sess)
	case record.StageRecordTitle:
		return p.handleTitle(ctx, msg, sess)
	case record.StageRecordContent:
		return p.handleContent(ctx, msg, sess)
	case record.StageRecordRemark:
		return p.handleRemark(ctx, msg, sess)
	case record.StageHandleOtherCommand:
		// Legacy stored stage; nothing writes it anymore.
		p.logger.Warn("session parked in HandleOtherCommand")
		return nil, nil
	}
	return nil, fmt.Errorf("unhandled stage %s", sess.Stage)
}

// handlePrivate serves the admin-only direct commands.
func (p *Processor) handlePrivate(ctx context.Context, msg channel.InboundMessage) ([]channel.Reply, error) {
	if len(msg.Segments) != 1 || msg.Segments[0].Type != channel.SegmentText {
		return nil, nil
	}
	adminID, err := p.store.AdminID(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Sender.UserID != adminID {
		p.logger.Warn("private message from non-admin", slog.Int64("user_id", msg.Sender.UserID))
		return nil, nil
	}
	switch strings.TrimSpace(msg.Segments[0].Text) {
	case "git":
		if err := p.publisher.Publish(ctx); err != nil {
			return nil, fmt.Errorf("publish archive: %w", err)
		}
		return []channel.Reply{channel.PrivateReply(adminID, channel.TextSegment("git任务完成"))}, nil
	case "reset":
		sess, err := p.store.LoadSession(ctx)
		if err != nil {
			return nil, err
		}
		sess.Stage = record.StageWaitingCommand
		return nil, p.store.SaveSession(ctx, sess)
	}
	return nil, nil
}

// handleCommand recognizes @bot commands while no session is open.
func (p *Processor) handleCommand(ctx context.Context, msg channel.InboundMessage, sess record.Session) ([]channel.Reply, error) {
	selfID := strconv.FormatInt(msg.SelfID, 10)
	segs := msg.Segments
	switch {
	case len(segs) == 2:
		if segs[0].Type != channel.SegmentAt || segs[0].TargetID != selfID {
			return nil, nil
		}
		if segs[1].Type != channel.SegmentText {
			return nil, nil
		}
		switch strings.TrimSpace(segs[1].Text) {
		case "记录", "record", "rc":
			return p.startRecord(ctx, msg, sess)
		case "生成", "generate", "gen":
			return p.generateArchive(ctx, msg)
		case "已记录", "list", "ls":
			return p.listToday(ctx, msg)
		case "撤销", "undo":
			return p.undo(ctx, msg)
		}
	case len(segs) == 3:
		if segs[1].Type != channel.SegmentAt || segs[1].TargetID != selfID {
			return nil, nil
		}
		if segs[0].Type != channel.SegmentReply || segs[2].Type != channel.SegmentText {
			return nil, nil
		}
		switch strings.TrimSpace(segs[2].Text) {
		case "记录", "record", "rc":
			return p.importFromReply(ctx, msg, segs[0].TargetID, msg.Sender.UserID, sess)
		}
	}
	return nil, nil
}

func (p *Processor) startRecord(ctx context.Context, msg channel.InboundMessage, sess record.Session) ([]channel.Reply, error) {
	sess.Stage = record.StageRecordTitle
	sess.OwnerID = msg.Sender.UserID
	if err := p.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return []channel.Reply{channel.GroupReply(msg.GroupID,
		channel.AtSegment(strconv.FormatInt(msg.Sender.UserID, 10)),
		channel.TextSegment("已收到记录指令，请输入标题"),
	)}, nil
}

func (p *Processor) generateArchive(ctx context.Context, msg channel.InboundMessage) ([]channel.Reply, error) {
	if err := p.archiver.Generate(ctx); err != nil {
		return nil, err
	}
	return []channel.Reply{channel.GroupReply(msg.GroupID, channel.TextSegment("记录文件生成成功"))}, nil
}

func (p *Processor) listToday(ctx context.Context, msg channel.InboundMessage) ([]channel.Reply, error) {
	now := p.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	records, err := p.store.ListRecordsInRange(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	var reply strings.Builder
	reply.WriteString("今日已记录：\n")
	for _, r := range records {
		reply.WriteString(r.Title)
		reply.WriteString("\n")
	}
	return []channel.Reply{channel.GroupReply(msg.GroupID, channel.TextSegment(reply.String()))}, nil
}

func (p *Processor) undo(ctx context.Context, msg channel.InboundMessage) ([]channel.Reply, error) {
	adminID, err := p.store.AdminID(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Sender.UserID != adminID {
		p.logger.Warn("undo refused", slog.Int64("user_id", msg.Sender.UserID))
		return []channel.Reply{channel.GroupReply(msg.GroupID, channel.TextSegment("非管理员不可撤销"))}, nil
	}
	records, err := p.store.ListAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	last := records[len(records)-1]
	if err := p.store.DeleteRecord(ctx, last.ID); err != nil {
		return nil, err
	}
	return []channel.Reply{channel.GroupReply(msg.GroupID,
		channel.TextSegment(fmt.Sprintf("%s\n已删除", last.Title)))}, nil
}

// importFromReply seeds a record from a previously sent message, attributing
// the new session to attributeTo.
func (p *Processor) importFromReply(ctx context.Context, msg channel.InboundMessage, messageID string, attributeTo int64, sess record.Session) ([]channel.Reply, error) {
	segs, err := p.resolver.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplyNotFound, err)
	}
	if len(segs) != 1 {
		return nil, nil
	}
	classified := Classify(segs[0])
	switch classified.Kind {
	case ClassText:
		return nil, p.store.SetScratch(ctx, classified.Text)
	case ClassShare:
		id, err := p.store.CreateRecord(ctx, classified.ShareTitle)
		if err != nil {
			return nil, err
		}
		if err := p.store.AppendContent(ctx, id, classified.ShareURL, record.KindText); err != nil {
			return nil, err
		}
		sess.Stage = record.StageRecordRemark
		sess.OwnerID = attributeTo
		sess.RecordID = id
		if err := p.store.SaveSession(ctx, sess); err != nil {
			return nil, err
		}
		return []channel.Reply{channel.GroupReply(msg.GroupID, channel.TextSegment(remarkPrompt))}, nil
	case ClassUnsupported:
		if segs[0].Type == channel.SegmentRich {
			p.logger.Warn("reply import: unparseable share card")
			return []channel.Reply{channel.GroupReply(msg.GroupID, channel.TextSegment("此内容暂不支持解析"))}, nil
		}
	}
	p.logger.Warn("reply import: unsupported segment", slog.String("type", string(segs[0].Type)))
	return nil, nil
}

// handleTitle accepts exactly one plain-text segment as the record title.
func (p *Processor) handleTitle(ctx context.Context, msg channel.InboundMessage, sess record.Session) ([]channel.Reply, error) {
	if msg.Sender.UserID != sess.OwnerID {
		p.logger.Info("not recording user", slog.Int64("user_id", msg.Sender.UserID))
		return nil, nil
	}
	if len(msg.Segments) == 1 && msg.Segments[0].Type == channel.SegmentText {
		title := msg.Segments[0].Text
		maxLen, err := p.store.MaxTitleLength(ctx)
		if err != nil {
			return nil, err
		}
		if len(title) > maxLen {
			return []channel.Reply{channel.GroupReply(msg.GroupID,
				channel.TextSegment("标题也太长了，搞个短点的"))}, nil
		}
		id, err := p.store.CreateRecord(ctx, title)
		if err != nil {
			return nil, err
		}
		sess.RecordID = id
		sess.Stage = record.StageRecordContent
		if err := p.store.SaveSession(ctx, sess); err != nil {
			return nil, err
		}
		return []channel.Reply{channel.GroupReply(msg.GroupID,
			channel.AtSegment(strconv.FormatInt(msg.Sender.UserID, 10)),
			channel.TextSegment("标题记录成功，请输入内容"),
		)}, nil
	}
	return []channel.Reply{channel.GroupReply(msg.GroupID,
		channel.TextSegment("标题只接受纯文本"))}, nil
}

// handleContent classifies and appends every segment of the message in arrival
// order, then advances to the remark stage.
func (p *Processor) handleContent(ctx context.Context, msg channel.InboundMessage, sess record.Session) ([]channel.Reply, error) {
	if msg.Sender.UserID != sess.OwnerID {
		p.logger.Info("not recording user", slog.Int64("user_id", msg.Sender.UserID))
		return nil, nil
	}
	var notices []channel.Segment
	for _, seg := range msg.Segments {
		notices = append(notices, p.accumulate(ctx, sess.RecordID, seg)...)
	}
	sess.Stage = record.StageRecordRemark
	if err := p.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	notices = append(notices, channel.TextSegment(remarkPrompt))
	return []channel.Reply{channel.GroupReply(msg.GroupID, notices...)}, nil
}

// accumulate appends one classified segment to the open record. Each write
// lands in storage before the next segment is looked at; per-item failures
// turn into notices rather than aborting the rest of the message.
func (p *Processor) accumulate(ctx context.Context, recordID string, seg channel.Segment) []channel.Segment {
	classified := Classify(seg)
	switch classified.Kind {
	case ClassText:
		if err := p.store.AppendContent(ctx, recordID, classified.Text, record.KindText); err != nil {
			p.logger.Error("append text failed", slog.Any("error", err))
			return []channel.Segment{channel.TextSegment("内容记录失败\n")}
		}
	case ClassShare:
		for _, payload := range []string{classified.ShareTitle, classified.ShareURL} {
			if err := p.store.AppendContent(ctx, recordID, payload, record.KindText); err != nil {
				p.logger.Error("append share failed", slog.Any("error", err))
				return []channel.Segment{channel.TextSegment("内容记录失败\n")}
			}
		}
	case ClassImage:
		return p.accumulateImage(ctx, recordID, classified)
	case ClassImageMetaMissing:
		p.logger.Warn("image segment without url")
		return []channel.Segment{channel.TextSegment("图片信息获取失败:\n")}
	case ClassUnsupported:
		if seg.Type == channel.SegmentRich {
			p.logger.Warn("unparseable share card")
			return []channel.Segment{channel.TextSegment("内容解析失败，此内容暂不支持")}
		}
		p.logger.Warn("unsupported segment", slog.String("type", string(seg.Type)))
		return []channel.Segment{channel.TextSegment("此内容暂不支持记录:\n"), classified.Segment}
	}
	return nil
}

func (p *Processor) accumulateImage(ctx context.Context, recordID string, classified Classified) []channel.Segment {
	shareRoot, err := p.store.ShareRoot(ctx)
	if err != nil {
		p.logger.Error("share root lookup failed", slog.Any("error", err))
		return []channel.Segment{channel.TextSegment("图片获取失败")}
	}
	dir := filepath.Join(shareRoot, p.now().Format("2006-01"), recordID)
	name, err := p.images.Fetch(ctx, classified.ImageURL, classified.ImageExt, dir)
	if err != nil {
		p.logger.Error("image fetch failed", slog.Any("error", err))
		return []channel.Segment{channel.TextSegment("图片获取失败")}
	}
	if err := p.store.AppendContent(ctx, recordID, name, record.KindImage); err != nil {
		p.logger.Error("append image failed", slog.Any("error", err))
		return []channel.Segment{channel.TextSegment("内容记录失败\n")}
	}
	return []channel.Segment{channel.TextSegment(fmt.Sprintf("图片记录成功: %s\n", name))}
}

// handleRemark closes the record per the attribution decision, or loops back
// to the content stage.
func (p *Processor) handleRemark(ctx context.Context, msg channel.InboundMessage, sess record.Session) ([]channel.Reply, error) {
	if msg.Sender.UserID != sess.OwnerID {
		p.logger.Info("not recording user", slog.Int64("user_id", msg.Sender.UserID))
		return nil, nil
	}
	if len(msg.Segments) > 0 && msg.Segments[0].Type == channel.SegmentText {
		attribution := ResolveAttribution(msg.Segments[0].Text)
		switch attribution.Action {
		case AttrContinue:
			sess.Stage = record.StageRecordContent
			if err := p.store.SaveSession(ctx, sess); err != nil {
				return nil, err
			}
			return []channel.Reply{channel.GroupReply(msg.GroupID,
				channel.TextSegment("请继续回复记录内容"))}, nil
		case AttrSelf:
			name := msg.Sender.Nickname
			if name == "" {
				name = strconv.FormatInt(msg.Sender.UserID, 10)
			}
			if err := p.store.SetRemark(ctx, sess.RecordID, FormatAttribution(name)); err != nil {
				return nil, err
			}
		case AttrSkip:
			p.logger.Info("remark skipped")
		case AttrCustom:
			if err := p.store.SetRemark(ctx, sess.RecordID, FormatAttribution(attribution.Name)); err != nil {
				return nil, err
			}
		}
	}
	sess.Stage = record.StageWaitingCommand
	if err := p.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return []channel.Reply{channel.GroupReply(msg.GroupID, channel.TextSegment("记录成功！"))}, nil
}
