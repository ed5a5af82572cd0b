package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shareclub/curator/internal/channel"
	"github.com/shareclub/curator/internal/record"
)

const (
	testSelfID  = int64(1000)
	testGroupID = int64(77)
	testAdminID = int64(900)
	testOwnerID = int64(42)
)

type fakeStore struct {
	sess      record.Session
	admin     int64
	maxTitle  int
	shareRoot string
	scratch   string
	records   []record.Record
	contents  map[string][]record.ContentItem
	nextID    int
	clock     time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		admin:     testAdminID,
		maxTitle:  30,
		shareRoot: "/tmp/share",
		contents:  map[string][]record.ContentItem{},
		clock:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) LoadSession(context.Context) (record.Session, error) { return s.sess, nil }

func (s *fakeStore) SaveSession(_ context.Context, sess record.Session) error {
	s.sess = sess
	return nil
}

func (s *fakeStore) AdminID(context.Context) (int64, error) { return s.admin, nil }

func (s *fakeStore) MaxTitleLength(context.Context) (int, error) { return s.maxTitle, nil }

func (s *fakeStore) ShareRoot(context.Context) (string, error) { return s.shareRoot, nil }

func (s *fakeStore) SetScratch(_ context.Context, text string) error {
	s.scratch = text
	return nil
}

func (s *fakeStore) CreateRecord(_ context.Context, title string) (string, error) {
	s.nextID++
	s.clock = s.clock.Add(time.Minute)
	id := fmt.Sprintf("rec-%d", s.nextID)
	s.records = append(s.records, record.Record{ID: id, Title: title, CreatedAt: s.clock})
	return id, nil
}

func (s *fakeStore) AppendContent(_ context.Context, recordID, payload string, kind record.ContentKind) error {
	s.contents[recordID] = append(s.contents[recordID], record.ContentItem{
		RecordID: recordID,
		Payload:  payload,
		Kind:     kind,
	})
	return nil
}

func (s *fakeStore) SetRemark(_ context.Context, recordID, remark string) error {
	for i := range s.records {
		if s.records[i].ID == recordID {
			s.records[i].Remark = remark
			return nil
		}
	}
	return fmt.Errorf("record %s not found", recordID)
}

func (s *fakeStore) ListAllRecords(context.Context) ([]record.Record, error) {
	return append([]record.Record(nil), s.records...), nil
}

func (s *fakeStore) ListRecordsInRange(_ context.Context, start, end time.Time) ([]record.Record, error) {
	var out []record.Record
	for _, r := range s.records {
		if !r.CreatedAt.Before(start) && r.CreatedAt.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteRecord(_ context.Context, id string) error {
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			delete(s.contents, id)
			return nil
		}
	}
	return fmt.Errorf("record %s not found", id)
}

type fakeResolver struct {
	segments map[string][]channel.Segment
	err      error
}

func (r *fakeResolver) GetMessage(_ context.Context, messageID string) ([]channel.Segment, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.segments[messageID], nil
}

type fakeFetcher struct {
	name   string
	err    error
	gotURL string
	gotExt string
	gotDir string
}

func (f *fakeFetcher) Fetch(_ context.Context, url, ext, dir string) (string, error) {
	f.gotURL, f.gotExt, f.gotDir = url, ext, dir
	if f.err != nil {
		return "", f.err
	}
	return f.name, nil
}

type fakeArchiver struct {
	calls int
	err   error
}

func (a *fakeArchiver) Generate(context.Context) error {
	a.calls++
	return a.err
}

type fakePublisher struct {
	calls int
	err   error
}

func (p *fakePublisher) Publish(context.Context) error {
	p.calls++
	return p.err
}

type fixture struct {
	store     *fakeStore
	resolver  *fakeResolver
	images    *fakeFetcher
	archiver  *fakeArchiver
	publisher *fakePublisher
	processor *Processor
}

func newFixture() *fixture {
	f := &fixture{
		store:     newFakeStore(),
		resolver:  &fakeResolver{segments: map[string][]channel.Segment{}},
		images:    &fakeFetcher{name: "stored.png"},
		archiver:  &fakeArchiver{},
		publisher: &fakePublisher{},
	}
	f.processor = NewProcessor(nil, f.store, f.resolver, f.images, f.archiver, f.publisher)
	f.processor.now = func() time.Time {
		return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return f
}

func groupMsg(sender int64, segments ...channel.Segment) channel.InboundMessage {
	return channel.InboundMessage{
		SelfID:   testSelfID,
		GroupID:  testGroupID,
		Sender:   channel.Sender{UserID: sender, Nickname: "小明"},
		Segments: segments,
	}
}

func privateMsg(sender int64, text string) channel.InboundMessage {
	return channel.InboundMessage{
		Private:  true,
		SelfID:   testSelfID,
		Sender:   channel.Sender{UserID: sender},
		Segments: []channel.Segment{channel.TextSegment(text)},
	}
}

func atBot() channel.Segment { return channel.AtSegment("1000") }

func replyText(replies []channel.Reply) string {
	var b strings.Builder
	for _, reply := range replies {
		for _, seg := range reply.Segments {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

func TestOwnerGuardDropsForeignMessages(t *testing.T) {
	t.Parallel()

	stages := []record.Stage{
		record.StageRecordTitle,
		record.StageRecordContent,
		record.StageRecordRemark,
	}
	for _, stage := range stages {
		stage := stage
		t.Run(stage.String(), func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.store.sess = record.Session{Stage: stage, OwnerID: testOwnerID, RecordID: "rec-1"}

			replies, err := f.processor.Handle(context.Background(), groupMsg(7, channel.TextSegment("intrusion")))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if replies != nil {
				t.Fatalf("expected silence, got %v", replies)
			}
			if f.store.sess.Stage != stage {
				t.Fatalf("stage mutated to %s", f.store.sess.Stage)
			}
			if len(f.store.records) != 0 || len(f.store.contents) != 0 {
				t.Fatalf("storage mutated")
			}
		})
	}
}

func TestStartRecordCommand(t *testing.T) {
	t.Parallel()
	f := newFixture()

	replies, err := f.processor.Handle(context.Background(),
		groupMsg(testOwnerID, atBot(), channel.TextSegment("记录")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.store.sess.Stage != record.StageRecordTitle {
		t.Fatalf("stage = %s", f.store.sess.Stage)
	}
	if f.store.sess.OwnerID != testOwnerID {
		t.Fatalf("owner = %d", f.store.sess.OwnerID)
	}
	if !strings.Contains(replyText(replies), "请输入标题") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
}

func TestCommandRequiresBotMention(t *testing.T) {
	t.Parallel()
	f := newFixture()

	cases := []channel.InboundMessage{
		groupMsg(testOwnerID, channel.AtSegment("999"), channel.TextSegment("记录")),
		groupMsg(testOwnerID, channel.TextSegment("记录")),
		groupMsg(testOwnerID, channel.TextSegment("记录"), atBot()),
	}
	for _, msg := range cases {
		replies, err := f.processor.Handle(context.Background(), msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if replies != nil {
			t.Fatalf("expected silence, got %v", replies)
		}
		if f.store.sess.Stage != record.StageWaitingCommand {
			t.Fatalf("stage mutated to %s", f.store.sess.Stage)
		}
	}
}

func TestTitleTooLongCreatesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.maxTitle = 10
	f.store.sess = record.Session{Stage: record.StageRecordTitle, OwnerID: testOwnerID}

	replies, err := f.processor.Handle(context.Background(),
		groupMsg(testOwnerID, channel.TextSegment("a very long record title")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(replyText(replies), "标题也太长了") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
	if len(f.store.records) != 0 {
		t.Fatalf("record created for oversized title")
	}
	if f.store.sess.Stage != record.StageRecordTitle {
		t.Fatalf("stage = %s", f.store.sess.Stage)
	}
}

func TestTitleRejectsNonText(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.sess = record.Session{Stage: record.StageRecordTitle, OwnerID: testOwnerID}

	replies, err := f.processor.Handle(context.Background(),
		groupMsg(testOwnerID, channel.Segment{Type: channel.SegmentImage, URL: "https://x/img"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(replyText(replies), "标题只接受纯文本") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
	if f.store.sess.Stage != record.StageRecordTitle {
		t.Fatalf("stage = %s", f.store.sess.Stage)
	}
}

func TestTitleOpensRecord(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.sess = record.Session{Stage: record.StageRecordTitle, OwnerID: testOwnerID}

	replies, err := f.processor.Handle(context.Background(),
		groupMsg(testOwnerID, channel.TextSegment("Weekly digest")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.store.records) != 1 || f.store.records[0].Title != "Weekly digest" {
		t.Fatalf("records = %+v", f.store.records)
	}
	if f.store.sess.Stage != record.StageRecordContent {
		t.Fatalf("stage = %s", f.store.sess.Stage)
	}
	if f.store.sess.RecordID != f.store.records[0].ID {
		t.Fatalf("open record = %q", f.store.sess.RecordID)
	}
	if !strings.Contains(replyText(replies), "请输入内容") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
}

// Content items must land in storage in exact arrival order, across mixed
// segment kinds, with a rich share contributing title then URL.
func TestContentPreservesArrivalOrder(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.sess = record.Session{Stage: record.StageRecordContent, OwnerID: testOwnerID, RecordID: "rec-open"}

	replies, err := f.processor.Handle(context.Background(), groupMsg(testOwnerID,
		channel.TextSegment("first"),
		channel.Segment{Type: channel.SegmentRich, Data: shareCardJSON},
		channel.TextSegment("last"),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"first",
		"一篇分享",
		"https://mp.weixin.qq.com/s?__biz=MzA5&mid=22&idx=1&sn=abc",
		"last",
	}
	items := f.store.contents["rec-open"]
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, payload := range want {
		if items[i].Payload != payload || items[i].Kind != record.KindText {
			t.Fatalf("item %d = %+v, want %q", i, items[i], payload)
		}
	}
	if f.store.sess.Stage != record.StageRecordRemark {
		t.Fatalf("stage = %s", f.store.sess.Stage)
	}
	if !strings.Contains(replyText(replies), "如果还需记录请回复：1") {
		t.Fatalf("missing remark prompt: %q", replyText(replies))
	}
}

func TestContentStoresImage(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.sess = record.Session{Stage: record.StageRecordContent, OwnerID: testOwnerID, RecordID: "rec-open"}

	replies, err := f.processor.Handle(context.Background(), groupMsg(testOwnerID,
		channel.Segment{Type: channel.SegmentImage, URL: "https://cdn/img", File: "orig.png"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := f.store.contents["rec-open"]
	if len(items) != 1 || items[0].Kind != record.KindImage || items[0].Payload != "stored.png" {
		t.Fatalf("items = %+v", items)
	}
	if f.images.gotExt != "png" || f.images.gotURL != "https://cdn/img" {
		t.Fatalf("fetcher got url=%q ext=%q", f.images.gotURL, f.images.gotExt)
	}
	if !strings.Contains(f.images.gotDir, "2024-03") || !strings.Contains(f.images.gotDir, "rec-open") {
		t.Fatalf("fetch dir = %q", f.images.gotDir)
	}
	if !strings.Contains(replyText(replies), "图片记录成功: stored.png") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
}

// A failed download surfaces a notice, appends nothing, and still advances the
// stage: one bad item never aborts the message.
func TestContentImageFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.images.err = errors.New("boom")
	f.store.sess = record.Session{Stage: record.StageRecordContent, OwnerID: testOwnerID, RecordID: "rec-open"}

	replies, err := f.processor.Handle(context.Background(), groupMsg(testOwnerID,
		channel.Segment{Type: channel.SegmentImage, URL: "https://cdn/img", File: "orig.png"},
		channel.TextSegment("still recorded"),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := f.store.contents["rec-open"]
	if len(items) != 1 || items[0].Payload != "still recorded" {
		t.Fatalf("items = %+v", items)
	}
	if !strings.Contains(replyText(replies), "图片获取失败") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
	if f.store.sess.Stage != record.StageRecordRemark {
		t.Fatalf("stage = %s", f.store.sess.Stage)
	}
}

func TestContentEchoesUnsupportedSegment(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.store.sess = record.Session{Stage: record.StageRecordContent, OwnerID: testOwnerID, RecordID: "rec-open"}
	unsupported := channel.Segment{Type: channel.SegmentUnknown, Raw: []byte(`{"type":"face","data":{"id":"1"}}`)}

	replies, err := f.processor.Handle(context.Background(), groupMsg(testOwnerID, unsupported))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.store.contents["rec-open"]) != 0 {
		t.Fatalf("unsupported content was stored")
	}
	if !strings.Contains(replyText(replies), "此内容暂不支持记录") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
	segs := replies[0].Segments
	if string(segs[1].Raw) != string(unsupported.Raw) {
		t.Fatalf("original segment not echoed back")
	}
}

func TestRemark(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		nickname   string
		wantStage  record.Stage
		wantRemark string
		wantReply  string
	}{
		{
			name:      "continue keeps record open",
			input:     "1",
			wantStage: record.StageRecordContent,
			wantReply: "请继续回复记录内容",
		},
		{
			name:       "self attribution uses nickname",
			input:      "2",
			nickname:   "小明",
			wantStage:  record.StageWaitingCommand,
			wantRemark: "（分享者：小明）",
			wantReply:  "记录成功！",
		},
		{
			name:       "self attribution falls back to user id",
			input:      "2",
			wantStage:  record.StageWaitingCommand,
			wantRemark: "（分享者：42）",
			wantReply:  "记录成功！",
		},
		{
			name:      "skip leaves remark empty",
			input:     "3",
			wantStage: record.StageWaitingCommand,
			wantReply: "记录成功！",
		},
		{
			name:       "custom text is wrapped",
			input:      "S",
			wantStage:  record.StageWaitingCommand,
			wantRemark: "（分享者：S）",
			wantReply:  "记录成功！",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			id, _ := f.store.CreateRecord(context.Background(), "t")
			f.store.sess = record.Session{Stage: record.StageRecordRemark, OwnerID: testOwnerID, RecordID: id}

			msg := groupMsg(testOwnerID, channel.TextSegment(tt.input))
			msg.Sender.Nickname = tt.nickname
			replies, err := f.processor.Handle(context.Background(), msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.store.sess.Stage != tt.wantStage {
				t.Fatalf("stage = %s, want %s", f.store.sess.Stage, tt.wantStage)
			}
			if f.store.records[0].Remark != tt.wantRemark {
				t.Fatalf("remark = %q, want %q", f.store.records[0].Remark, tt.wantRemark)
			}
			if !strings.Contains(replyText(replies), tt.wantReply) {
				t.Fatalf("reply = %q, want %q", replyText(replies), tt.wantReply)
			}
		})
	}
}

func TestUndoRemovesOnlyNewestRecord(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	idA, _ := f.store.CreateRecord(ctx, "A")
	_ = f.store.AppendContent(ctx, idA, "a-body", record.KindText)
	idB, _ := f.store.CreateRecord(ctx, "B")
	_ = f.store.AppendContent(ctx, idB, "b-body", record.KindText)

	undo := groupMsg(testAdminID, atBot(), channel.TextSegment("撤销"))
	replies, err := f.processor.Handle(ctx, undo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(replyText(replies), "B\n已删除") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
	if len(f.store.records) != 1 || f.store.records[0].ID != idA {
		t.Fatalf("records = %+v", f.store.records)
	}
	if len(f.store.contents[idA]) != 1 {
		t.Fatalf("record A content was touched")
	}

	replies, err = f.processor.Handle(ctx, undo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(replyText(replies), "A\n已删除") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
	if len(f.store.records) != 0 {
		t.Fatalf("records = %+v", f.store.records)
	}
}

func TestUndoRefusesNonAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()
	_, _ = f.store.CreateRecord(ctx, "A")

	replies, err := f.processor.Handle(ctx, groupMsg(7, atBot(), channel.TextSegment("undo")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(replyText(replies), "非管理员不可撤销") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
	if len(f.store.records) != 1 {
		t.Fatalf("records mutated: %+v", f.store.records)
	}
}

func TestGenerateCommand(t *testing.T) {
	t.Parallel()
	f := newFixture()

	replies, err := f.processor.Handle(context.Background(),
		groupMsg(testOwnerID, atBot(), channel.TextSegment("生成")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.archiver.calls != 1 {
		t.Fatalf("generate calls = %d", f.archiver.calls)
	}
	if !strings.Contains(replyText(replies), "记录文件生成成功") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
}

func TestListToday(t *testing.T) {
	t.Parallel()
	f := newFixture()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	f.processor.now = func() time.Time { return now }
	f.store.records = []record.Record{
		{ID: "old", Title: "yesterday", CreatedAt: now.AddDate(0, 0, -1)},
		{ID: "r1", Title: "morning", CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "r2", Title: "noon", CreatedAt: now},
	}

	replies, err := f.processor.Handle(context.Background(),
		groupMsg(testOwnerID, atBot(), channel.TextSegment("已记录")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := replyText(replies)
	if got != "今日已记录：\nmorning\nnoon\n" {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestReplyImportShare(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.resolver.segments["31337"] = []channel.Segment{
		{Type: channel.SegmentRich, Data: shareCardJSON},
	}

	replies, err := f.processor.Handle(context.Background(), groupMsg(testOwnerID,
		channel.Segment{Type: channel.SegmentReply, TargetID: "31337"},
		atBot(),
		channel.TextSegment("record"),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.store.records) != 1 || f.store.records[0].Title != "一篇分享" {
		t.Fatalf("records = %+v", f.store.records)
	}
	items := f.store.contents[f.store.records[0].ID]
	if len(items) != 1 || items[0].Payload != "https://mp.weixin.qq.com/s?__biz=MzA5&mid=22&idx=1&sn=abc" {
		t.Fatalf("items = %+v", items)
	}
	if f.store.sess.Stage != record.StageRecordRemark || f.store.sess.OwnerID != testOwnerID {
		t.Fatalf("session = %+v", f.store.sess)
	}
	if !strings.Contains(replyText(replies), "如果还需记录请回复：1") {
		t.Fatalf("unexpected reply: %q", replyText(replies))
	}
}

func TestReplyImportTextGoesToScratch(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.resolver.segments["31337"] = []channel.Segment{channel.TextSegment("stashed title")}

	replies, err := f.processor.Handle(context.Background(), groupMsg(testOwnerID,
		channel.Segment{Type: channel.SegmentReply, TargetID: "31337"},
		atBot(),
		channel.TextSegment("记录"),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replies != nil {
		t.Fatalf("expected silence, got %v", replies)
	}
	if f.store.scratch != "stashed title" {
		t.Fatalf("scratch = %q", f.store.scratch)
	}
	if f.store.sess.Stage != record.StageWaitingCommand {
		t.Fatalf("stage = %s", f.store.sess.Stage)
	}
}

func TestPrivateCommands(t *testing.T) {
	t.Parallel()

	t.Run("git publishes", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		replies, err := f.processor.Handle(context.Background(), privateMsg(testAdminID, "git"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.publisher.calls != 1 {
			t.Fatalf("publish calls = %d", f.publisher.calls)
		}
		if !strings.Contains(replyText(replies), "git任务完成") {
			t.Fatalf("unexpected reply: %q", replyText(replies))
		}
	})

	t.Run("reset forces waiting stage", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.store.sess = record.Session{Stage: record.StageRecordContent, OwnerID: testOwnerID, RecordID: "rec-1"}
		if _, err := f.processor.Handle(context.Background(), privateMsg(testAdminID, "reset")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.store.sess.Stage != record.StageWaitingCommand {
			t.Fatalf("stage = %s", f.store.sess.Stage)
		}
	})

	t.Run("non-admin is dropped", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		replies, err := f.processor.Handle(context.Background(), privateMsg(7, "git"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if replies != nil || f.publisher.calls != 0 {
			t.Fatalf("non-admin command executed")
		}
	})
}

// Full conversation: command, title, mixed content, skip attribution.
func TestRecordingConversationEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	replies, err := f.processor.Handle(ctx, groupMsg(testOwnerID, atBot(), channel.TextSegment("record")))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(replyText(replies), "请输入标题") {
		t.Fatalf("start reply: %q", replyText(replies))
	}

	replies, err = f.processor.Handle(ctx, groupMsg(testOwnerID, channel.TextSegment("Weekly digest")))
	if err != nil {
		t.Fatalf("title: %v", err)
	}
	if !strings.Contains(replyText(replies), "请输入内容") {
		t.Fatalf("title reply: %q", replyText(replies))
	}

	replies, err = f.processor.Handle(ctx, groupMsg(testOwnerID,
		channel.TextSegment("see link"),
		channel.Segment{Type: channel.SegmentImage, URL: "https://cdn/img", File: "pic.jpg"},
	))
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if !strings.Contains(replyText(replies), "如果还需记录请回复：1") {
		t.Fatalf("content reply: %q", replyText(replies))
	}

	replies, err = f.processor.Handle(ctx, groupMsg(testOwnerID, channel.TextSegment("3")))
	if err != nil {
		t.Fatalf("remark: %v", err)
	}
	if !strings.Contains(replyText(replies), "记录成功！") {
		t.Fatalf("remark reply: %q", replyText(replies))
	}

	if f.store.sess.Stage != record.StageWaitingCommand {
		t.Fatalf("final stage = %s", f.store.sess.Stage)
	}
	if len(f.store.records) != 1 {
		t.Fatalf("records = %+v", f.store.records)
	}
	r := f.store.records[0]
	if r.Title != "Weekly digest" || r.Remark != "" {
		t.Fatalf("record = %+v", r)
	}
	items := f.store.contents[r.ID]
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Kind != record.KindText || items[0].Payload != "see link" {
		t.Fatalf("item 0 = %+v", items[0])
	}
	if items[1].Kind != record.KindImage || items[1].Payload != "stored.png" {
		t.Fatalf("item 1 = %+v", items[1])
	}
}
