// Package archive renders every stored record into the date-grouped markdown
// tree and hands the result to the publisher.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shareclub/curator/internal/record"
)

const (
	monthIndexName = "README.md"

	rootHeader  = "---\ntitle: 分享\nicon: comments\nindex: false\n---\n\n"
	monthHeader = "---\ntitle: %s月分享整理\nicon: circle-info\nindex: false\n---\n\n"
	dayHeader   = "---\ntitle: %s日分享整理\nicon: circle-info\n---\n\n"
)

// Store is the read surface the generator needs.
type Store interface {
	ListAllRecords(ctx context.Context) ([]record.Record, error)
	ListContent(ctx context.Context, recordID string) ([]record.ContentItem, error)
	ShareRoot(ctx context.Context) (string, error)
}

// Publisher pushes the written tree to its remote. A nil publisher means the
// tree stays local.
type Publisher interface {
	Publish(ctx context.Context) error
}

// Generator rebuilds the archive tree from scratch on every run. Output is
// deterministic: the same record set always yields byte-identical documents.
// Files from earlier runs that no longer match any group are left in place.
type Generator struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewGenerator creates an archive generator.
func NewGenerator(log *slog.Logger, store Store, publisher Publisher) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		store:     store,
		publisher: publisher,
		logger:    log.With(slog.String("service", "archive")),
	}
}

// Generate writes the full tree under the share root, then publishes it.
func (g *Generator) Generate(ctx context.Context) error {
	records, err := g.store.ListAllRecords(ctx)
	if err != nil {
		return err
	}
	root, err := g.store.ShareRoot(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create share root: %w", err)
	}

	byMonth := groupBy(records, "2006-01")
	rootIndex := strings.Builder{}
	rootIndex.WriteString(rootHeader)
	for _, month := range sortedKeys(byMonth) {
		rootIndex.WriteString(fmt.Sprintf("\n\n- [%s](%s/%s)", month, month, monthIndexName))
		if err := g.writeMonth(ctx, root, month, byMonth[month]); err != nil {
			return err
		}
	}
	if err := writeDoc(filepath.Join(root, monthIndexName), rootIndex.String()+"\n"); err != nil {
		return err
	}

	g.logger.Info("archive generated",
		slog.Int("records", len(records)), slog.Int("months", len(byMonth)))

	if g.publisher != nil {
		if err := g.publisher.Publish(ctx); err != nil {
			return fmt.Errorf("publish archive: %w", err)
		}
	}
	return nil
}

func (g *Generator) writeMonth(ctx context.Context, root, month string, records []record.Record) error {
	monthDir := filepath.Join(root, month)
	if err := os.MkdirAll(monthDir, 0o755); err != nil {
		return fmt.Errorf("create month dir: %w", err)
	}

	byDay := groupBy(records, "2006-01-02")
	monthIndex := strings.Builder{}
	monthIndex.WriteString(fmt.Sprintf(monthHeader, month))
	for _, day := range sortedKeys(byDay) {
		monthIndex.WriteString(fmt.Sprintf("\n\n- [%s](%s.md)", day, day))
		if err := g.writeDay(ctx, monthDir, byDay[day]); err != nil {
			return err
		}
	}
	return writeDoc(filepath.Join(monthDir, monthIndexName), monthIndex.String()+"\n")
}

// writeDay renders one day document: per record a title heading, the remark
// line when present, then every content item by kind. Unknown kinds are
// silently skipped.
func (g *Generator) writeDay(ctx context.Context, monthDir string, records []record.Record) error {
	doc := strings.Builder{}
	doc.WriteString(fmt.Sprintf(dayHeader, records[0].CreatedAt.Format("2006年01月02")))
	for _, r := range records {
		doc.WriteString(fmt.Sprintf("## %s\n\n", r.Title))
		if r.Remark != "" {
			doc.WriteString(r.Remark + "\n\n")
		}
		items, err := g.store.ListContent(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			switch item.Kind {
			case record.KindText:
				doc.WriteString(item.Payload + "\n\n")
			case record.KindImage:
				doc.WriteString(fmt.Sprintf("![image](%s/%s)\n\n", r.ID, item.Payload))
			}
		}
	}
	name := records[0].CreatedAt.Format("2006-01-02") + ".md"
	return writeDoc(filepath.Join(monthDir, name), doc.String())
}

func writeDoc(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// groupBy buckets records by a time format key, preserving their relative
// (creation-ascending) order inside each bucket.
func groupBy(records []record.Record, layout string) map[string][]record.Record {
	groups := make(map[string][]record.Record)
	for _, r := range records {
		key := r.CreatedAt.Format(layout)
		groups[key] = append(groups[key], r)
	}
	return groups
}

func sortedKeys(groups map[string][]record.Record) []string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
