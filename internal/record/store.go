package record

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store depends on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists records, content items, and the bot_data settings table.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a record store.
func NewStore(log *slog.Logger, db DB) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:     db,
		logger: log.With(slog.String("service", "record")),
	}
}

func (s *Store) data(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx, "SELECT data_value FROM bot_data WHERE data_key = $1", key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("read bot_data %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) setData(ctx context.Context, key, value string) error {
	if _, err := s.db.Exec(ctx, "UPDATE bot_data SET data_value = $1 WHERE data_key = $2", value, key); err != nil {
		return fmt.Errorf("write bot_data %q: %w", key, err)
	}
	return nil
}

// LoadSession reads the persisted session: stage, owner, and open record id.
func (s *Store) LoadSession(ctx context.Context) (Session, error) {
	rawStage, err := s.data(ctx, "status")
	if err != nil {
		return Session{}, err
	}
	stage, err := ParseStage(rawStage)
	if err != nil {
		return Session{}, err
	}
	rawOwner, err := s.data(ctx, "record_user_id")
	if err != nil {
		return Session{}, err
	}
	owner, err := strconv.ParseInt(rawOwner, 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("parse record_user_id: %w", err)
	}
	recordID, err := s.data(ctx, "recording_uuid")
	if err != nil {
		return Session{}, err
	}
	return Session{Stage: stage, OwnerID: owner, RecordID: recordID}, nil
}

// SaveSession writes the session back to bot_data.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if err := s.setData(ctx, "status", sess.Stage.String()); err != nil {
		return err
	}
	if err := s.setData(ctx, "record_user_id", strconv.FormatInt(sess.OwnerID, 10)); err != nil {
		return err
	}
	return s.setData(ctx, "recording_uuid", sess.RecordID)
}

// AdminID returns the configured administrator user id.
func (s *Store) AdminID(ctx context.Context) (int64, error) {
	raw, err := s.data(ctx, "admin")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse admin id: %w", err)
	}
	return id, nil
}

// MaxTitleLength returns the configured title length limit.
func (s *Store) MaxTitleLength(ctx context.Context) (int, error) {
	raw, err := s.data(ctx, "max_title_length")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse max_title_length: %w", err)
	}
	return n, nil
}

// ShareRoot returns the root directory of the generated archive tree.
func (s *Store) ShareRoot(ctx context.Context) (string, error) {
	return s.data(ctx, "share_path")
}

// SetScratch stashes text for the reply-import title flow.
func (s *Store) SetScratch(ctx context.Context, text string) error {
	return s.setData(ctx, "tmp_content", text)
}

// CreateRecord inserts a new record and returns its generated id.
func (s *Store) CreateRecord(ctx context.Context, title string) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.Exec(ctx, "INSERT INTO records (id, title) VALUES ($1, $2)", id, title); err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

// AppendContent adds one content item to a record. Insertion order is the
// read-back order.
func (s *Store) AppendContent(ctx context.Context, recordID, payload string, kind ContentKind) error {
	s.logger.Info("append content", slog.String("record_id", recordID), slog.String("kind", string(kind)))
	if _, err := s.db.Exec(ctx,
		"INSERT INTO record_contents (record_id, payload, kind) VALUES ($1, $2, $3)",
		recordID, payload, string(kind)); err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

// SetRemark sets the attribution remark of a record.
func (s *Store) SetRemark(ctx context.Context, recordID, remark string) error {
	if _, err := s.db.Exec(ctx,
		"UPDATE records SET remark = $1, updated_at = now() WHERE id = $2",
		remark, recordID); err != nil {
		return fmt.Errorf("update remark: %w", err)
	}
	return nil
}

const recordColumns = "id, title, COALESCE(remark, ''), created_at"

// ListAllRecords returns every record ordered by creation time ascending.
func (s *Store) ListAllRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+recordColumns+" FROM records ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecordsInRange returns records created in [start, end), oldest first.
func (s *Store) ListRecordsInRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+recordColumns+" FROM records WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC",
		start, end)
	if err != nil {
		return nil, fmt.Errorf("list records in range: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Title, &r.Remark, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListContent returns a record's content items in insertion order.
func (s *Store) ListContent(ctx context.Context, recordID string) ([]ContentItem, error) {
	rows, err := s.db.Query(ctx,
		"SELECT record_id, payload, kind FROM record_contents WHERE record_id = $1 ORDER BY id ASC",
		recordID)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()
	var items []ContentItem
	for rows.Next() {
		var item ContentItem
		var kind string
		if err := rows.Scan(&item.RecordID, &item.Payload, &kind); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		item.Kind = ContentKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteRecord removes a record and all of its content in one transaction, so
// no half-deleted state is ever observable.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, "DELETE FROM record_contents WHERE record_id = $1", id); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM records WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}
