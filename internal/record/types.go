// Package record holds the curator's domain types and their Postgres storage.
package record

import "time"

// ContentKind tags one content item as text or a stored image filename.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
)

// Record is one user-authored entry: a title, an optional attribution remark,
// and ordered content items.
type Record struct {
	ID        string
	Title     string
	Remark    string
	CreatedAt time.Time
}

// ContentItem is one atomic piece of a record's body. Payload is the literal
// text, or the stored filename for images.
type ContentItem struct {
	RecordID string
	Payload  string
	Kind     ContentKind
}
