package attachment

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

// ErrNotFound indicates no attachment exists for the (owner, id) pair.
var ErrNotFound = errors.New("attachment not found")

// Execer is an interface for executing SQL statements.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// JSONMap stores arbitrary metadata as a JSON object column.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case string:
		if v == "" || v == "{}" {
			*j = JSONMap{}
			return nil
		}
		return json.Unmarshal([]byte(v), j)
	case []byte:
		if len(v) == 0 || string(v) == "{}" {
			*j = JSONMap{}
			return nil
		}
		return json.Unmarshal(v, j)
	default:
		return fmt.Errorf("cannot scan type %T into JSONMap", value)
	}
}

// Value implements the driver.Valuer interface for JSONMap.
func (j JSONMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Attachment is an uploaded file's metadata record. The bytes themselves live
// in the blob store under BlobName.
type Attachment struct {
	ID          string    `json:"id" db:"id"`
	Owner       string    `json:"owner" db:"owner"`
	Filename    string    `json:"filename" db:"filename"`
	BlobName    string    `json:"blob_name" db:"blob_name"`
	ContentType string    `json:"content_type" db:"content_type"`
	Metadata    JSONMap   `json:"metadata" db:"metadata"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the indirect chatbot:// reference clients embed in messages.
func (a *Attachment) Ref() string {
	return MakeRef(a.ID)
}

// Create inserts a new attachment record, filling id and timestamps when
// unset.
func Create(ctx context.Context, db Execer, att *Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	if att.Metadata == nil {
		att.Metadata = JSONMap{}
	}
	if att.ContentType == "" {
		att.ContentType = "unknown"
	}
	now := time.Now().UTC()
	if att.CreatedAt.IsZero() {
		att.CreatedAt = now
	}
	if att.UpdatedAt.IsZero() {
		att.UpdatedAt = now
	}

	query := `INSERT INTO attachments (id, owner, filename, blob_name, content_type, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		att.ID, att.Owner, att.Filename, att.BlobName, att.ContentType, att.Metadata, att.CreatedAt, att.UpdatedAt)
	return err
}

// GetByID retrieves an attachment by owner and id. Returns nil when no such
// record exists.
func GetByID(ctx context.Context, db sqlscan.Querier, owner, id string) (*Attachment, error) {
	query := `SELECT id, owner, filename, blob_name, content_type, metadata, created_at, updated_at
		FROM attachments WHERE owner = ? AND id = ?`
	var a Attachment
	err := sqlscan.Get(ctx, db, &a, query, owner, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListByOwner retrieves all of an owner's attachments, oldest first.
func ListByOwner(ctx context.Context, db sqlscan.Querier, owner string) ([]*Attachment, error) {
	query := `SELECT id, owner, filename, blob_name, content_type, metadata, created_at, updated_at
		FROM attachments WHERE owner = ? ORDER BY created_at, id`
	var out []*Attachment
	if err := sqlscan.Select(ctx, db, &out, query, owner); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMetadata replaces the attachment's metadata object.
func UpdateMetadata(ctx context.Context, db Execer, owner, id string, metadata map[string]any) error {
	query := `UPDATE attachments SET metadata = ?, updated_at = ? WHERE owner = ? AND id = ?`
	res, err := db.ExecContext(ctx, query, JSONMap(metadata), time.Now().UTC(), owner, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attachment %s/%s: %w", owner, id, ErrNotFound)
	}
	return nil
}

// Delete removes the attachment record.
func Delete(ctx context.Context, db Execer, owner, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM attachments WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attachment %s/%s: %w", owner, id, ErrNotFound)
	}
	return nil
}
