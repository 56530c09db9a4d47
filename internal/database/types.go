package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var (
	ErrStorage  = errors.New("storage failure")
	ErrNotFound = errors.New("resource not found")
)

// Queryable is the set of sqlx methods shared by both *sqlx.DB and *sqlx.Tx,
// allowing stores to be used inside or outside of a transaction.
type Queryable interface {
	sqlx.Ext
	sqlx.Preparer
	Get(dest any, query string, args ...any) error
	Select(dest any, query string, args ...any) error
	NamedExec(query string, arg any) (sql.Result, error)
	PrepareNamed(query string) (*sqlx.NamedStmt, error)
}

// JsonColumn is a generic container for a column stored as
// JSON/JSONB in the database.
type JsonColumn[T any] struct {
	val T
}

func NewJsonColumn[T any](val T) JsonColumn[T] {
	return JsonColumn[T]{val: val}
}

func (j *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JSON column", src)
	}

	return json.Unmarshal(raw, &j.val)
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	return json.Marshal(j.val)
}

func (j *JsonColumn[T]) Get() *T {
	return &j.val
}

func (j JsonColumn[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.val)
}

func (j *JsonColumn[T]) UnmarshalJSON(raw []byte) error {
	return json.Unmarshal(raw, &j.val)
}

// WrapError converts an error from the database driver in to one
// of the storage sentinel errors, preserving the original error
// in the chain. A nil error is returned unchanged.
func WrapError(err error, action string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}

	return fmt.Errorf("%s: %w: %w", action, ErrStorage, err)
}

// InExec combines sqlx's `In` method and the `Exec` of the output query.
// Rebinding of the query is handled automatically.
func InExec(db Queryable, query string, args ...any) error {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}

	_, err = db.Exec(db.Rebind(q), a...)
	return err
}
