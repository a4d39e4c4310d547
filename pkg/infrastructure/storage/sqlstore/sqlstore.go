// Package sqlstore implements the relational storage strategy: a
// minimal {id TEXT PRIMARY KEY, data TEXT} table per aggregate, backed
// by database/sql and the mattn/go-sqlite3 driver. Each write runs
// inside its own transaction.
package sqlstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
)

func init() {
	storage.Register("sql", register)
}

func register(cfg map[string]any) (*storage.Registry, error) {
	dsn, _ := cfg["dsn"].(string)
	if dsn == "" {
		return nil, fmt.Errorf("sql storage requires dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	for _, table := range []string{"requests", "machines", "templates"} {
		if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT NOT NULL)`, table)); err != nil {
			return nil, fmt.Errorf("sql storage: creating table %s: %w", table, err)
		}
	}
	return &storage.Registry{
		Strategy: "sql",
		Requests: New(db, "requests", func(r repository.RequestRecord) string { return r.RequestID }),
		Machines: New(db, "machines", func(m repository.MachineRecord) string { return m.MachineID }),
		Templates: New(db, "templates", func(t repository.TemplateRecord) string { return t.TemplateID }),
	}, nil
}

// Store is a generic per-aggregate SQL-backed repository using JSON
// marshaling for the data column, one table per aggregate.
type Store[T any] struct {
	db    *sql.DB
	table string
	idOf  func(T) string
	codec codec[T]
}

func New[T any](db *sql.DB, table string, idOf func(T) string) *Store[T] {
	return &Store[T]{db: db, table: table, idOf: idOf, codec: jsonCodec[T]{}}
}

func (s *Store[T]) Save(entity T) error {
	data, err := s.codec.Encode(entity)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data=excluded.data`, s.table),
		s.idOf(entity), data)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store[T]) GetByID(id string) (T, bool, error) {
	var zero T
	var data string
	err := s.db.QueryRow(fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, s.table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, err := s.codec.Decode(data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *Store[T]) FindAll() ([]T, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT data FROM %s`, s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		v, err := s.codec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store[T]) FindBy(criteria func(T) bool) ([]T, error) {
	all, err := s.FindAll()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, v := range all {
		if criteria(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store[T]) Delete(id string) error {
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table), id)
	return err
}
