// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package state provides persistence of element playback state.
package state

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kortschak/still/internal/slogext"

	// For sql.DB registration.
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no record exists for an element.
var ErrNotFound = errors.New("item not found")

// DB is a persistent state store.
type DB struct {
	mu    sync.Mutex
	store *sql.DB
	log   *slog.Logger
}

// Record is the last recorded playback state of an element.
type Record struct {
	Element string    `json:"element"`
	Source  string    `json:"source"`
	State   string    `json:"state"`
	Updated time.Time `json:"updated"`
}

// Schema is the DB schema.
const Schema = `
create table if not exists playback(
	element TEXT NOT NULL,
	source  TEXT NOT NULL,
	state   TEXT NOT NULL,
	updated TEXT NOT NULL,
	PRIMARY KEY(element)
);
`

const (
	upsert = `
insert into playback values(?, ?, ?, ?)
  on conflict do update set source=?, state=?, updated=?;
`

	get = `
select source, state, updated from playback where element is ?;
`

	delet = `
delete from playback where element is ?;
`

	dump = `
select * from playback order by element;
`
)

// Open opens a DB, creating the tables if required.
// See https://pkg.go.dev/modernc.org/sqlite#Driver.Open for name handling
// details.
func Open(name string, log *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{store: db, log: log.With(slog.String("component", "state"))}, nil
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

// Set records the playback state of the element showing source.
func (db *DB) Set(element, source, state string) error {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "set", slog.String("element", element), slog.Any("source", slogext.URI(source)), slog.String("state", state))
	db.mu.Lock()
	err := db.set(db.store, element, source, state, time.Now())
	db.mu.Unlock()
	if err != nil {
		db.log.LogAttrs(ctx, slog.LevelError, "set", slog.String("element", element), slog.Any("error", err))
	}
	return err
}

func (*DB) set(db querier, element, source, state string, now time.Time) error {
	if element == "" {
		return errors.New("missing element name")
	}
	updated := now.UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(upsert, element, source, state, updated, source, state, updated)
	return err
}

// Get returns the element's last recorded playback state. Get returns
// ErrNotFound if no record is found.
func (db *DB) Get(element string) (Record, error) {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "get", slog.String("element", element))
	db.mu.Lock()
	rec, err := db.get(db.store, element)
	db.mu.Unlock()
	if err != nil && err != ErrNotFound {
		db.log.LogAttrs(ctx, slog.LevelError, "get", slog.String("element", element), slog.Any("error", err))
	}
	return rec, err
}

func (*DB) get(db querier, element string) (Record, error) {
	rows, err := db.Query(get, element)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		err = rows.Err()
		if err != nil {
			return Record{}, err
		}
		return Record{}, ErrNotFound
	}
	rec := Record{Element: element}
	var updated string
	err = rows.Scan(&rec.Source, &rec.State, &updated)
	if err != nil {
		return Record{}, err
	}
	rec.Updated, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Record{}, err
	}
	return rec, rows.Err()
}

// Delete deletes the element's record.
func (db *DB) Delete(element string) error {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "delete", slog.String("element", element))
	db.mu.Lock()
	_, err := db.store.Exec(delet, element)
	db.mu.Unlock()
	if err != nil {
		db.log.LogAttrs(ctx, slog.LevelError, "delete", slog.String("element", element), slog.Any("error", err))
	}
	return err
}

// Dump returns all the records in the DB ordered by element name.
func (db *DB) Dump() ([]Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.store.Query(dump)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var (
			rec     Record
			updated string
		)
		err = rows.Scan(&rec.Element, &rec.Source, &rec.State, &updated)
		if err != nil {
			return nil, err
		}
		rec.Updated, err = time.Parse(time.RFC3339Nano, updated)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the database.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store.Close()
}
