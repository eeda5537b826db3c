// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package store contains an SQL-backed container for saved conversation
// scripts and export history. It works on SQLite and Postgres through dbutil.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"go.mau.fi/chatreel/script"
	"go.mau.fi/chatreel/store/upgrades"
)

var (
	ErrScriptNotFound = errors.New("script not found in store")
	ErrEmptyName      = errors.New("script name must not be empty")
)

const defaultExportHistoryLimit = 50

// SavedScript is one stored conversation script. The raw body is kept as
// written so round trips preserve formatting and comments.
type SavedScript struct {
	ID        uuid.UUID
	Name      string
	Format    script.Format
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Parse deserializes the stored body.
func (s *SavedScript) Parse() (*script.Script, error) {
	return script.Parse([]byte(s.Body), s.Format)
}

// ExportRecord is one line of export history. ScriptID is uuid.Nil when the
// export didn't come from a saved script.
type ExportRecord struct {
	ID            uuid.UUID
	ScriptID      uuid.UUID
	Filename      string
	ByteSize      int64
	FrameCount    int
	TotalDuration time.Duration
	EncodeTime    time.Duration
	CreatedAt     time.Time
}

// Container wraps an SQL database holding chatreel state.
type Container struct {
	db  *dbutil.Database
	log zerolog.Logger
}

// New connects to the given database and wraps it in a Container. Supported
// dialects are "sqlite" and "pgx" (or anything else dbutil can parse, as long
// as a matching database/sql driver is imported). Remember to call Upgrade
// before using the container.
func New(ctx context.Context, dialect, address string, log zerolog.Logger) (*Container, error) {
	db, err := dbutil.NewWithDialect(address, dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.RawDB.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewWithDatabase(db, log), nil
}

// NewWithDatabase wraps an existing dbutil database in a Container. Remember
// to call Upgrade before using the container.
func NewWithDatabase(db *dbutil.Database, log zerolog.Logger) *Container {
	db.UpgradeTable = upgrades.Table
	db.VersionTable = "chatreel_version"
	db.Log = dbutil.ZeroLogger(log)
	return &Container{db: db, log: log}
}

// Upgrade upgrades the database schema to the latest version.
func (c *Container) Upgrade(ctx context.Context) error {
	return c.db.Upgrade(ctx)
}

func (c *Container) Close() error {
	return c.db.Close()
}

const (
	insertScriptQuery = `
		INSERT INTO chatreel_script (id, name, format, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (name) DO UPDATE SET format=excluded.format, body=excluded.body, updated_at=excluded.updated_at
	`
	getScriptQuery    = `SELECT id, name, format, body, created_at, updated_at FROM chatreel_script WHERE name=$1`
	listScriptsQuery  = `SELECT id, name, format, body, created_at, updated_at FROM chatreel_script ORDER BY name`
	deleteScriptQuery = `DELETE FROM chatreel_script WHERE name=$1`
	unlinkExportsQuery = `
		UPDATE chatreel_export SET script_id=NULL
		WHERE script_id=(SELECT id FROM chatreel_script WHERE name=$1)
	`
	insertExportQuery = `
		INSERT INTO chatreel_export (id, script_id, filename, byte_size, frame_count, total_duration_ms, encode_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	listExportsQuery = `
		SELECT id, script_id, filename, byte_size, frame_count, total_duration_ms, encode_ms, created_at
		FROM chatreel_export ORDER BY created_at DESC, id DESC LIMIT $1
	`
)

// PutScript stores a script body under the given name, replacing the body
// and format if the name is already taken. The returned record reflects what
// is in the database, so on replacement it keeps the original ID and
// creation time.
func (c *Container) PutScript(ctx context.Context, name string, format script.Format, body string) (*SavedScript, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	var saved *SavedScript
	err = c.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		_, err := c.db.Exec(ctx, insertScriptQuery, id, name, string(format), body, time.Now().UnixMilli())
		if err != nil {
			return err
		}
		saved, err = scanScript(c.db.QueryRow(ctx, getScriptQuery, name))
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetScript loads one saved script by name.
func (c *Container) GetScript(ctx context.Context, name string) (*SavedScript, error) {
	saved, err := scanScript(c.db.QueryRow(ctx, getScriptQuery, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	return saved, err
}

// ListScripts returns all saved scripts ordered by name.
func (c *Container) ListScripts(ctx context.Context) ([]*SavedScript, error) {
	rows, err := c.db.Query(ctx, listScriptsQuery)
	if err != nil {
		return nil, err
	}
	var scripts []*SavedScript
	for rows.Next() {
		saved, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, saved)
	}
	err = rows.Close()
	if err != nil {
		return nil, err
	}
	return scripts, rows.Err()
}

// DeleteScript removes a saved script. Export history rows pointing at it are
// kept with their script reference cleared.
func (c *Container) DeleteScript(ctx context.Context, name string) error {
	return c.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		_, err := c.db.Exec(ctx, unlinkExportsQuery, name)
		if err != nil {
			return err
		}
		res, err := c.db.Exec(ctx, deleteScriptQuery, name)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrScriptNotFound, name)
		}
		return nil
	})
}

// RecordExport appends one line of export history. A zero ID and CreatedAt
// are filled in.
func (c *Container) RecordExport(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		rec.ID = id
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var scriptID any
	if rec.ScriptID != uuid.Nil {
		scriptID = rec.ScriptID
	}
	_, err := c.db.Exec(
		ctx, insertExportQuery,
		rec.ID, scriptID, rec.Filename, rec.ByteSize, rec.FrameCount,
		rec.TotalDuration.Milliseconds(), rec.EncodeTime.Milliseconds(), rec.CreatedAt.UnixMilli(),
	)
	return err
}

// ListExports returns the most recent export history entries, newest first.
// Non-positive limits fall back to a default.
func (c *Container) ListExports(ctx context.Context, limit int) ([]*ExportRecord, error) {
	if limit <= 0 {
		limit = defaultExportHistoryLimit
	}
	rows, err := c.db.Query(ctx, listExportsQuery, limit)
	if err != nil {
		return nil, err
	}
	var records []*ExportRecord
	for rows.Next() {
		var rec ExportRecord
		var totalMS, encodeMS, createdAt int64
		err = rows.Scan(&rec.ID, &rec.ScriptID, &rec.Filename, &rec.ByteSize, &rec.FrameCount, &totalMS, &encodeMS, &createdAt)
		if err != nil {
			return nil, err
		}
		rec.TotalDuration = time.Duration(totalMS) * time.Millisecond
		rec.EncodeTime = time.Duration(encodeMS) * time.Millisecond
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, &rec)
	}
	err = rows.Close()
	if err != nil {
		return nil, err
	}
	return records, rows.Err()
}

func scanScript(row dbutil.Scannable) (*SavedScript, error) {
	var saved SavedScript
	var format string
	var createdAt, updatedAt int64
	err := row.Scan(&saved.ID, &saved.Name, &format, &saved.Body, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	saved.Format = script.Format(format)
	saved.CreatedAt = time.UnixMilli(createdAt)
	saved.UpdatedAt = time.UnixMilli(updatedAt)
	return &saved, nil
}
