package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	upsertDocumentQuery = "INSERT INTO documents (id, content, version, created_at, updated_at) " +
		"VALUES ($1, $2, $3, $4, $4) " +
		"ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at " +
		"WHERE documents.version <= EXCLUDED.version"
	insertVersionQuery = "INSERT INTO document_versions (document_id, content, version, created_at) VALUES ($1, $2, $3, $4)"
)

func (db *PgDocumentRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgDocumentRepository) GetDocument(ctx context.Context, id string) (Document, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, content, version, updated_at FROM documents "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var doc Document
	err := row.Scan(
		&doc.Id,
		&doc.Content,
		&doc.Version,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}

	return doc, err
}

func (db *PgDocumentRepository) SaveSnapshot(ctx context.Context, doc Document) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, upsertDocumentQuery, doc.Id, doc.Content, doc.Version, updatedAt)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n > 0 {
		// only record history for snapshots that were actually applied
		if _, err = tx.ExecContext(ctx, insertVersionQuery, doc.Id, doc.Content, doc.Version, updatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}
