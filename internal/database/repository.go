package database

import (
	"context"
	"errors"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository persists room snapshots. The sync engine treats it as an
// external collaborator: a missing document means the room starts empty, and
// a failed save is retried on the next auto-save.
type DocumentRepository interface {
	Ping(ctx context.Context) error
	GetDocument(ctx context.Context, id string) (Document, error)
	// SaveSnapshot stores doc unless a snapshot with a higher version is
	// already stored.
	SaveSnapshot(ctx context.Context, doc Document) error
	Close() error
}
