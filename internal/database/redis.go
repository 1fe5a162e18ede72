package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docsync:document:"

type RedisDocumentRepository struct {
	client *redis.Client
}

func NewRedisDocumentRepository(redisURL string) (*RedisDocumentRepository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisDocumentRepository{client: client}, nil
}

func documentKey(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisDocumentRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisDocumentRepository) GetDocument(ctx context.Context, id string) (Document, error) {
	vals, err := r.client.HGetAll(ctx, documentKey(id)).Result()
	if err != nil {
		return Document{}, err
	}

	if len(vals) == 0 {
		return Document{}, ErrDocumentNotFound
	}

	return decodeDocument(id, vals)
}

func decodeDocument(id string, vals map[string]string) (Document, error) {
	doc := Document{
		Id:      id,
		Content: vals["content"],
	}

	if v, ok := vals["version"]; ok {
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Document{}, fmt.Errorf("parse version: %w", err)
		}
		doc.Version = version
	}

	if v, ok := vals["updated_at"]; ok {
		updatedAt, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Document{}, fmt.Errorf("parse updated_at: %w", err)
		}
		doc.UpdatedAt = updatedAt
	}

	return doc, nil
}

func (r *RedisDocumentRepository) SaveSnapshot(ctx context.Context, doc Document) error {
	key := documentKey(doc.Id)
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "version").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && cur > doc.Version {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"content", doc.Content,
				"version", doc.Version,
				"updated_at", updatedAt.Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}, key)
}

func (r *RedisDocumentRepository) Close() error {
	return r.client.Close()
}
