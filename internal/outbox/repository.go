/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"
)

const (
	queryInsertMessage = `
		INSERT INTO outbox_messages (message_key, topic, payload, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, 'PENDING', 0, ?, ?)`

	queryPendingMessages = `
		SELECT id, message_key, topic, payload, status, retry_count, created_at, updated_at
		FROM outbox_messages
		WHERE status = 'PENDING'
		ORDER BY id ASC
		LIMIT ?`

	queryMarkSent = `
		UPDATE outbox_messages
		SET status = 'SENT', updated_at = ?
		WHERE id = ?`

	queryIncrementRetry = `
		UPDATE outbox_messages
		SET retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?`

	queryMarkFailed = `
		UPDATE outbox_messages
		SET status = 'FAILED', retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?`

	queryCountByStatus = `
		SELECT COUNT(*) FROM outbox_messages WHERE status = ?`
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertTx stages a message inside the caller's transaction.
func InsertTx(ctx context.Context, q store.Querier, topic, key, payload string, now time.Time) (int64, error) {
	if topic == "" || key == "" {
		return 0, store.Invalid("outbox topic and key are required")
	}
	res, err := q.ExecContext(ctx, queryInsertMessage, key, topic, payload, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert outbox message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox message id: %w", err)
	}
	return id, nil
}

func (r *Repository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, queryPendingMessages, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.OutboxMessage
	for rows.Next() {
		m := &models.OutboxMessage{}
		if err := rows.Scan(&m.Id, &m.MessageKey, &m.Topic, &m.Payload, &m.Status, &m.RetryCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

func (r *Repository) MarkSent(ctx context.Context, id int64, now time.Time) error {
	return r.exec(ctx, queryMarkSent, now, id)
}

func (r *Repository) IncrementRetryCount(ctx context.Context, id int64, now time.Time) error {
	return r.exec(ctx, queryIncrementRetry, now, id)
}

func (r *Repository) MarkAsFailed(ctx context.Context, id int64, now time.Time) error {
	return r.exec(ctx, queryMarkFailed, now, id)
}

func (r *Repository) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, queryCountByStatus, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox messages: %w", err)
	}
	return n, nil
}

func (r *Repository) exec(ctx context.Context, query string, now time.Time, id int64) error {
	res, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("failed to update outbox message %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("outbox message %d: %w", id, store.ErrNotFound)
	}
	return nil
}
