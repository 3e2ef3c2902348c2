package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/netwise/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

const notificationColumns = `id, recipient_id, kind, actor_id, subject_id, message, idempotency_key, read, created_at, read_at`

// Append は通知レコードを冪等に追記する。
// (recipient_id, idempotency_key)の一意制約にON CONFLICT DO NOTHINGを合わせ、
// 重複ディスパッチでは既存レコードを返す（created=false）。
func (r *PostgresNotificationRepo) Append(ctx context.Context, n *model.Notification) (bool, *model.Notification, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, kind, actor_id, subject_id, message, idempotency_key, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		 ON CONFLICT (recipient_id, idempotency_key) DO NOTHING`,
		n.ID, n.RecipientID, n.Kind, n.ActorID, n.SubjectID, n.Message, n.IdempotencyKey, n.CreatedAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("failed to append notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil, nil
	}

	// 重複: 既存レコードを取得して返す
	existing := &model.Notification{}
	err = r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE recipient_id = $1 AND idempotency_key = $2`,
		n.RecipientID, n.IdempotencyKey,
	).Scan(
		&existing.ID, &existing.RecipientID, &existing.Kind, &existing.ActorID,
		&existing.SubjectID, &existing.Message, &existing.IdempotencyKey,
		&existing.Read, &existing.CreatedAt, &existing.ReadAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load existing notification: %w", err)
	}

	return false, existing, nil
}

// ListByRecipient は受信者の通知一覧を(created_at, id)の降順で返す。
// cursorがゼロ値の場合は先頭から取得する。
func (r *PostgresNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, cursor time.Time, cursorID string, limit int) ([]*model.Notification, error) {
	var rows *sql.Rows
	var err error

	switch {
	case cursor.IsZero():
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+notificationColumns+` FROM notifications
			 WHERE recipient_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			recipientID, limit,
		)
	case cursorID == "":
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+notificationColumns+` FROM notifications
			 WHERE recipient_id = $1 AND created_at < $2
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			recipientID, cursor, limit,
		)
	default:
		// created_atが同一マイクロ秒の行をページ境界で取り落とさないよう
		// 行値比較でタイブレークする
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+notificationColumns+` FROM notifications
			 WHERE recipient_id = $1 AND (created_at, id) < ($2, $3::uuid)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			recipientID, cursor, cursorID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.Kind, &n.ActorID, &n.SubjectID,
			&n.Message, &n.IdempotencyKey, &n.Read, &n.CreatedAt, &n.ReadAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}

	return notifications, nil
}

// CountUnread は受信者の未読通知数を返す。
func (r *PostgresNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead は受信者自身の通知を既読にする。冪等で、既読の通知への
// 再実行もtrueを返す。recipient_id条件により他人の通知は更新できない。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, recipientID, notificationID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3)
		 WHERE id = $1 AND recipient_id = $2`,
		notificationID, recipientID, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// MarkAllRead は受信者の全未読通知を既読にし、更新件数を返す。
func (r *PostgresNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE, read_at = $2
		 WHERE recipient_id = $1 AND read = FALSE`,
		recipientID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
