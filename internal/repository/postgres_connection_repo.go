package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/netwise/internal/model"
)

// pqUniqueViolation はPostgreSQLのunique_violationエラーコード。
const pqUniqueViolation = "23505"

// PostgresConnectionRepo はPostgreSQLを使用したつながりエッジのリポジトリ。
type PostgresConnectionRepo struct {
	db *sql.DB
}

// NewPostgresConnectionRepo はPostgresConnectionRepoを生成する。
func NewPostgresConnectionRepo(db *sql.DB) *PostgresConnectionRepo {
	return &PostgresConnectionRepo{db: db}
}

const connectionColumns = `id, requester_id, recipient_id, status, message, created_at, updated_at`

// scanConnection は1行をmodel.Connectionに読み取る。
func scanConnection(row *sql.Row) (*model.Connection, error) {
	conn := &model.Connection{}
	err := row.Scan(
		&conn.ID, &conn.RequesterID, &conn.RecipientID,
		&conn.Status, &conn.Message, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// FindByID は指定IDのエッジを取得する。見つからない場合はnilを返す。
func (r *PostgresConnectionRepo) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	conn, err := scanConnection(r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find connection by ID: %w", err)
	}
	return conn, nil
}

// FindActiveByPair は無順序ペアのアクティブなエッジ（pending/accepted）を
// 方向を問わず検索する。見つからない場合はnilを返す。
// 部分一意インデックスにより該当行は高々1件。
func (r *PostgresConnectionRepo) FindActiveByPair(ctx context.Context, userA, userB string) (*model.Connection, error) {
	conn, err := scanConnection(r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections
		 WHERE status IN ('pending', 'accepted')
		   AND LEAST(requester_id, recipient_id) = LEAST($1::uuid, $2::uuid)
		   AND GREATEST(requester_id, recipient_id) = GREATEST($1::uuid, $2::uuid)`,
		userA, userB,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active connection for pair: %w", err)
	}
	return conn, nil
}

// FindLatestTerminalByPair は無順序ペアの最新の終端エッジ（rejected/withdrawn）を
// 検索する。見つからない場合はnilを返す。
func (r *PostgresConnectionRepo) FindLatestTerminalByPair(ctx context.Context, userA, userB string) (*model.Connection, error) {
	conn, err := scanConnection(r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections
		 WHERE status IN ('rejected', 'withdrawn')
		   AND LEAST(requester_id, recipient_id) = LEAST($1::uuid, $2::uuid)
		   AND GREATEST(requester_id, recipient_id) = GREATEST($1::uuid, $2::uuid)
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		userA, userB,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find terminal connection for pair: %w", err)
	}
	return conn, nil
}

// Create は新規エッジを作成する。
// アクティブなエッジが既存のペアの場合、部分一意インデックス違反を
// ErrDuplicateActiveEdgeに変換して返す。
func (r *PostgresConnectionRepo) Create(ctx context.Context, conn *model.Connection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connections (id, requester_id, recipient_id, status, message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conn.ID, conn.RequesterID, conn.RecipientID, conn.Status, conn.Message, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateActiveEdge
		}
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

// UpdateStatusIfPending はエッジがpendingの場合に限り状態を遷移させる。
// WHERE句のstatus条件がcompare-and-swapとして機能し、
// 並行する遷移のうち最初の1件だけが行を更新できる。
func (r *PostgresConnectionRepo) UpdateStatusIfPending(ctx context.Context, id string, next model.ConnectionStatus, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE connections SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, next, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update connection status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ListByUser は指定ユーザーが関与するエッジの一覧をフィルタ付きで返す。
func (r *PostgresConnectionRepo) ListByUser(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE `

	switch filter {
	case model.ConnectionFilterAll:
		query += `(requester_id = $1 OR recipient_id = $1)`
	case model.ConnectionFilterAccepted:
		query += `(requester_id = $1 OR recipient_id = $1) AND status = 'accepted'`
	case model.ConnectionFilterPending:
		query += `(requester_id = $1 OR recipient_id = $1) AND status = 'pending'`
	case model.ConnectionFilterIncoming:
		query += `recipient_id = $1 AND status = 'pending'`
	case model.ConnectionFilterOutgoing:
		query += `requester_id = $1 AND status = 'pending'`
	default:
		return nil, fmt.Errorf("unknown connection filter: %s", filter)
	}

	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*model.Connection
	for rows.Next() {
		conn := &model.Connection{}
		if err := rows.Scan(
			&conn.ID, &conn.RequesterID, &conn.RecipientID,
			&conn.Status, &conn.Message, &conn.CreatedAt, &conn.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connection rows: %w", err)
	}

	return conns, nil
}

// compile-time interface check
var _ ConnectionRepository = (*PostgresConnectionRepo)(nil)
