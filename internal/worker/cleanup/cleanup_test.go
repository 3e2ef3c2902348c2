package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// execCall はExecContextの1回分の呼び出し記録。
type execCall struct {
	query string
	args  []interface{}
}

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	calls  []execCall
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.calls = append(m.calls, execCall{query: query, args: args})
	return m.result, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	mock := &mockExecutor{
		result: &fakeResult{rowsAffected: 0},
	}
	job := NewCleanupJob(mock, logger)

	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

func TestCleanupJob_Run_DeletesExpiredSessionsAndOldNotifications(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	mock := &mockExecutor{
		result: &fakeResult{rowsAffected: 5},
	}
	job := NewCleanupJob(mock, logger)

	err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if len(mock.calls) != 2 {
		t.Fatalf("ExecContext の呼び出し回数 = %d, want 2", len(mock.calls))
	}

	// 1回目: セッション削除
	sessionQuery := mock.calls[0].query
	if !strings.Contains(sessionQuery, "DELETE FROM sessions") {
		t.Errorf("クエリに 'DELETE FROM sessions' が含まれていない: %s", sessionQuery)
	}
	if !strings.Contains(sessionQuery, "expires_at") {
		t.Errorf("クエリに 'expires_at' 条件が含まれていない: %s", sessionQuery)
	}

	// 2回目: 既読通知削除
	notifQuery := mock.calls[1].query
	if !strings.Contains(notifQuery, "DELETE FROM notifications") {
		t.Errorf("クエリに 'DELETE FROM notifications' が含まれていない: %s", notifQuery)
	}
	if !strings.Contains(notifQuery, "read = TRUE") {
		t.Errorf("クエリに 'read = TRUE' 条件が含まれていない: %s", notifQuery)
	}
	if !strings.Contains(notifQuery, "created_at") {
		t.Errorf("クエリに 'created_at' 条件が含まれていない: %s", notifQuery)
	}
}

func TestCleanupJob_Run_UsesIntervalParameter(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	mock := &mockExecutor{
		result: &fakeResult{rowsAffected: 0},
	}
	job := NewCleanupJob(mock, logger)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	// 通知削除クエリの引数に90日のinterval文字列が渡されること
	notifArgs := mock.calls[1].args
	if len(notifArgs) < 1 {
		t.Fatal("通知削除クエリに引数が渡されなかった")
	}

	argStr, ok := notifArgs[0].(string)
	if !ok {
		t.Fatalf("引数が文字列ではない: %T", notifArgs[0])
	}
	if argStr != "90 days" {
		t.Errorf("interval引数 = %q, want %q", argStr, "90 days")
	}
}

func TestCleanupJob_Run_CustomRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	mock := &mockExecutor{
		result: &fakeResult{rowsAffected: 0},
	}
	job := NewCleanupJob(mock, logger)
	job.RetentionDays = 30

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	argStr := mock.calls[1].args[0].(string)
	if argStr != "30 days" {
		t.Errorf("interval引数 = %q, want %q", argStr, "30 days")
	}
}

func TestCleanupJob_Run_ExecError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	mock := &mockExecutor{
		err: errors.New("connection refused"),
	}
	job := NewCleanupJob(mock, logger)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() はエラーを返すべき")
	}

	// 最初のクエリで失敗したら2つ目のクエリは実行しない
	if len(mock.calls) != 1 {
		t.Errorf("ExecContext の呼び出し回数 = %d, want 1", len(mock.calls))
	}
}

func TestCleanupJob_Run_LogsDeletedCounts(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	mock := &mockExecutor{
		result: &fakeResult{rowsAffected: 3},
	}
	job := NewCleanupJob(mock, logger)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	// 最終行の完了ログに削除件数が含まれること
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("ログのパースに失敗: %v", err)
	}

	if int(entry["deleted_sessions"].(float64)) != 3 {
		t.Errorf("deleted_sessions = %v, want 3", entry["deleted_sessions"])
	}
	if int(entry["deleted_notifications"].(float64)) != 3 {
		t.Errorf("deleted_notifications = %v, want 3", entry["deleted_notifications"])
	}
}
