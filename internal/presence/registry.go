// Package presence はユーザー識別子と生きているトランスポートセッションの
// 対応を保持するインメモリのレジストリを提供する。
//
// レジストリはプロセスローカルかつ揮発性であり、永続化しない。
// プロセス再起動で全プレゼンスは失われ、クライアントは再接続時に
// 再アナウンスすることが前提となる。
package presence

import "sync"

// Registry はユーザー識別子→セッションID集合のマッピングを保持する。
// 1ユーザーが複数セッション（複数タブ等）を同時に持てる。
// 全メソッドは複数goroutineからの並行呼び出しに対して安全。
type Registry struct {
	mu sync.RWMutex

	// byUser はユーザーIDごとの生きているセッションID集合。
	// 集合が空になったエントリは保持しない。
	byUser map[string]map[string]struct{}

	// bySession はセッションID→ユーザーIDの逆引き。
	// DeregisterがセッションIDだけで呼べるようにする。
	bySession map[string]string
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{
		byUser:    make(map[string]map[string]struct{}),
		bySession: make(map[string]string),
	}
}

// Register はセッションをユーザーに冪等に紐付ける。
// 同一セッションの再登録は何もしない。セッションが別ユーザーに
// 紐付いていた場合は旧ユーザーから外して付け替える。
func (r *Registry) Register(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bySession[sessionID]; ok {
		if prev == userID {
			return
		}
		r.removeLocked(prev, sessionID)
	}

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[sessionID] = struct{}{}
	r.bySession[sessionID] = userID
}

// Deregister はセッションをどのユーザーからであれ取り除く。
// トランスポートの「セッション終了」シグナルが唯一の呼び出し契機となる。
// 紐付いていたユーザーIDと、取り除きが行われたかを返す。
// ユーザーのセッション集合が空になった場合、エントリごと削除する。
func (r *Registry) Deregister(sessionID string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.bySession[sessionID]
	if !ok {
		return "", false
	}
	r.removeLocked(userID, sessionID)
	return userID, true
}

// removeLocked はロック保持中にセッションの紐付けを解除する。
func (r *Registry) removeLocked(userID, sessionID string) {
	delete(r.bySession, sessionID)
	if set, ok := r.byUser[userID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// SessionsFor はユーザーの現在の生きているセッションIDのスナップショットを返す。
// オフラインの場合は空スライスを返す。返り値は呼び出し側が自由に保持できる
// コピーであり、以後のregister/deregisterの影響を受けない。
func (r *Registry) SessionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	sessions := make([]string, 0, len(set))
	for id := range set {
		sessions = append(sessions, id)
	}
	return sessions
}

// OnlineUsers は1つ以上のセッションを持つユーザー数を返す。メトリクス用。
func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// OpenSessions はユーザーに紐付いているセッションの総数を返す。メトリクス用。
func (r *Registry) OpenSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}
