// Package connection はつながりリクエストの状態遷移を管理する。
//
// エッジの状態は NoEdge → Pending → {Accepted, Rejected, Withdrawn} の
// 一方向で、遷移のガードはすべてこのサービス層が担う。並行する遷移の
// 直列化はリポジトリの条件付きUPDATE（pendingの場合に限り更新）に
// 委ね、負けた側にはInvalidStateを返す。
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/netwise/internal/model"
	"github.com/hitoshi/netwise/internal/notify"
	"github.com/hitoshi/netwise/internal/repository"
	"github.com/hitoshi/netwise/internal/security"
)

// Dispatcher は状態遷移に伴う通知イベントの発行先。
// notifyパッケージのDispatcherが実装する。
type Dispatcher interface {
	Dispatch(ctx context.Context, event notify.Event) (*model.Notification, error)
}

// ServiceConfig はつながりサービスの設定。
type ServiceConfig struct {
	// RequestCooldown は拒否・取り下げ後に同じペアが再リクエスト
	// できるようになるまでの期間。0なら即時に再リクエストできる。
	RequestCooldown time.Duration
}

// Service はつながりリクエストに関するビジネスロジックを提供する。
type Service struct {
	connRepo   repository.ConnectionRepository
	userRepo   repository.UserRepository
	dispatcher Dispatcher
	sanitizer  security.NoteSanitizerService
	config     ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	connRepo repository.ConnectionRepository,
	userRepo repository.UserRepository,
	dispatcher Dispatcher,
	sanitizer security.NoteSanitizerService,
	config ServiceConfig,
) *Service {
	return &Service{
		connRepo:   connRepo,
		userRepo:   userRepo,
		dispatcher: dispatcher,
		sanitizer:  sanitizer,
		config:     config,
	}
}

// Request はrequesterからrecipientへのつながりリクエストを作成する。
//
// アクティブなエッジ（方向を問わずpending/accepted）が既に存在する場合は
// AlreadyPending/AlreadyConnectedで失敗する。事前チェックとINSERTの間に
// 競合が起きた場合も、部分一意インデックスの違反を同じ分類にマップする。
// 添え書きメッセージは保存前にサニタイズされる。
func (s *Service) Request(ctx context.Context, requesterID, recipientID, message string) (*model.Connection, error) {
	if requesterID == recipientID {
		return nil, model.NewSelfConnectionError()
	}

	exists, err := s.userRepo.ExistsByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to check recipient existence: %w", err)
	}
	if !exists {
		return nil, model.NewUserNotFoundError(recipientID)
	}

	// 事前チェック: アクティブなエッジが既にあれば分類して返す。
	// 最終的な防衛線はDBの部分一意インデックス。
	active, err := s.connRepo.FindActiveByPair(ctx, requesterID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active edge: %w", err)
	}
	if active != nil {
		return nil, classifyActiveEdge(active)
	}

	if err := s.checkCooldown(ctx, requesterID, recipientID); err != nil {
		return nil, err
	}

	now := time.Now()
	conn := &model.Connection{
		ID:          uuid.New().String(),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      model.ConnectionStatusPending,
		Message:     s.sanitizer.Sanitize(message),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.connRepo.Create(ctx, conn); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveEdge) {
			// 競合: 事前チェック後に相手方か再送が先にエッジを作った
			return nil, s.classifyRace(ctx, requesterID, recipientID)
		}
		return nil, fmt.Errorf("failed to create connection edge: %w", err)
	}

	slog.Info("connection requested",
		slog.String("connection_id", conn.ID),
		slog.String("requester_id", requesterID),
		slog.String("recipient_id", recipientID),
	)

	s.dispatch(ctx, notify.Event{
		Kind:        model.NotificationConnectionRequested,
		RecipientID: recipientID,
		ActorID:     requesterID,
		SubjectID:   conn.ID,
		Message:     conn.Message,
	})

	return conn, nil
}

// Accept はrecipientがpendingのリクエストを承認する。
// recipient以外の承認はNotAuthorized、pending以外の状態はInvalidStateで失敗する。
// 承認成立時はrequesterへConnectionAccepted通知をディスパッチする。
func (s *Service) Accept(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
	conn, err := s.transition(ctx, connectionID, byUserID, model.ConnectionStatusAccepted, recipientOnly)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, notify.Event{
		Kind:        model.NotificationConnectionAccepted,
		RecipientID: conn.RequesterID,
		ActorID:     conn.RecipientID,
		SubjectID:   conn.ID,
	})

	return conn, nil
}

// Reject はrecipientがpendingのリクエストを拒否する。通知は発行しない。
func (s *Service) Reject(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
	return s.transition(ctx, connectionID, byUserID, model.ConnectionStatusRejected, recipientOnly)
}

// Withdraw はrequesterがpendingのリクエストを取り下げる。通知は発行しない。
func (s *Service) Withdraw(ctx context.Context, connectionID, byUserID string) (*model.Connection, error) {
	return s.transition(ctx, connectionID, byUserID, model.ConnectionStatusWithdrawn, requesterOnly)
}

// List は指定ユーザーが関与するエッジの一覧をフィルタ付きで返す。
func (s *Service) List(ctx context.Context, userID string, filter model.ConnectionFilter) ([]*model.Connection, error) {
	if !model.ValidConnectionFilter(filter) {
		return nil, model.NewInvalidFilterError(string(filter))
	}
	return s.connRepo.ListByUser(ctx, userID, filter)
}

// 遷移を実行できる当事者の区別。
type authorizedParty int

const (
	recipientOnly authorizedParty = iota
	requesterOnly
)

// transition は認可チェックと条件付き状態遷移の共通経路。
// 遷移は「pendingである場合に限り更新」のcompare-and-swapで行い、
// 並行遷移に負けた場合は遷移後の現在状態を添えてInvalidStateを返す。
func (s *Service) transition(
	ctx context.Context,
	connectionID, byUserID string,
	next model.ConnectionStatus,
	party authorizedParty,
) (*model.Connection, error) {
	conn, err := s.connRepo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find connection edge: %w", err)
	}
	if conn == nil {
		return nil, model.NewConnectionNotFoundError(connectionID)
	}

	switch party {
	case recipientOnly:
		if conn.RecipientID != byUserID {
			return nil, model.NewNotAuthorizedError()
		}
	case requesterOnly:
		if conn.RequesterID != byUserID {
			return nil, model.NewNotAuthorizedError()
		}
	}

	if conn.Status != model.ConnectionStatusPending {
		return nil, model.NewInvalidStateError(conn.Status)
	}

	now := time.Now()
	updated, err := s.connRepo.UpdateStatusIfPending(ctx, connectionID, next, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update connection status: %w", err)
	}
	if !updated {
		// 並行遷移に負けた: 勝った遷移後の状態を取り直して返す
		current, err := s.connRepo.FindByID(ctx, connectionID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload connection edge: %w", err)
		}
		status := model.ConnectionStatusPending
		if current != nil {
			status = current.Status
		}
		return nil, model.NewInvalidStateError(status)
	}

	conn.Status = next
	conn.UpdatedAt = now

	slog.Info("connection transitioned",
		slog.String("connection_id", connectionID),
		slog.String("status", string(next)),
		slog.String("by_user_id", byUserID),
	)

	return conn, nil
}

// checkCooldown は終端エッジからの再リクエスト猶予を検査する。
func (s *Service) checkCooldown(ctx context.Context, requesterID, recipientID string) error {
	if s.config.RequestCooldown <= 0 {
		return nil
	}

	terminal, err := s.connRepo.FindLatestTerminalByPair(ctx, requesterID, recipientID)
	if err != nil {
		return fmt.Errorf("failed to find terminal edge: %w", err)
	}
	if terminal != nil && time.Since(terminal.UpdatedAt) < s.config.RequestCooldown {
		return model.NewRequestCooldownError()
	}
	return nil
}

// classifyRace はINSERT競合後にアクティブなエッジを取り直して分類する。
func (s *Service) classifyRace(ctx context.Context, requesterID, recipientID string) error {
	active, err := s.connRepo.FindActiveByPair(ctx, requesterID, recipientID)
	if err != nil {
		return fmt.Errorf("failed to classify duplicate edge: %w", err)
	}
	if active == nil {
		// 違反したエッジが直後に終端化された稀なケース。
		// クライアントの再送で解決するのでpending扱いにしておく。
		return model.NewAlreadyPendingError()
	}
	return classifyActiveEdge(active)
}

// classifyActiveEdge はアクティブなエッジの状態をAPIエラーへ写す。
func classifyActiveEdge(conn *model.Connection) error {
	if conn.Status == model.ConnectionStatusAccepted {
		return model.NewAlreadyConnectedError()
	}
	return model.NewAlreadyPendingError()
}

// dispatch は通知イベントをベストエフォートで発行する。
// エッジの遷移は既にコミット済みなので、ディスパッチの失敗で
// 呼び出し元の操作は失敗させない。失敗はログに残す。
func (s *Service) dispatch(ctx context.Context, event notify.Event) {
	if _, err := s.dispatcher.Dispatch(ctx, event); err != nil {
		slog.Error("failed to dispatch notification",
			slog.String("kind", string(event.Kind)),
			slog.String("recipient_id", event.RecipientID),
			slog.String("subject_id", event.SubjectID),
			slog.String("error", err.Error()),
		)
	}
}
