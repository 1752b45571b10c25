package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"storeapi/internal/infra/metrics"
	repo "storeapi/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultTimeout        = 5 * time.Second
	DefaultRedialInterval = 5 * time.Second
)

type Target string

const (
	TargetPrimary Target = "primary"
	TargetReplica Target = "replica"
)

type RouterConfig struct {
	// 1回のストレージ呼び出しの上限
	Timeout time.Duration
	// trueのときだけ、replica不達の一般読み取りをprimaryで再試行する
	ReplicaFallback bool
	// 起動時にreplicaへつながらなかった場合の再接続。nilなら再接続しない。
	ReplicaDialer func() (*gorm.DB, error)
	// 再接続を試す最短間隔
	RedialInterval time.Duration
}

// Router は操作の種類(OpKind)だけで primary / replica を選ぶ。データは持たない。
type Router struct {
	primary *gorm.DB
	cfg     RouterConfig
	logger  *zap.Logger

	mu       sync.Mutex
	replica  *gorm.DB
	lastDial time.Time
}

// DI。接続に失敗した側はnilで渡してよい（その経路はUnavailableになる）。
func NewRouter(primary, replica *gorm.DB, cfg RouterConfig, logger *zap.Logger) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RedialInterval <= 0 {
		cfg.RedialInterval = DefaultRedialInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		primary: primary,
		replica: replica,
		cfg:     cfg,
		logger:  logger,
	}
}

// Route は kind に対応する接続を返す。
func (r *Router) Route(kind repo.OpKind) (*gorm.DB, Target, error) {
	switch kind {
	case repo.Write, repo.ReadConsistent:
		if r.primary == nil {
			return nil, TargetPrimary, fmt.Errorf("%w: primary not connected", repo.ErrUnavailable)
		}
		return r.primary, TargetPrimary, nil
	case repo.ReadGeneral:
		replica := r.replicaConn()
		if replica == nil {
			return nil, TargetReplica, fmt.Errorf("%w: replica not connected", repo.ErrUnavailable)
		}
		return replica, TargetReplica, nil
	default:
		return nil, "", fmt.Errorf("unknown op kind: %d", kind)
	}
}

// Do は kind で選んだ接続に timeout 付きの context を載せて fn を実行する。
// 接続断・タイムアウトは repo.ErrUnavailable に揃える。
func (r *Router) Do(ctx context.Context, kind repo.OpKind, fn func(tx *gorm.DB) error) error {
	conn, target, err := r.Route(kind)
	if err == nil {
		err = r.run(ctx, kind, target, conn, fn)
	}

	if err != nil && r.canFallback(kind, target, err) {
		r.logger.Warn("replica unavailable, falling back to primary",
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		metrics.ReplicaFallbacks.Inc()
		return r.run(ctx, kind, TargetPrimary, r.primary, fn)
	}
	return err
}

// replicaConn は接続済みのreplicaを返す。未接続ならRedialIntervalごとに1回だけ接続を試す。
func (r *Router) replicaConn() *gorm.DB {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.replica != nil || r.cfg.ReplicaDialer == nil {
		return r.replica
	}
	if !r.lastDial.IsZero() && time.Since(r.lastDial) < r.cfg.RedialInterval {
		return nil
	}
	r.lastDial = time.Now()

	conn, err := r.cfg.ReplicaDialer()
	if err != nil {
		r.logger.Warn("replica reconnect failed", zap.Error(err))
		return nil
	}
	r.logger.Info("replica connected")
	r.replica = conn
	return conn
}

func (r *Router) canFallback(kind repo.OpKind, target Target, err error) bool {
	return r.cfg.ReplicaFallback &&
		kind == repo.ReadGeneral &&
		target == TargetReplica &&
		r.primary != nil &&
		errors.Is(err, repo.ErrUnavailable)
}

func (r *Router) run(ctx context.Context, kind repo.OpKind, target Target, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(conn.WithContext(ctx))
	if err != nil && IsUnavailable(err) && !errors.Is(err, repo.ErrUnavailable) {
		err = fmt.Errorf("%w: %w", repo.ErrUnavailable, err)
	}

	metrics.StorageLatency.WithLabelValues(kind.String(), string(target)).Observe(time.Since(start).Seconds())
	metrics.StorageOperations.WithLabelValues(kind.String(), string(target), outcome(err)).Inc()
	return err
}

// Ping は接続ごとの疎通を返す（/healthz用）。
func (r *Router) Ping(ctx context.Context) map[Target]error {
	res := map[Target]error{}
	for target, conn := range map[Target]*gorm.DB{TargetPrimary: r.primary, TargetReplica: r.replicaConn()} {
		if conn == nil {
			res[target] = fmt.Errorf("%w: %s not connected", repo.ErrUnavailable, target)
			continue
		}
		res[target] = r.ping(ctx, conn)
	}
	return res
}

func (r *Router) ping(ctx context.Context, conn *gorm.DB) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", repo.ErrUnavailable, err)
	}
	return nil
}

// IsUnavailable は接続断・タイムアウト系のエラーかどうか。
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repo.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, repo.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
