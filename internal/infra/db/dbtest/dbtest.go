// Package dbtest はテスト用のsqlite(インメモリ)を用意する。
// primaryとreplicaは別DBなので、片方だけに書けばレプリケーション遅延を再現できる。
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"storeapi/internal/domain/model"
	"storeapi/internal/infra/db"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open はスキーマ作成済みの空DBを返す。テスト終了時に閉じる。
func Open(t *testing.T, name string) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", sanitize(t.Name()+"_"+name), seq.Add(1))
	gormDB, err := db.Open(sqlite.Open(dsn), db.Options{
		MaxOpenConns: 1,
		LogLevel:     logger.Silent,
	})
	require.NoError(t, err)

	require.NoError(t, gormDB.AutoMigrate(&model.Product{}))
	require.NoError(t, gormDB.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_products_title_lower ON products (LOWER(title))",
	).Error)

	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gormDB
}

// Pair は独立したprimary/replicaとそれを使うRouterを返す。
func Pair(t *testing.T, cfg db.RouterConfig) (primary, replica *gorm.DB, router *db.Router) {
	t.Helper()

	primary = Open(t, "primary")
	replica = Open(t, "replica")
	return primary, replica, db.NewRouter(primary, replica, cfg, zap.NewNop())
}

// Single はprimaryとreplicaが同じDB（遅延なし）のRouterを返す。
func Single(t *testing.T) (*gorm.DB, *db.Router) {
	t.Helper()

	conn := Open(t, "single")
	return conn, db.NewRouter(conn, conn, db.RouterConfig{}, zap.NewNop())
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
