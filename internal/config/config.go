package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DB接続先。DSNがあればそれを優先する。
type DBConfig struct {
	DSN      string
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// Configはアプリ全体の設定
type Config struct {
	Port     string // サーバーポート（8080）
	GoEnv    string // dev/prod
	LogLevel string // debug/info/warn/error

	Primary DBConfig // 書き込みと整合性が必要な読み取り
	Replica DBConfig // 一般の読み取り（未指定の項目はprimaryと同じ）

	DBTimeout         time.Duration // 1回のDB呼び出しの上限
	DBMaxOpenConns    int
	DBReplicaFallback bool // replica不達時にprimaryで読む

	FeedURL     string
	FeedTimeout time.Duration

	ImportBatchSize            int
	ImportDedupCaseInsensitive bool
	ImportCron                 string // 空なら定期取り込みしない
	ImportTimeout              time.Duration

	RedisAddr string // 空ならキャッシュ無効
	CacheTTL  time.Duration
}

// Loadは環境変数
func Load() (Config, error) {
	primary, err := loadPrimary()
	if err != nil {
		return Config{}, err
	}
	replica, err := loadReplica(primary)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:     getenv("PORT", "8080"),
		GoEnv:    os.Getenv("GO_ENV"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		Primary: primary,
		Replica: replica,

		FeedURL:    getenv("FEED_URL", "https://fakestoreapi.com/products"),
		ImportCron: os.Getenv("IMPORT_CRON"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
	}

	if cfg.DBTimeout, err = durationOr("DB_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxOpenConns, err = atoiOr("DB_MAX_OPEN_CONNS", 10); err != nil {
		return Config{}, err
	}
	if cfg.DBReplicaFallback, err = boolOr("DB_REPLICA_FALLBACK", false); err != nil {
		return Config{}, err
	}
	if cfg.FeedTimeout, err = durationOr("FEED_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ImportBatchSize, err = atoiOr("IMPORT_BATCH_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.ImportDedupCaseInsensitive, err = boolOr("IMPORT_DEDUP_CASE_INSENSITIVE", false); err != nil {
		return Config{}, err
	}
	if cfg.ImportTimeout, err = durationOr("IMPORT_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = durationOr("CACHE_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.ImportBatchSize <= 0 {
		return Config{}, fmt.Errorf("IMPORT_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

func loadPrimary() (DBConfig, error) {
	c := DBConfig{
		DSN:      os.Getenv("DATABASE_URL"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     os.Getenv("POSTGRES_HOST"),
		SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
	}
	if c.DSN != "" {
		return c, nil
	}

	port, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return DBConfig{}, err
	}
	c.Port = port

	if c.User == "" {
		return DBConfig{}, fmt.Errorf("POSTGRES_USER is required")
	}
	if c.Password == "" {
		return DBConfig{}, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if c.Name == "" {
		return DBConfig{}, fmt.Errorf("POSTGRES_DB is required")
	}
	if c.Host == "" {
		return DBConfig{}, fmt.Errorf("POSTGRES_HOST is required")
	}
	return c, nil
}

// REPLICA_* が無ければprimaryの値を使う
func loadReplica(primary DBConfig) (DBConfig, error) {
	if dsn := os.Getenv("REPLICA_DATABASE_URL"); dsn != "" {
		return DBConfig{DSN: dsn}, nil
	}

	c := DBConfig{
		User:     getenv("REPLICA_USER", primary.User),
		Password: getenv("REPLICA_PASSWORD", primary.Password),
		Name:     getenv("REPLICA_DB", primary.Name),
		Host:     getenv("REPLICA_HOST", primary.Host),
		Port:     primary.Port,
		SSLMode:  getenv("REPLICA_SSLMODE", primary.SSLMode),
	}
	if os.Getenv("REPLICA_PORT") != "" {
		port, err := mustAtoi("REPLICA_PORT")
		if err != nil {
			return DBConfig{}, err
		}
		c.Port = port
	}

	// primaryがDSN指定で、replica側の指定が何も無い場合
	if primary.DSN != "" && c.Host == "" {
		c.DSN = primary.DSN
	}
	return c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func atoiOr(key string, def int) (int, error) {
	if os.Getenv(key) == "" {
		return def, nil
	}
	return mustAtoi(key)
}

func boolOr(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be bool: %w", key, err)
	}
	return b, nil
}

// "5s" 形式か秒数
func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}
