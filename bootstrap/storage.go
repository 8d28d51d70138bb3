package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"louyass/config"
	"louyass/core"
	"louyass/media"
	"louyass/storage"

	"go.uber.org/zap"
)

// StorageComponents holds all storage-related components.
type StorageComponents struct {
	SQLite       *storage.SQLite
	Users        *storage.SQLiteUserStorage
	Houses       *storage.SQLiteHouseStorage
	Rooms        *storage.SQLiteRoomStorage
	Appointments *storage.SQLiteAppointmentStorage
	Contracts    *storage.SQLiteContractStorage
	Payments     *storage.SQLitePaymentStorage
	Media        *storage.SQLiteMediaStorage
	Issues       *storage.SQLiteIssueStorage
	Messages     *storage.SQLiteMessageStorage
	Search       *storage.SQLiteSearchStorage
	Blobs        media.Store
}

// InitSQLite opens the database and applies pending migrations.
func InitSQLite(dirs DataDirectories, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(dirs.SQLite, sugar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: SQLite Initialization Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", ClassifySQLiteError(err, dirs.SQLite))
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Info("SQLite initialized successfully")
	return sqlite, nil
}

// InitStorages builds every repository on top of the shared database.
func InitStorages(cfg *config.Config, sqlite *storage.SQLite, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	if sqlite == nil {
		return nil, fmt.Errorf("SQLite is required for storage")
	}

	users := storage.NewSQLiteUserStorage(sqlite, sugar)
	users.SetBcryptCost(cfg.Auth.BcryptCost)

	blobs, err := InitMediaStore(cfg, sugar)
	if err != nil {
		return nil, err
	}

	return &StorageComponents{
		SQLite:       sqlite,
		Users:        users,
		Houses:       storage.NewSQLiteHouseStorage(sqlite, sugar),
		Rooms:        storage.NewSQLiteRoomStorage(sqlite, sugar),
		Appointments: storage.NewSQLiteAppointmentStorage(sqlite, sugar),
		Contracts:    storage.NewSQLiteContractStorage(sqlite, sugar),
		Payments:     storage.NewSQLitePaymentStorage(sqlite, sugar),
		Media:        storage.NewSQLiteMediaStorage(sqlite, sugar),
		Issues:       storage.NewSQLiteIssueStorage(sqlite, sugar),
		Messages:     storage.NewSQLiteMessageStorage(sqlite, sugar),
		Search:       storage.NewSQLiteSearchStorage(sqlite, sugar),
		Blobs:        blobs,
	}, nil
}

// InitMediaStore selects the blob backend for uploads.
func InitMediaStore(cfg *config.Config, sugar *zap.SugaredLogger) (media.Store, error) {
	switch cfg.Media.Backend {
	case "s3":
		store, err := media.NewS3Store(cfg.S3Settings())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 media store: %w", err)
		}
		sugar.Infow("Media stored in S3", "bucket", cfg.Media.S3.Bucket, "region", cfg.Media.S3.Region)
		return store, nil
	case "", "local":
		store, err := media.NewLocalStore(cfg.Media.Dir, cfg.Media.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local media store: %w", err)
		}
		sugar.Infow("Media stored on disk", "dir", cfg.Media.Dir)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Media.Backend)
	}
}

// InitRedis connects to Redis when enabled. A nil cache means every
// component falls back to in-process state.
func InitRedis(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*core.RedisCache, error) {
	if !cfg.Redis.Enabled {
		sugar.Info("Redis disabled, revoked tokens and rate limits stay in memory")
		return nil, nil
	}

	cache := core.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		_ = cache.Close()
		fmt.Fprintf(os.Stderr, "\n%s\n\n", ClassifyRedisError(err, cfg.Redis.Addr))
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sugar.Infow("Connected to Redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return cache, nil
}
