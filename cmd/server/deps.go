package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/config"
	"github.com/sakif/ricebook/internal/monitoring"
	"github.com/sakif/ricebook/internal/repository"
	"github.com/sakif/ricebook/internal/repository/mongodb"
	"github.com/sakif/ricebook/internal/repository/sqlite"
	"github.com/sakif/ricebook/internal/server"
	"github.com/sakif/ricebook/internal/session"
	"github.com/sakif/ricebook/internal/upload"
)

// connectTimeout bounds the initial dial to MongoDB and Redis.
const connectTimeout = 10 * time.Second

// newLogger creates the structured logger. slog.NewTextHandler outputs
// human-readable key=value lines on stdout.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// buildDeps creates everything the server runs on. If a later step fails the
// store and session store opened by earlier ones are closed again.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (server.Deps, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return server.Deps{}, err
	}

	deps := server.Deps{Store: store, Metrics: monitoring.New()}
	fail := func(err error) (server.Deps, error) {
		closeDeps(deps, logger)
		return server.Deps{}, err
	}

	if deps.Sessions, err = newSessions(ctx, cfg, logger); err != nil {
		return fail(err)
	}
	if deps.Hasher, err = newHasher(cfg); err != nil {
		return fail(err)
	}
	if deps.Uploader, err = newUploader(ctx, cfg, logger); err != nil {
		return fail(err)
	}

	if cfg.GoogleEnabled() {
		if deps.States, err = auth.NewStateTokens(cfg.StateSecret); err != nil {
			return fail(err)
		}
		deps.Provider = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
		logger.Info("google sign-in enabled", slog.String("callback", cfg.GoogleCallbackURL))
	} else {
		logger.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, google sign-in is disabled")
	}

	return deps, nil
}

// closeDeps releases whatever connections deps holds. Nil members are skipped.
func closeDeps(deps server.Deps, logger *slog.Logger) {
	if deps.Sessions != nil {
		if err := deps.Sessions.Close(); err != nil {
			logger.Error("closing session store", slog.String("error", err.Error()))
		}
	}
	if deps.Store != nil {
		if err := deps.Store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
		return store, nil

	default:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info("using mongodb store", slog.String("database", cfg.MongoDatabase))
		return store, nil
	}
}

// newSessions uses Redis when REDIS_ADDR is set so sessions survive restarts
// and are shared between instances; otherwise they live in process memory.
func newSessions(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, error) {
	if !cfg.RedisEnabled() {
		logger.Info("using in-memory sessions")
		return session.NewMemory(cfg.SessionTTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("using redis sessions", slog.String("addr", cfg.RedisAddr))
	return session.NewRedis(client, cfg.SessionTTL), nil
}

func newHasher(cfg *config.Config) (auth.Hasher, error) {
	switch cfg.PasswordHasher {
	case config.HasherBcrypt:
		return auth.NewBcryptHasher(cfg.BcryptCost), nil
	case config.HasherArgon2:
		return auth.NewArgon2Hasher(auth.Argon2Params{
			Time:      cfg.Argon2Time,
			MemoryKiB: cfg.Argon2MemoryKiB,
			Threads:   cfg.Argon2Threads,
		}), nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", cfg.PasswordHasher)
	}
}

func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (upload.Uploader, error) {
	if cfg.S3Enabled() {
		uploader, err := upload.NewS3Uploader(ctx, upload.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("storing avatars in s3", slog.String("bucket", cfg.S3Bucket))
		return uploader, nil
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	uploader, err := upload.NewDiskUploader(cfg.UploadDir, baseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("storing avatars on disk", slog.String("dir", cfg.UploadDir))
	return uploader, nil
}

func cookieConfig(cfg *config.Config) auth.CookieConfig {
	return auth.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
		MaxAge: cfg.SessionTTL,
	}
}
