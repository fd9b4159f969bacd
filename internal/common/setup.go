package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"citizen-economy-go/internal/abuse"
	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/justice"
	"citizen-economy-go/internal/ledger"
	"citizen-economy-go/internal/lock"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/pricer"
	"citizen-economy-go/internal/quest"
	"citizen-economy-go/internal/scorer"
	"citizen-economy-go/internal/treasury"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Clock     clock.Clock
	Locker    lock.KeyLocker
	Ledger    *ledger.Service
	Abuse     *abuse.Service
	Justice   *justice.Service
	Treasury  *treasury.Service
	Pricer    *pricer.Service
	Quests    *quest.Service

	redisClient *redis.Client
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	services, err := BuildServices(ctx, dbService, clock.System{}, cfg)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	return services, nil
}

// BuildServices wires every component over an open database.
func BuildServices(ctx context.Context, dbService *database.Service, clk clock.Clock, cfg *models.Config) (*Services, error) {
	params := &models.EconomyParams{}
	if cfg.Economy.EconomyFile != "" {
		zap.L().Info("Loading economy parameters", zap.String("file", cfg.Economy.EconomyFile))
		loaded, err := LoadEconomyParams(cfg.Economy.EconomyFile)
		if err != nil {
			return nil, err
		}
		params = loaded
	}

	services := &Services{DbService: dbService, Clock: clk}

	switch cfg.Lock.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Lock.RedisAddr, err)
		}
		services.redisClient = client
		services.Locker = lock.NewRedis(client, cfg.Lock.TTL)
		zap.L().Info("Using redis lock backend", zap.String("addr", cfg.Lock.RedisAddr))
	default:
		services.Locker = lock.NewLocal()
	}

	services.Ledger = ledger.NewService(dbService, services.Locker, clk, cfg.Economy.TreasuryUserId)

	table := treasury.DefaultDampingTable()
	if params.Damping != nil {
		table = treasury.DampingTable{Rows: params.Damping.Rows, Overflow: params.Damping.Overflow}
	}
	services.Treasury = treasury.NewService(dbService, services.Locker, clk,
		decimal.NewFromFloat(cfg.Economy.TreasuryDailyLimit), table)

	policy := justice.DefaultPolicy()
	if params.JusticePolicy != nil {
		policy = params.JusticePolicy
	}
	services.Justice = justice.NewService(dbService, services.Locker, clk, policy)

	pricerParams := pricer.Params{
		BasePrice:      cfg.Economy.BasePrice,
		MinPrice:       cfg.Economy.MinPrice,
		MaxPrice:       cfg.Economy.MaxPrice,
		TargetCoverage: cfg.Economy.TargetCoverage,
		KCoverage:      cfg.Economy.KCoverage,
		KFlow:          cfg.Economy.KFlow,
		Alpha:          cfg.Economy.SmoothingAlpha,
		FlowAnchor:     cfg.Economy.FlowAnchor,
		MaxStep:        cfg.Economy.MaxStep,
	}
	if err := pricerParams.Validate(); err != nil {
		services.closeRedis()
		return nil, fmt.Errorf("invalid pricer parameters: %w", err)
	}
	services.Pricer = pricer.NewService(dbService, clk, pricerParams, services.Ledger)

	questRepo := quest.NewRepository(dbService)
	services.Abuse = abuse.NewService(dbService, services.Locker, clk,
		abuse.DefaultWeights().Merge(params.AbuseWeights), questRepo)

	questScorer, err := newScorer(cfg.Scorer)
	if err != nil {
		services.closeRedis()
		return nil, err
	}
	services.Quests = quest.NewService(quest.Dependencies{
		Db:       dbService,
		Locker:   services.Locker,
		Clock:    clk,
		Repo:     questRepo,
		Ledger:   services.Ledger,
		Abuse:    services.Abuse,
		Treasury: services.Treasury,
		Scorer:   questScorer,
		Macro:    params.Macro,
		Topic:    cfg.Outbox.Topic,
	})

	return services, nil
}

func newScorer(cfg models.ScorerConfig) (scorer.Scorer, error) {
	if cfg.URL == "" {
		if cfg.Strict {
			return nil, fmt.Errorf("SCORER_STRICT requires SCORER_URL")
		}
		zap.L().Info("No scorer URL configured, using heuristic scorer")
		return scorer.Heuristic{}, nil
	}

	remote, err := scorer.NewHTTPScorer(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Strict {
		return scorer.NewFallback(remote, nil, cfg.Timeout), nil
	}
	return scorer.NewFallback(remote, scorer.Heuristic{}, cfg.Timeout), nil
}

// InitializeLedgerOnly opens the database and a ledger for read-only
// reports. It skips the economy file, Redis and the scorer; the in-process
// locker is enough because reports never write.
func InitializeLedgerOnly(ctx context.Context, cfg *models.Config) (*database.Service, *ledger.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return dbService, ledger.NewService(dbService, lock.NewLocal(), clock.System{}, cfg.Economy.TreasuryUserId), nil
}

func (cs *Services) Close() {
	cs.closeRedis()
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func (cs *Services) closeRedis() {
	if cs.redisClient != nil {
		if err := cs.redisClient.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
		cs.redisClient = nil
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
