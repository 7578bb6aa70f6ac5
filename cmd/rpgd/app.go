package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/rpg-chat/internal/ai"
	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/config"
	"github.com/suPer8Hu/rpg-chat/internal/convo"
	"github.com/suPer8Hu/rpg-chat/internal/db"
	"github.com/suPer8Hu/rpg-chat/internal/docstore"
	"github.com/suPer8Hu/rpg-chat/internal/facts"
	"github.com/suPer8Hu/rpg-chat/internal/llm"
	"github.com/suPer8Hu/rpg-chat/internal/logging"
	"github.com/suPer8Hu/rpg-chat/internal/reviewer"
	"github.com/suPer8Hu/rpg-chat/internal/store/redisstore"
	"github.com/suPer8Hu/rpg-chat/internal/transcript"
	"github.com/suPer8Hu/rpg-chat/internal/usage"
)

// app holds what both serve and worker need.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	gdb      *gorm.DB
	svc      *chat.Service
	docs     *docstore.Store
	tr       *transcript.Writer
	selector *reviewer.Selector
	orch     *convo.Orchestrator
	reg      *ai.Registry
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Migrate(gdb, append(chat.Models(), &facts.Record{})...); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	a := &app{cfg: cfg, log: log, gdb: gdb}

	var cache reviewer.Cache = reviewer.NewMemoryCache(reviewer.CacheTTL)
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, reviewer.CacheTTL)
		if err := rds.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-memory reviewer cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rds.Close()
		} else {
			cache = rds
			a.closers = append(a.closers, rds.Close)
		}
	}

	reg := ai.NewRegistry()
	ai.RegisterDefaults(reg, ai.Endpoints{
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
	})

	a.reg = reg

	fs := facts.NewStore(gdb)
	a.docs = docstore.New(cfg.ProfilesDir, cfg.DocsDir)
	a.tr = transcript.New(cfg.TranscriptsDir)
	a.svc = chat.NewService(chat.NewRepo(gdb), fs, a.docs, chat.PlayerDefaults{
		Name:          cfg.User.Name,
		DefaultPlayer: cfg.User.DefaultPlayer,
	}, log)
	a.selector = reviewer.NewSelector(reg, a.docs, log)
	a.orch = convo.New(convo.Deps{
		Chat:       a.svc,
		Facts:      fs,
		Docs:       a.docs,
		Transcript: a.tr,
		Usage:      usage.New(cfg.UsageDir),
		Generator:  llm.NewRouter(reg),
		Reviewer:   a.selector,
		Cache:      cache,
		Registry:   reg,
		Log:        log,
	}, convo.Options{
		TurnTimeout:     cfg.TurnTimeout,
		DefaultProvider: cfg.DefaultProvider,
		ReviewerModel:   cfg.ReviewerModel,
		PlayerName:      cfg.User.Name,
		PlayerAliases:   cfg.User.Nicknames,
	})

	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
