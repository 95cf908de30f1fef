package cmd

import (
	"context"
	"encoding/json"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hikari-danmu/server/config"
	"github.com/hikari-danmu/server/pkg/configstore"
	"github.com/hikari-danmu/server/pkg/danmaku"
	"github.com/hikari-danmu/server/pkg/logger"
	"github.com/hikari-danmu/server/pkg/metasource"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/scraper"
	"github.com/hikari-danmu/server/pkg/search"
	"github.com/hikari-danmu/server/pkg/storage/sqlite"
	"github.com/hikari-danmu/server/pkg/tasks"
	"github.com/hikari-danmu/server/pkg/titlerecognition"
	"github.com/hikari-danmu/server/pkg/webhook"
	"github.com/hikari-danmu/server/server"
)

// serveCmd boots the core and blocks serving HTTP until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the aggregation core and its HTTP surface",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.New(viper.GetViper())
		if err != nil {
			log.Fatalf("failed to read configuration: %v", err)
		}

		baseLogger := logger.Get()
		zapLogger := baseLogger.Desugar()

		store, err := sqlite.New(cfg.Storage.FilePath, zapLogger)
		if err != nil {
			log.Fatalf("failed to open storage: %v", err)
		}

		ctx := context.Background()
		if err := store.Init(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}

		// No real scraper/metasource provider is implemented yet — spec.md
		// §1 puts concrete providers out of scope, so these registries
		// start empty and are populated as providers are built.
		scrapers := scraper.NewRegistry()
		metaSources := metasource.NewRegistry()

		var limiter ratelimit.Limiter
		if cfg.RateLimit.Disabled {
			limiter = ratelimit.Disabled{}
		} else {
			perProvider := make(map[string]ratelimit.Quota, len(cfg.RateLimit.PerProvider))
			for name, q := range cfg.RateLimit.PerProvider {
				perProvider[name] = ratelimit.Quota{Limit: q.Limit, Period: q.Period}
			}
			limiter = ratelimit.NewSQLiteLimiter(store,
				ratelimit.Quota{Limit: cfg.RateLimit.GlobalLimit, Period: cfg.RateLimit.GlobalPeriod},
				ratelimit.Quota{Limit: cfg.RateLimit.FallbackLimit, Period: cfg.RateLimit.FallbackPeriod},
				perProvider)
		}

		danmakuStore := danmaku.NewStore(cfg.Storage.FilePath+"-danmaku", "${animeId}/${episodeId}.xml", "${title}/${episodeId}.xml")
		titles := titlerecognition.NewManager()

		taskManager := tasks.New(store, zapLogger)
		taskManager.Limiter = limiter
		svc := &tasks.Services{
			Storage:  store,
			Scrapers: scrapers,
			Limiter:  limiter,
			Titles:   titles,
			Danmaku:  danmakuStore,
			Manager:  taskManager,
		}

		taskManager.RegisterRecovery("generic_import", func(raw json.RawMessage) (tasks.Factory, error) {
			var p tasks.ImportParams
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
			return tasks.GenericImportFactory(svc, p), nil
		})

		// No ai.Matcher implementation exists yet; the pipeline's AI-assisted
		// ranking stage is gated on it being non-nil and stays dormant.
		pipeline := search.New(scrapers, metaSources, limiter, nil, nil)
		convert := &webhook.NameConverter{Enabled: false}
		dispatcher := webhook.NewDispatcher(store, pipeline, taskManager, svc, convert, zapLogger)

		taskManager.RegisterRecovery(webhook.TaskType, dispatcher.FactoryFromParams)

		// Start blocks until ctx is cancelled, so it runs in its own
		// goroutine; Recover only needs the store and queues to exist, not
		// the supervisor loop to already be draining them.
		go func() {
			if err := taskManager.Start(ctx); err != nil {
				zapLogger.Error("task manager stopped", zap.Error(err))
			}
		}()
		if err := taskManager.Recover(ctx); err != nil {
			log.Fatalf("failed to recover tasks: %v", err)
		}

		configStore := configstore.New(store)

		srv := server.New(baseLogger, dispatcher, taskManager, store, configStore, cfg.Server.Port)
		if err := srv.Serve(); err != nil {
			log.Fatalf("server exited: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
