package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sowerflow/sowerflow/internal/account"
	"github.com/sowerflow/sowerflow/internal/ai"
	"github.com/sowerflow/sowerflow/internal/config"
	"github.com/sowerflow/sowerflow/internal/conversation"
	"github.com/sowerflow/sowerflow/internal/dispatch"
	"github.com/sowerflow/sowerflow/internal/instagram"
	"github.com/sowerflow/sowerflow/internal/logger"
	"github.com/sowerflow/sowerflow/internal/media"
	"github.com/sowerflow/sowerflow/internal/metrics"
	"github.com/sowerflow/sowerflow/internal/webhook"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return cfg, nil
}

type backends struct {
	conversations conversation.Store
	profiles      account.Repo
	media         media.Repo
	closers       []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the stores. Profiles and the media cache live in
// Postgres whenever DATABASE_URL is set; the driver only picks where
// conversations go.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{
		conversations: conversation.NewMemoryStore(),
		profiles:      account.NewMemoryRepo(),
		media:         media.NewMemoryRepo(),
	}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		b.closers = append(b.closers, func() { db.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			b.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		for _, ensure := range []func(context.Context, *sql.DB) error{
			account.EnsureSchema,
			media.EnsureSchema,
			conversation.EnsureSchema,
		} {
			if err := ensure(ctx, db); err != nil {
				b.Close()
				return nil, fmt.Errorf("db schema: %w", err)
			}
		}
		b.profiles = account.NewRepo(db)
		b.media = media.NewRepo(db)
		if cfg.Store.Driver == config.DriverPostgres {
			b.conversations = conversation.NewRepo(db)
		}
	}

	if cfg.Store.Driver == config.DriverMongo {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		b.closers = append(b.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		})
		store := conversation.NewMongoStore(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		b.conversations = store
	}

	if cfg.Store.Driver == config.DriverMemory {
		log.Warn().Msg("conversations kept in memory; they are lost on restart")
	}
	return b, nil
}

type services struct {
	webhook  webhook.Service
	dispatch dispatch.Service
}

func wire(cfg *config.Config, b *backends, m *metrics.Metrics) services {
	graph := instagram.NewClient(instagram.Config{
		BaseURL:           cfg.Instagram.APIBase,
		Version:           cfg.Instagram.APIVersion,
		RequestsPerSecond: cfg.Instagram.RequestsPerSecond,
	}, m)
	accounts := account.NewResolver(b.profiles, graph)
	captions := media.NewResolver(b.media, graph)
	normalizer := instagram.NewNormalizer(cfg.Instagram.AppID, captions)
	generator := ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)

	return services{
		webhook:  webhook.NewService(b.conversations, accounts, normalizer, graph, m),
		dispatch: dispatch.NewService(b.conversations, accounts, generator, graph, m),
	}
}
