package main

import (
	"context"
	"fmt"

	"esim-service/internal/events"
	"esim-service/internal/gateway"
	"esim-service/internal/lifecycle"
	"esim-service/internal/model"
	"esim-service/internal/provider"
	"esim-service/internal/qr"
	"esim-service/internal/store"
	"esim-service/pkg/cache"
	"esim-service/pkg/config"
	"esim-service/pkg/database"
	"esim-service/pkg/mongodb"
	"esim-service/pkg/oauth"

	"go.uber.org/zap"
)

type dependencies struct {
	engine lifecycle.Dependencies
}

// wire connects every backing service named by the configuration. The
// returned cleanup closes them in reverse order.
func wire(ctx context.Context, cfg *config.Config, log *zap.Logger) (*dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)
	log.Info("Profile store ready", zap.String("driver", cfg.Store.Driver))

	var qrCache qr.Cache
	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		qrCache = qr.NewRedisCache(client)
		log.Info("QR cache backed by redis")
	} else {
		qrCache = qr.NewMemoryCache()
		log.Info("QR cache kept in memory")
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fail(err)
		}
		publisher = kp
		log.Info("Operation log events published to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	} else {
		publisher = events.NewLoggingPublisher(log)
	}
	closers = append(closers, func() {
		if err := publisher.Close(); err != nil {
			log.Warn("Failed to close event publisher", zap.Error(err))
		}
	})

	var gw gateway.Gateway
	if cfg.Gateway.ClientID != "" {
		tokenURL := cfg.Gateway.TokenURL
		if tokenURL == "" {
			tokenURL = oauth.MicrosoftTokenURL(cfg.Gateway.TenantID)
		}
		tokens := oauth.NewClient(tokenURL, cfg.Gateway.ClientID, cfg.Gateway.ClientSecret, oauth.GraphScope, log)
		gw = gateway.NewGraphClient(cfg.Gateway.BaseURL, tokens, cfg.Gateway.Timeout)
		log.Info("Deployment gateway uses Microsoft Graph", zap.String("base_url", cfg.Gateway.BaseURL))
	} else {
		if cfg.Server.Env == "production" {
			return fail(fmt.Errorf("AZURE_CLIENT_ID is required in production"))
		}
		gw = gateway.NewSimulator()
		log.Warn("No Graph credentials configured, using the deployment simulator")
	}

	return &dependencies{
		engine: lifecycle.Dependencies{
			Config: lifecycle.Config{
				GatewayTimeout:  cfg.Gateway.Timeout,
				ProviderTimeout: cfg.Providers.Timeout,
				LeaseDuration:   cfg.Lifecycle.LeaseDuration,
			},
			Store:     st,
			Gateway:   gw,
			Providers: provider.NewAdapter(providerCredentials(cfg), cfg.Providers.Timeout),
			QR:        qr.NewManager(qrCache, cfg.QR.TTL),
			Events:    publisher,
		},
	}, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize database: %w", err)
		}
		st := store.NewPostgresStore(db)
		return st, func() { _ = st.Close(context.Background()) }, nil
	case config.StoreMemory:
		st := store.NewMemoryStore()
		return st, func() {}, nil
	default:
		client, err := mongodb.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		st, err := store.NewMongoStore(ctx, client, cfg.Mongo.Database)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return st, func() { _ = st.Close(context.Background()) }, nil
	}
}

func providerCredentials(cfg *config.Config) map[model.Provider]provider.Credentials {
	creds := make(map[model.Provider]provider.Credentials, len(cfg.Providers.Entries))
	for name, entry := range cfg.Providers.Entries {
		p, ok := model.ParseProvider(name)
		if !ok {
			continue
		}
		endpoint := entry.Endpoint
		if endpoint == "" {
			if spec, found := provider.Lookup(p); found {
				endpoint = spec.DefaultEndpoint
			}
		}
		creds[p] = provider.Credentials{
			Endpoint: endpoint,
			Token:    entry.Token,
			APIKey:   entry.APIKey,
			Username: entry.Username,
			Password: entry.Password,
		}
	}
	return creds
}
