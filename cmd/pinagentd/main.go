package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pinai-network/agent-sdk-go/dispatch"
	"github.com/pinai-network/agent-sdk-go/internal/config"
	"github.com/pinai-network/agent-sdk-go/onchain"
	"github.com/pinai-network/agent-sdk-go/pinagent"
	"github.com/pinai-network/agent-sdk-go/pkg/logger"
	"github.com/pinai-network/agent-sdk-go/state"
)

// main is the entry point of the pinagentd echo agent daemon.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("pinagentd failed: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("PINAGENT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "pinagent.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		File: logger.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	clientOpts := []pinagent.Option{
		pinagent.WithTimeout(time.Duration(cfg.API.TimeoutSeconds) * time.Second),
	}
	if cfg.API.BaseURL != "" {
		clientOpts = append(clientOpts, pinagent.WithBaseURL(cfg.API.BaseURL))
	}
	client, err := pinagent.NewClient(cfg.API.Key, clientOpts...)
	if err != nil {
		return err
	}

	agentID, err := resolveAgent(ctx, client, cfg)
	if err != nil {
		return err
	}

	stateStore, err := buildStateStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stateStore.Close()

	echo := func(ctx context.Context, msg pinagent.Message) {
		if msg.Type == pinagent.MessageTypeAgent {
			return
		}
		if _, err := client.SendMessage(ctx, agentID, pinagent.SendMessageRequest{
			SessionID: msg.SessionID,
			Content:   "echo: " + msg.Content,
		}); err != nil {
			logger.L().Error("sending reply failed",
				slog.String("session_id", msg.SessionID),
				slog.Any("error", err))
		}
	}

	pollerOpts := []pinagent.PollerOption{
		pinagent.WithInterval(time.Duration(cfg.Poller.IntervalMS) * time.Millisecond),
		pinagent.WithStateStore(stateStore),
	}

	var queue dispatch.Queue
	switch cfg.Dispatch.Driver {
	case "inline":
	case "memory":
		queue = dispatch.NewMemoryQueue(cfg.Dispatch.Buffer)
	case "rabbitmq":
		queue, err = dispatch.NewRabbitMQQueue(dispatch.RabbitMQConfig{
			URL:      cfg.Dispatch.RabbitMQ.URL,
			Queue:    cfg.Dispatch.RabbitMQ.Queue,
			Prefetch: cfg.Dispatch.RabbitMQ.Prefetch,
			Durable:  cfg.Dispatch.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
	}

	var poller *pinagent.Poller
	if queue != nil {
		defer queue.Close()
		pollerOpts = append(pollerOpts, pinagent.WithDispatchQueue(queue))
		poller = pinagent.NewPoller(client, agentID, nil, pollerOpts...)
		go func() {
			if err := pinagent.ConsumeMessages(ctx, queue, cfg.Dispatch.Workers, echo); err != nil && ctx.Err() == nil {
				logger.L().Error("message consumer exited", slog.Any("error", err))
			}
		}()
	} else {
		poller = pinagent.NewPoller(client, agentID, echo, pollerOpts...)
	}

	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()

	logger.L().Info("pinagentd running", slog.Int64("agent_id", agentID))
	<-ctx.Done()
	return nil
}

// resolveAgent reuses the configured agent id or registers a fresh agent,
// mirroring the registration on chain when that path is enabled.
func resolveAgent(ctx context.Context, client *pinagent.Client, cfg *config.Config) (int64, error) {
	if cfg.Agent.ID != 0 {
		return cfg.Agent.ID, nil
	}
	agent, err := client.RegisterAgent(ctx, pinagent.RegisterAgentRequest{
		Name:        cfg.Agent.Name,
		Ticker:      cfg.Agent.Ticker,
		Description: cfg.Agent.Description,
		Cover:       cfg.Agent.Cover,
	})
	if err != nil {
		return 0, err
	}

	if cfg.Onchain.Enabled {
		registry, err := onchain.NewRegistry(ctx, onchain.Config{
			RPCURL:          cfg.Onchain.RPCURL,
			PrivateKey:      cfg.Onchain.PrivateKey,
			ContractAddress: cfg.Onchain.ContractAddress,
		})
		if err != nil {
			logger.L().Warn("onchain registry unavailable, continuing with API-only registration",
				slog.Any("error", err))
			return agent.ID, nil
		}
		defer registry.Close()
		if err := registry.Register(ctx, agent.ID, "", cfg.Agent.Name, cfg.Agent.Ticker, cfg.Agent.Description); err != nil {
			logger.L().Warn("onchain registration failed, continuing with API-only registration",
				slog.Int64("agent_id", agent.ID),
				slog.Any("error", err))
		}
	}
	return agent.ID, nil
}

func buildStateStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.State.Driver {
	case "redis":
		return state.NewRedisStore(state.RedisConfig{
			Address:   cfg.State.Redis.Address,
			Password:  cfg.State.Redis.Password,
			DB:        cfg.State.Redis.DB,
			KeyPrefix: cfg.State.Redis.KeyPrefix,
		})
	case "mysql":
		return state.NewMySQLStore(ctx, state.MySQLConfig{
			DSN:          cfg.State.MySQL.DSN,
			MaxOpenConns: cfg.State.MySQL.MaxOpenConns,
			MaxIdleConns: cfg.State.MySQL.MaxIdleConns,
		})
	default:
		return state.NewMemoryStore(), nil
	}
}
