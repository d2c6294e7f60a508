package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/rquest-bridge/internal/agent"
	"github.com/OFFIS-RIT/rquest-bridge/internal/bridge"
	"github.com/OFFIS-RIT/rquest-bridge/internal/config"
	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"
	"github.com/OFFIS-RIT/rquest-bridge/internal/metrics"
	"github.com/OFFIS-RIT/rquest-bridge/internal/queue"
	"github.com/OFFIS-RIT/rquest-bridge/internal/server"
	mid "github.com/OFFIS-RIT/rquest-bridge/internal/server/middleware"
	"github.com/OFFIS-RIT/rquest-bridge/internal/source"
	"github.com/OFFIS-RIT/rquest-bridge/internal/storage"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runCmd() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll for tasks and dispatch their crates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBridge(ctx, cfg, seedPath)
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "Workflow crate (zip or ro-crate-metadata.json) imported into every crate")
	return cmd
}

func runBridge(ctx context.Context, cfg *config.Config, seedPath string) error {
	seed, err := loadSeed(seedPath)
	if err != nil {
		return err
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3Params{
		Endpoint:  cfg.S3.Endpoint(),
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if err != nil {
		return err
	}
	store := storage.NewArchiveStore(s3Client, cfg.S3.Bucket)
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}

	agentClient, err := agent.NewClient(agent.Params{
		Host:           cfg.Hutch.Host,
		EndpointBase:   cfg.Hutch.EndpointBase,
		SubmitEndpoint: cfg.Hutch.SubmitEndpoint,
	})
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg.Queue)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	m := metrics.New()

	dispatcher := bridge.NewDispatcher(bridge.DispatcherParams{
		Store:     store,
		Notifier:  agentClient,
		Publisher: publisher,
		Source: agent.CrateSource{
			Host:      cfg.S3.Host,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Secure:    cfg.S3.Secure,
		},
		Retries: cfg.Dispatch.Retries,
		Backoff: cfg.Dispatch.Backoff,
		Metrics: m,
	})

	poller := bridge.NewPoller(bridge.PollerParams{
		Source: source.NewClient(source.Params{
			BaseURL:          cfg.RQuest.URL,
			FetchEndpoint:    cfg.RQuest.FetchEndpoint,
			CollectionID:     cfg.RQuest.CollectionID,
			Username:         cfg.RQuest.Username,
			Password:         cfg.RQuest.Password,
			PollDistribution: cfg.RQuest.PollDistribution,
		}),
		Builder:    crate.NewAssembler(cfg.Crate),
		Dispatcher: dispatcher,
		Interval:   cfg.RQuest.PollInterval,
		Timeout:    cfg.Dispatch.Timeout,
		DB:         cfg.Hutch.DB,
		Seed:       seed,
		Metrics:    m,
	})

	e := server.New(&mid.App{
		Poller:   poller,
		Registry: m.Registry(),
		Version:  version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx, e, cfg.StatusPort)
	})

	err = g.Wait()
	logger.Info("Shutdown complete")
	return err
}

func newPublisher(cfg config.QueueConfig) (queue.Publisher, error) {
	switch cfg.Driver {
	case config.QueueRabbitMQ:
		p, err := queue.Init(queue.RabbitParams{
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
		}, cfg.Name)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.QueueNATS:
		p, err := queue.NewNATSPublisher(cfg.NATSURL, cfg.Name)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.QueueNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
