// Package services assembles the provisioning and execution-logging
// components into ready-to-use services.
package services

import (
	"context"
	"fmt"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/cache"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/config"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/database"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/observability"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/provisioning"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/results"
)

// ExecutionLoggingService bundles a provisioner and an execution logger
// behind one constructor. Callers in the tool-execution subsystem hold a
// single instance for the process lifetime.
type ExecutionLoggingService struct {
	Provisioner *provisioning.Provisioner
	Logger      *database.ExecutionLogger

	connections *database.ConnectionManager
	shared      cache.Cache
}

// NewExecutionLoggingService wires the service from configuration.
// Configuration problems (missing control-plane credentials) surface here,
// before any remote call.
func NewExecutionLoggingService(cfg *config.Config, logger observability.Logger, metrics observability.MetricsClient) (*ExecutionLoggingService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewStandardLogger("agent-base")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	client, err := provisioning.NewClient(provisioning.ClientConfig{
		BaseURL:           cfg.ControlPlane.BaseURL,
		APIKey:            cfg.ControlPlane.APIKey,
		Timeout:           cfg.ControlPlane.Timeout,
		DefaultDatabase:   cfg.ControlPlane.DefaultDatabase,
		DefaultRole:       cfg.ControlPlane.DefaultRole,
		RequestsPerSecond: cfg.ControlPlane.RequestsPerSecond,
		RequestBurst:      cfg.ControlPlane.RequestBurst,
		ReadinessTimeout:  cfg.ControlPlane.ReadinessTimeout,
		ReadinessInterval: cfg.ControlPlane.ReadinessInterval,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, err
	}

	options := []provisioning.ProvisionerOption{
		provisioning.WithLogger(logger),
		provisioning.WithMetrics(metrics),
	}

	var shared cache.Cache
	if cfg.Cache.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting provisioning cache: %w", err)
		}
		shared = redisCache
		options = append(options, provisioning.WithSharedCache(redisCache, cfg.Cache.TTL))
	}

	provisioner := provisioning.NewProvisioner(client, options...)

	connections := database.NewConnectionManager(database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)

	tables, err := database.NewTableProvisioner(logger, metrics)
	if err != nil {
		return nil, err
	}

	execLogger, err := database.NewExecutionLogger(database.ExecutionLoggerConfig{
		Resolver:    provisioner,
		SystemDSN:   cfg.Database.SystemDSN,
		Connections: connections,
		Tables:      tables,
		Normalizer:  results.NewNormalizer(logger),
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	return &ExecutionLoggingService{
		Provisioner: provisioner,
		Logger:      execLogger,
		connections: connections,
		shared:      shared,
	}, nil
}

// LogExecution records one tool invocation. Errors are reported to the
// caller but the invocation itself is already complete; callers should
// log-and-continue rather than propagate.
func (s *ExecutionLoggingService) LogExecution(ctx context.Context, tenant *models.TenantKey, def models.ToolDefinition, params map[string]interface{}, result interface{}) error {
	return s.Logger.Log(ctx, tenant, def, params, result)
}

// Close releases database pools and the shared cache connection
func (s *ExecutionLoggingService) Close() error {
	err := s.connections.Close()
	if s.shared != nil {
		if cerr := s.shared.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
