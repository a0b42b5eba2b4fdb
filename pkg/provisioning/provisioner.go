package provisioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/cache"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/observability"
)

// ControlPlane is the subset of the control-plane client the provisioner
// depends on.
type ControlPlane interface {
	FindOrCreateResource(ctx context.Context, name string) (*models.RemoteProject, error)
	GetConnectionURI(ctx context.Context, resourceID string) (string, error)
}

// Provisioner resolves tenant keys to provisioned resources through a
// read-through cache. Entries are immutable once resolved and live for the
// process lifetime; an optional shared cache tier lets multiple processes
// skip the control plane for tenants another process already resolved.
type Provisioner struct {
	client ControlPlane
	shared cache.Cache
	ttl    time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	resources map[string]*models.ProvisionedResource

	logger  observability.Logger
	metrics observability.MetricsClient
}

// ProvisionerOption configures a Provisioner
type ProvisionerOption func(*Provisioner)

// WithSharedCache adds a shared cache tier consulted before the control
// plane. Shared-cache failures degrade to remote calls, never to errors.
func WithSharedCache(c cache.Cache, ttl time.Duration) ProvisionerOption {
	return func(p *Provisioner) {
		p.shared = c
		p.ttl = ttl
	}
}

// WithLogger sets the provisioner's logger
func WithLogger(logger observability.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		p.logger = logger.WithPrefix("provisioning")
	}
}

// WithMetrics sets the provisioner's metrics client
func WithMetrics(metrics observability.MetricsClient) ProvisionerOption {
	return func(p *Provisioner) {
		p.metrics = metrics
	}
}

// NewProvisioner creates a provisioner over the given control-plane client
func NewProvisioner(client ControlPlane, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		client:    client,
		resources: make(map[string]*models.ProvisionedResource),
		logger:    observability.NewNoopLogger(),
		metrics:   observability.NewNoopMetricsClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ResourceFor resolves a tenant to its provisioned resource, creating the
// remote resource on first use. Concurrent calls for the same tenant are
// coalesced into a single remote resolution.
func (p *Provisioner) ResourceFor(ctx context.Context, key models.TenantKey) (*models.ProvisionedResource, error) {
	return p.ResourceByName(ctx, ResourceNameFor(key))
}

// ConnectionURIFor resolves a tenant to its database connection string.
func (p *Provisioner) ConnectionURIFor(ctx context.Context, key models.TenantKey) (string, error) {
	resource, err := p.ResourceFor(ctx, key)
	if err != nil {
		return "", err
	}
	return resource.ConnectionURI, nil
}

// ResourceByName resolves an already-derived resource name.
func (p *Provisioner) ResourceByName(ctx context.Context, name string) (*models.ProvisionedResource, error) {
	p.mu.RLock()
	resource, ok := p.resources[name]
	p.mu.RUnlock()
	if ok {
		p.metrics.IncrementCounter("provisioning.cache.hit", 1)
		return resource, nil
	}

	p.metrics.IncrementCounter("provisioning.cache.miss", 1)

	v, err, _ := p.group.Do(name, func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have populated
		// the map between our miss and the flight starting.
		p.mu.RLock()
		existing, ok := p.resources[name]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}

		resolved, err := p.resolve(ctx, name)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		// First writer wins; a concurrent flight for the same name cannot
		// exist, but keep the check so entries are never overwritten.
		if current, ok := p.resources[name]; ok {
			resolved = current
		} else {
			p.resources[name] = resolved
		}
		p.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ProvisionedResource), nil
}

// resolve performs the remote resolution: shared cache, then control plane.
func (p *Provisioner) resolve(ctx context.Context, name string) (*models.ProvisionedResource, error) {
	if p.shared != nil {
		var cached models.ProvisionedResource
		err := p.shared.Get(ctx, name, &cached)
		if err == nil && cached.ConnectionURI != "" {
			return &cached, nil
		}
		if err != nil && !errors.Is(err, cache.ErrNotFound) {
			p.logger.Warn("shared cache read failed, falling back to control plane", map[string]interface{}{
				"resource_name": name,
				"error":         err.Error(),
			})
		}
	}

	remote, err := p.client.FindOrCreateResource(ctx, name)
	if err != nil {
		return nil, err
	}

	uri, err := p.client.GetConnectionURI(ctx, remote.ID)
	if err != nil {
		return nil, err
	}

	resource := &models.ProvisionedResource{
		ProjectID:     remote.ID,
		ResourceName:  name,
		ConnectionURI: uri,
	}

	p.logger.Info("provisioned tenant resource", map[string]interface{}{
		"resource_name": name,
		"project_id":    remote.ID,
	})

	if p.shared != nil {
		if err := p.shared.Set(ctx, name, resource, p.ttl); err != nil {
			p.logger.Warn("shared cache write failed", map[string]interface{}{
				"resource_name": name,
				"error":         err.Error(),
			})
		}
	}

	return resource, nil
}
