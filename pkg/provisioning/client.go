package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/observability"
)

// ClientConfig holds configuration for the control-plane client
type ClientConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	DefaultDatabase string
	DefaultRole     string

	// Outbound rate limit
	RequestsPerSecond float64
	RequestBurst      int

	// Readiness polling after create
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration

	Logger  observability.Logger
	Metrics observability.MetricsClient
}

// Client talks to the database-hosting control-plane API. It performs no
// retries on failure; a circuit breaker guards against hammering a broken
// control plane and a rate limiter keeps within the API's request budget.
type Client struct {
	baseURL         string
	apiKey          string
	defaultDatabase string
	defaultRole     string

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter

	readinessTimeout  time.Duration
	readinessInterval time.Duration

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewClient creates a control-plane client. A missing credential or
// endpoint is a configuration error raised here, before any call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DefaultDatabase == "" {
		cfg.DefaultDatabase = "main"
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "app"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = 20
	}
	if cfg.ReadinessTimeout == 0 {
		cfg.ReadinessTimeout = 2 * time.Minute
	}
	if cfg.ReadinessInterval == 0 {
		cfg.ReadinessInterval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "control-plane",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A create losing the concurrent-create race surfaces as a
		// conflict status; the control plane is healthy, so it must not
		// count toward tripping the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var provErr *ProvisioningError
			return errors.As(err, &provErr) && provErr.StatusCode == http.StatusConflict
		},
	})

	return &Client{
		baseURL:           cfg.BaseURL,
		apiKey:            cfg.APIKey,
		defaultDatabase:   cfg.DefaultDatabase,
		defaultRole:       cfg.DefaultRole,
		httpClient:        &http.Client{Timeout: cfg.Timeout},
		breaker:           breaker,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst),
		readinessTimeout:  cfg.ReadinessTimeout,
		readinessInterval: cfg.ReadinessInterval,
		logger:            cfg.Logger.WithPrefix("provisioning.client"),
		metrics:           cfg.Metrics,
	}, nil
}

// ListResources returns all resources visible to the credential.
func (c *Client) ListResources(ctx context.Context) ([]models.RemoteProject, error) {
	body, err := c.do(ctx, http.MethodGet, "/resources", nil, "list resources")
	if err != nil {
		return nil, err
	}

	var response struct {
		Resources []models.RemoteProject `json:"resources"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &ParseError{Operation: "list resources", Err: err}
	}
	return response.Resources, nil
}

// GetResource fetches a single resource by id.
func (c *Client) GetResource(ctx context.Context, resourceID string) (*models.RemoteProject, error) {
	body, err := c.do(ctx, http.MethodGet, "/resources/"+url.PathEscape(resourceID), nil, "get resource")
	if err != nil {
		return nil, err
	}

	var response struct {
		Resource models.RemoteProject `json:"resource"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &ParseError{Operation: "get resource", Err: err}
	}
	return &response.Resource, nil
}

// CreateResource creates a resource with the given name. A conflict status
// means another caller created it first; that is success, not failure, so
// the existing resource is looked up and returned.
func (c *Client) CreateResource(ctx context.Context, name string) (*models.RemoteProject, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"resource": map[string]string{"name": name},
	})
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPost, "/resources", payload, "create resource")
	if err != nil {
		var provErr *ProvisioningError
		if errors.As(err, &provErr) && provErr.StatusCode == http.StatusConflict {
			c.logger.Info("resource already exists, reusing", map[string]interface{}{
				"resource_name": name,
			})
			return c.findByName(ctx, name)
		}
		return nil, err
	}

	var response struct {
		Resource models.RemoteProject `json:"resource"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &ParseError{Operation: "create resource", Err: err}
	}
	return &response.Resource, nil
}

// FindOrCreateResource resolves a resource name to a remote resource,
// creating it if absent and waiting for a created resource to become
// usable. Concurrent callers racing on the same name all converge on the
// same underlying resource.
func (c *Client) FindOrCreateResource(ctx context.Context, name string) (*models.RemoteProject, error) {
	resource, err := c.findByName(ctx, name)
	if err == nil {
		return resource, nil
	}
	if !errors.Is(err, errNameNotFound) {
		return nil, err
	}

	created, err := c.CreateResource(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := c.awaitReady(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// GetConnectionURI fetches a connection string for the fixed default
// database and role inside the resource.
func (c *Client) GetConnectionURI(ctx context.Context, resourceID string) (string, error) {
	path := fmt.Sprintf("/resources/%s/connection?database=%s&role=%s",
		url.PathEscape(resourceID),
		url.QueryEscape(c.defaultDatabase),
		url.QueryEscape(c.defaultRole),
	)

	body, err := c.do(ctx, http.MethodGet, path, nil, "get connection")
	if err != nil {
		return "", err
	}

	var response struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &ParseError{Operation: "get connection", Err: err}
	}
	if response.URI == "" {
		return "", &ParseError{Operation: "get connection", Err: fmt.Errorf("empty connection uri")}
	}
	return response.URI, nil
}

var errNameNotFound = errors.New("resource name not found")

func (c *Client) findByName(ctx context.Context, name string) (*models.RemoteProject, error) {
	resources, err := c.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	for i := range resources {
		if resources[i].Name == name {
			return &resources[i], nil
		}
	}
	return nil, errNameNotFound
}

// awaitReady polls a freshly created resource until the control plane
// reports it usable. Control planes that provision synchronously report
// ready on the first poll.
func (c *Client) awaitReady(ctx context.Context, resource *models.RemoteProject) error {
	if resource.Ready() {
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.readinessInterval
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = c.readinessTimeout

	operation := func() error {
		current, err := c.GetResource(ctx, resource.ID)
		if err != nil {
			// A failed status poll is not retried; only "not yet ready"
			// keeps the loop going.
			return backoff.Permanent(err)
		}
		if !current.Ready() {
			return fmt.Errorf("%w: state %q", ErrResourceNotReady, current.State)
		}
		*resource = *current
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

// do issues one control-plane request. Non-2xx statuses become
// ProvisioningErrors carrying the upstream status and body.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, operation string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.RecordOperation("control_plane", operation, false, time.Since(start).Seconds(), nil)
			return nil, fmt.Errorf("control plane %s: %w", operation, err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("control plane %s: reading body: %w", operation, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.metrics.RecordOperation("control_plane", operation, false, time.Since(start).Seconds(), nil)
			return nil, &ProvisioningError{
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Body:       string(body),
			}
		}

		c.metrics.RecordOperation("control_plane", operation, true, time.Since(start).Seconds(), nil)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
