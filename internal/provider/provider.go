package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/designedit/pkg/models"
)

// DefaultTimeout bounds a single call to an image backend.
const DefaultTimeout = 180 * time.Second

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrModelNotSupported = errors.New("model not supported by provider")
	ErrAPIKeyRequired    = errors.New("API key is required")
)

// NetworkError means the request never produced an HTTP response
// (DNS, connection reset, timeout, unreadable body).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProviderError is a non-success reply from the backend.
type ProviderError struct {
	Provider models.ProviderType
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, e.Message)
}

// NoImageReturnedError is a success reply that carried no decodable image.
type NoImageReturnedError struct {
	Provider    models.ProviderType
	RawResponse string
}

func (e *NoImageReturnedError) Error() string {
	return fmt.Sprintf("%s returned no image", e.Provider)
}

// IsTransformError reports whether err came from an image backend call.
func IsTransformError(err error) bool {
	var netErr *NetworkError
	var provErr *ProviderError
	var noImg *NoImageReturnedError
	return errors.As(err, &netErr) || errors.As(err, &provErr) || errors.As(err, &noImg)
}

// Provider turns a prompt and an optional base image into one image.
// Calls are attempted once; retrying is left to the caller.
type Provider interface {
	Name() models.ProviderType
	Generate(ctx context.Context, req *models.EditRequest) (*models.Result, error)
	SupportsModel(model string) bool
	SupportsEdit(model string) bool
	ListModels() []string
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
	Verbose    bool
	Logger     *zerolog.Logger
}

func (c *Config) Timeout() time.Duration {
	if c.TimeoutSec > 0 {
		return time.Duration(c.TimeoutSec) * time.Second
	}
	return DefaultTimeout
}

func (c *Config) Log() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return zerolog.Nop()
}

type Factory struct {
	registry  *models.ModelRegistry
	providers map[models.ProviderType]Provider
}

func NewFactory(registry *models.ModelRegistry) *Factory {
	return &Factory{
		registry:  registry,
		providers: make(map[models.ProviderType]Provider),
	}
}

func (f *Factory) Register(provider Provider) {
	f.providers[provider.Name()] = provider
}

func (f *Factory) Get(providerType models.ProviderType) (Provider, error) {
	provider, ok := f.providers[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerType)
	}
	return provider, nil
}

func (f *Factory) GetForModel(model string) (Provider, error) {
	cap, ok := f.registry.Get(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotSupported, model)
	}

	provider, ok := f.providers[cap.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s (required by model %s)", ErrProviderNotFound, cap.Provider, model)
	}

	return provider, nil
}

// ListProviders returns the registered provider names in sorted order.
func (f *Factory) ListProviders() []models.ProviderType {
	types := make([]models.ProviderType, 0, len(f.providers))
	for t := range f.providers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
