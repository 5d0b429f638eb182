package transcription

import (
	"github.com/kbukum/sonago/provider"
)

// Provider is a transcription backend.
type Provider interface {
	provider.RequestResponse[Request, Result]
}

// NewRegistry creates a registry of transcription provider factories.
func NewRegistry() *provider.Registry[Provider] {
	return provider.NewRegistry[Provider]()
}

// Middleware wraps a Provider's Execute.
type Middleware = provider.Middleware[Request, Result]
