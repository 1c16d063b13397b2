package ports

import (
	"context"

	"relawan/internal/registration/models"
	"relawan/internal/registry"
)

// RegistryPort is the volunteer registry as seen by the registration flow.
// It keeps the wizard independent of the HTTP client behind it.
type RegistryPort interface {
	// ListRegions fetches the region directory
	ListRegions(ctx context.Context) ([]models.RegionOption, error)

	// CreateRegistration submits one registration form
	CreateRegistration(ctx context.Context, form registry.CreateRequest) (*models.Registration, error)

	// GetRegistration reads a registration by the identifier returned on creation
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
}
