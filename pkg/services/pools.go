package services

import (
	"context"

	"github.com/grouplog-io/grouplog-engine/pkg/groupdb"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
	"github.com/grouplog-io/grouplog-engine/pkg/repositories"
)

// RegistryPoolProvider adapts the connection registry to GroupPoolProvider.
// The indirection keeps a typed-nil pool from leaking into the interface
// value.
type RegistryPoolProvider struct {
	Registry *groupdb.Registry
}

func (p RegistryPoolProvider) Get(ctx context.Context, cfg *models.GroupDatabaseConfig) (repositories.GroupQuerier, error) {
	pool, err := p.Registry.Get(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, nil
	}
	return pool, nil
}
