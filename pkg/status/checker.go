package status

import (
	"context"
	"time"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/directory"
	"github.com/realmsync/realmsync/pkg/identity/models"
)

// CacheKeyPrefix is the status cache key namespace; the per-source key is
// CacheKeyPrefix + slug.
const CacheKeyPrefix = "realmsync/sources/kerberos/status/"

// CacheTTL is how long connectivity results stay visible. The check is
// expected to run hourly; 2h keeps the last result available across one
// missed cycle.
const CacheTTL = 2 * time.Hour

// StatusOK and StatusNoConnection are the well-known status values; any
// other value is an authentication error message.
const (
	StatusOK           = "ok"
	StatusNoConnection = "no connection"
)

// Status is the connectivity-check result for one source.
type Status struct {
	Status          string `json:"status"`
	PrincipalExists bool   `json:"principal_exists,omitempty"`
}

// Connector yields the cached directory connection for a source.
// Implemented by the sync engine's connection registry.
type Connector interface {
	Get(ctx context.Context, source *models.RealmSource) (directory.Connection, error)
}

// Checker verifies directory connectivity for realm sources, reusing the
// same connection-construction logic as the sync path.
type Checker struct {
	connector Connector
	cache     *Cache
}

// NewChecker creates a Checker publishing into the given cache.
func NewChecker(connector Connector, cache *Cache) *Checker {
	return &Checker{connector: connector, cache: cache}
}

// Check probes connectivity for one source and caches the result under the
// source's status key. Auth failures become the status message, never an
// error: connectivity state is data here.
func (c *Checker) Check(ctx context.Context, source *models.RealmSource) Status {
	status := c.check(ctx, source)
	if c.cache != nil {
		c.cache.Set(CacheKeyPrefix+source.Slug, status, CacheTTL)
	}
	return status
}

func (c *Checker) check(ctx context.Context, source *models.RealmSource) Status {
	if !source.SyncUsers {
		return Status{Status: StatusOK}
	}

	conn, err := c.connector.Get(ctx, source)
	if err != nil {
		logger.Debug("Connectivity check failed",
			logger.KeySource, source.Slug, logger.KeyError, err)
		return Status{Status: err.Error()}
	}
	if conn == nil {
		return Status{Status: StatusNoConnection}
	}

	exists, err := conn.PrincipalExists(ctx, source.SyncPrincipal)
	if err != nil {
		return Status{Status: err.Error()}
	}
	return Status{Status: StatusOK, PrincipalExists: exists}
}
