package sync

import (
	"context"
	"time"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

// LeaseNamePrefix namespaces sync lease names; the per-source name is
// LeaseNamePrefix + slug.
const LeaseNamePrefix = "realmsync/sources/kerberos/sync/"

// LeaseName returns the lease name guarding syncs for a source.
func LeaseName(source *models.RealmSource) string {
	return LeaseNamePrefix + source.Slug
}

// LeaseService is the cluster-wide mutual-exclusion collaborator,
// implemented by the identity store. TryAcquireLease never blocks: a held
// lease yields models.ErrLeaseBusy immediately, any other error means the
// backend itself is unavailable and the caller skips the cycle.
type LeaseService interface {
	TryAcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (*models.SyncLease, error)
	IsLeaseLocked(ctx context.Context, name string) (bool, error)
	ReleaseLease(ctx context.Context, lease *models.SyncLease) error
}
