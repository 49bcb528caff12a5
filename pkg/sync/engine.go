package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/realmsync/realmsync/internal/logger"
	"github.com/realmsync/realmsync/pkg/events"
	"github.com/realmsync/realmsync/pkg/identity/models"
	"github.com/realmsync/realmsync/pkg/status"
)

// IdentityStore is the local identity store contract the engine reconciles
// against, implemented by pkg/identity/store.
type IdentityStore interface {
	FindLink(ctx context.Context, sourceID, identifier string) (*models.SourceLink, error)
	CreateLinkedIdentity(ctx context.Context, identity *models.Identity, link *models.SourceLink) error
	UpdateIdentity(ctx context.Context, identity *models.Identity) error
}

// StatusCache publishes per-source sync status for display, implemented by
// pkg/status.Cache.
type StatusCache interface {
	Set(key string, value any, ttl time.Duration)
}

// Config carries the engine's timing and identity settings.
type Config struct {
	// TaskTimeout is the expected maximum duration of one sync run. The
	// lease TTL is 3× this value: generous enough that a slow-but-healthy
	// run is never preempted by its own lease expiring, while a crashed
	// holder's lease still expires and unblocks the next attempt.
	TaskTimeout time.Duration

	// HolderID identifies this worker in lease rows. Defaults to host+pid.
	HolderID string
}

// DefaultTaskTimeout is used when Config.TaskTimeout is unset.
const DefaultTaskTimeout = time.Hour

// Engine orchestrates sync runs: acquire lease, enumerate principals, run
// the property pipeline per principal, reconcile against the identity
// store, release the lease. Per-principal failures are isolated; the run
// never aborts for one bad record.
type Engine struct {
	store    IdentityStore
	leases   LeaseService
	registry *Registry
	mappings *MappingRegistry
	events   events.Sink
	statuses StatusCache
	metrics  Metrics
	cfg      Config
}

// Options bundles the engine's collaborators. Store, Leases, and Registry
// are required; the rest default to working no-op or log-backed
// implementations.
type Options struct {
	Store    IdentityStore
	Leases   LeaseService
	Registry *Registry
	Mappings *MappingRegistry
	Events   events.Sink
	Statuses StatusCache
	Metrics  Metrics
	Config   Config
}

// NewEngine creates a sync engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("sync engine requires an identity store")
	}
	if opts.Leases == nil {
		return nil, fmt.Errorf("sync engine requires a lease service")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("sync engine requires a connection registry")
	}
	if opts.Mappings == nil {
		opts.Mappings = NewMappingRegistry()
	}
	if opts.Events == nil {
		opts.Events = events.LogSink{}
	}
	if opts.Config.TaskTimeout <= 0 {
		opts.Config.TaskTimeout = DefaultTaskTimeout
	}
	if opts.Config.HolderID == "" {
		hostname, _ := os.Hostname()
		opts.Config.HolderID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	return &Engine{
		store:    opts.Store,
		leases:   opts.Leases,
		registry: opts.Registry,
		mappings: opts.Mappings,
		events:   opts.Events,
		statuses: opts.Statuses,
		metrics:  opts.Metrics,
		cfg:      opts.Config,
	}, nil
}

// LeaseTTL returns the lease timeout: 3× the expected sync duration.
func (e *Engine) LeaseTTL() time.Duration {
	return 3 * e.cfg.TaskTimeout
}

// Sync runs one synchronization cycle for a source.
//
// A disabled source, a held lease, or an unreachable lease backend all end
// the run cleanly with a report and no error: the next scheduled attempt
// retries from scratch. Connection and enumeration failures abort the run
// for this source, surfaced through the status cache rather than the error
// return. The lease is released on every exit path.
func (e *Engine) Sync(ctx context.Context, source *models.RealmSource) (*Report, error) {
	report := newReport(source)

	if !source.Enabled || !source.SyncUsers {
		logger.Debug("Source is disabled or has sync disabled, skipping",
			logger.KeySource, source.Slug)
		report.Outcome = RunDisabled
		return report, nil
	}

	leaseName := LeaseName(source)
	lease, err := e.leases.TryAcquireLease(ctx, leaseName, e.cfg.HolderID, e.LeaseTTL())
	if err != nil {
		if errors.Is(err, models.ErrLeaseBusy) {
			logger.Debug("Sync lease is held, skipping run",
				logger.KeySource, source.Slug, logger.KeyLease, leaseName)
			if e.metrics != nil {
				e.metrics.ObserveLeaseBusy(source.Slug)
			}
		} else {
			// The lease backend itself is unavailable: skip this cycle.
			logger.Warn("Could not reach lease backend, skipping run",
				logger.KeySource, source.Slug, logger.KeyError, err)
		}
		report.Outcome = RunSkippedBusy
		return report, nil
	}
	defer func() {
		if err := e.leases.ReleaseLease(ctx, lease); err != nil && !errors.Is(err, models.ErrLeaseNotHeld) {
			logger.Warn("Failed to release sync lease",
				logger.KeyLease, leaseName, logger.KeyError, err)
		}
	}()

	logger.Info("Starting sync run",
		logger.KeySource, source.Slug,
		logger.KeyRealm, source.Realm,
		logger.KeyHolder, e.cfg.HolderID)

	runErr := WithAmbientConfig(source, func() error {
		return e.run(ctx, source, report)
	})
	if runErr != nil {
		// The ambient scope itself failed before the run body executed.
		report.Outcome = RunAborted
		report.Status = runErr.Error()
		e.setStatus(source, runErr.Error())
	}

	report.Duration = time.Since(report.Started)
	if e.metrics != nil {
		e.metrics.ObserveRun(source.Slug, report.Outcome, report.Duration)
	}
	logger.Info("Sync run finished",
		logger.KeySource, source.Slug,
		logger.KeyOutcome, string(report.Outcome),
		logger.KeyDuration, report.Duration,
		logger.KeyCount, report.Seen())

	return report, runErr
}

// run executes the leased portion of a sync cycle.
func (e *Engine) run(ctx context.Context, source *models.RealmSource, report *Report) error {
	conn, err := e.registry.Get(ctx, source)
	if err != nil {
		report.Outcome = RunAborted
		report.Status = err.Error()
		e.setStatus(source, err.Error())
		logger.Warn("Could not connect to realm",
			logger.KeySource, source.Slug, logger.KeyError, err)
		return nil
	}
	if conn == nil {
		report.Outcome = RunAborted
		report.Status = status.StatusNoConnection
		e.setStatus(source, status.StatusNoConnection)
		logger.Warn("No directory connection configured for source",
			logger.KeySource, source.Slug)
		return nil
	}

	pipeline := e.pipelineFor(ctx, source)

	it, err := conn.Principals(ctx, "*@"+source.Realm)
	if err != nil {
		report.Outcome = RunAborted
		report.Status = err.Error()
		e.setStatus(source, err.Error())
		logger.Warn("Principal enumeration failed",
			logger.KeySource, source.Slug, logger.KeyError, err)
		return nil
	}
	defer it.Close()

	for it.Next() {
		e.syncPrincipal(ctx, source, pipeline, it.Principal(), report)
	}
	if err := it.Err(); err != nil {
		report.Outcome = RunAborted
		report.Status = err.Error()
		e.setStatus(source, err.Error())
		logger.Warn("Principal enumeration aborted",
			logger.KeySource, source.Slug, logger.KeyError, err)
		return nil
	}

	report.Outcome = RunDone
	report.Status = status.StatusOK
	e.setStatus(source, status.StatusOK)
	return nil
}

// pipelineFor builds the property pipeline for a source: the built-in
// email-guess step, then the source's configured mappings in order.
// Unresolvable mapping names degrade the pipeline and raise a
// configuration-error event; they never stop the run.
func (e *Engine) pipelineFor(ctx context.Context, source *models.RealmSource) *Pipeline {
	mappings := []Mapping{{Name: MappingGuessEmail, Run: guessEmail}}

	configured, err := e.mappings.Resolve(source.GetPropertyMappings())
	if err != nil {
		e.events.Record(ctx, events.KindConfigurationError, err.Error(),
			map[string]any{logger.KeySource: source.Slug})
	}
	mappings = append(mappings, configured...)

	return NewPipeline(mappings, e.events)
}

// syncPrincipal reconciles a single principal. All failure paths are
// contained here: the caller moves on to the next principal regardless.
func (e *Engine) syncPrincipal(ctx context.Context, source *models.RealmSource, pipeline *Pipeline, name string, report *Report) {
	principal, ok := ParsePrincipal(name)
	if !ok {
		logger.Debug("Skipping malformed principal",
			logger.KeySource, source.Slug, logger.KeyPrincipal, name)
		e.record(report, source, PrincipalResult{Principal: name, Outcome: OutcomeRejected, Reason: "malformed principal name"})
		return
	}

	if principal.IsServiceAccount() && !source.SyncServicePrincipals {
		logger.Debug("Skipping service principal",
			logger.KeySource, source.Slug, logger.KeyPrincipal, name)
		e.record(report, source, PrincipalResult{Principal: name, Outcome: OutcomeRejected, Reason: "service principals excluded"})
		return
	}

	props := pipeline.Build(ctx, principal, source)
	username, ok := props.Username()
	if !ok {
		logger.Debug("Principal rejected by pipeline",
			logger.KeySource, source.Slug, logger.KeyPrincipal, name)
		e.record(report, source, PrincipalResult{Principal: name, Outcome: OutcomeRejected, Reason: "rejected by pipeline"})
		return
	}

	link, err := e.store.FindLink(ctx, source.ID, name)
	switch {
	case err == nil:
		e.updateIdentity(ctx, source, link, props, name, username, report)

	case errors.Is(err, models.ErrLinkNotFound):
		e.createIdentity(ctx, source, props, name, username, report)

	default:
		e.configError(ctx, source, name, fmt.Sprintf("Failed to look up source link: %s", err))
		e.record(report, source, PrincipalResult{Principal: name, Username: username, Outcome: OutcomeFailed, Reason: err.Error()})
	}
}

// createIdentity atomically creates a local identity plus its link. Any
// integrity or field error is isolated: a configuration-error event naming
// the principal is emitted and the run continues.
func (e *Engine) createIdentity(ctx context.Context, source *models.RealmSource, props PropertySet, name, username string, report *Report) {
	identity := identityFromProperties(username, props)
	link := &models.SourceLink{SourceID: source.ID, Identifier: name}

	if err := e.store.CreateLinkedIdentity(ctx, identity, link); err != nil {
		e.configError(ctx, source, name, fmt.Sprintf("Failed to create identity: %s", err))
		e.record(report, source, PrincipalResult{Principal: name, Username: username, Outcome: OutcomeFailed, Reason: err.Error()})
		return
	}

	logger.Debug("Created identity",
		logger.KeySource, source.Slug,
		logger.KeyPrincipal, name,
		logger.KeyUsername, username,
		logger.KeyIdentity, identity.ID)
	e.record(report, source, PrincipalResult{Principal: name, Username: username, Outcome: OutcomeCreated})
}

// updateIdentity reconciles an existing linked identity: scalar properties
// overwrite, stored attributes merge with the list-unique rule.
func (e *Engine) updateIdentity(ctx context.Context, source *models.RealmSource, link *models.SourceLink, props PropertySet, name, username string, report *Report) {
	identity := &link.Identity
	applyProperties(identity, props)

	if err := e.store.UpdateIdentity(ctx, identity); err != nil {
		e.configError(ctx, source, name, fmt.Sprintf("Failed to update identity: %s", err))
		e.record(report, source, PrincipalResult{Principal: name, Username: username, Outcome: OutcomeFailed, Reason: err.Error()})
		return
	}

	logger.Debug("Updated identity",
		logger.KeySource, source.Slug,
		logger.KeyPrincipal, name,
		logger.KeyIdentity, identity.ID)
	e.record(report, source, PrincipalResult{Principal: name, Username: username, Outcome: OutcomeUpdated})
}

func (e *Engine) record(report *Report, source *models.RealmSource, result PrincipalResult) {
	report.add(result)
	if e.metrics != nil {
		e.metrics.ObservePrincipal(source.Slug, result.Outcome)
	}
}

func (e *Engine) configError(ctx context.Context, source *models.RealmSource, principal, message string) {
	e.events.Record(ctx, events.KindConfigurationError, message, map[string]any{
		logger.KeySource:    source.Slug,
		logger.KeyPrincipal: principal,
	})
}

func (e *Engine) setStatus(source *models.RealmSource, value string) {
	if e.statuses == nil {
		return
	}
	e.statuses.Set(status.CacheKeyPrefix+source.Slug, status.Status{Status: value}, status.CacheTTL)
}

// identityFromProperties builds a new identity from the pipeline output.
// Service-account variants get an unusable credential: they never log in
// with a password.
func identityFromProperties(username string, props PropertySet) *models.Identity {
	identity := &models.Identity{
		Username:       username,
		Type:           string(models.TypeInternal),
		PasswordUsable: true,
	}
	applyProperties(identity, props)
	if identity.IsServiceAccount() {
		identity.SetUnusablePassword()
	}
	return identity
}

// applyProperties copies scalar properties onto the identity and merges the
// attributes document with the list-unique rule.
func applyProperties(identity *models.Identity, props PropertySet) {
	if username, ok := props.Username(); ok {
		identity.Username = username
	}
	if t := props.String(PropType); t != "" {
		identity.Type = t
	}
	if p := props.String(PropPath); p != "" {
		identity.Path = p
	}
	if email := props.String(PropEmail); email != "" {
		identity.Email = email
	}
	if name := props.String(PropName); name != "" {
		identity.Name = name
	}
	if attrs := props.Attributes(); attrs != nil {
		// Inputs are JSON-decoded values; re-encoding them cannot fail.
		_ = identity.SetAttributes(MergeAttributes(identity.GetAttributes(), attrs))
	}
}
