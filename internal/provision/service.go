// Package provision drives validation, scenario builds and assessment forks
// end to end.
package provision

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/batch"
	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/history"
	"github.com/Kamar-Folarin/repo-provisioner/internal/issues"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
	"github.com/Kamar-Folarin/repo-provisioner/internal/spec"
	"github.com/Kamar-Folarin/repo-provisioner/internal/tracker"
)

// Service runs provisioning pipelines. Runs share no mutable pipeline state;
// each one gets its own client, report and history chain.
type Service struct {
	clients      github.ClientFactory
	registry     *config.Registry
	validator    *spec.Validator
	tracker      *tracker.Tracker
	cfg          *config.ProvisionConfig
	owner        string
	defaultToken string
	policy       report.Policy
	logger       *logrus.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces the default failure policy.
func WithPolicy(policy report.Policy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithDefaultToken sets the credential used when a request carries none.
func WithDefaultToken(token string) Option {
	return func(s *Service) {
		s.defaultToken = token
	}
}

// WithClock overrides the time source used for commit dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a provisioning service. Repositories are created under
// owner.
func NewService(clients github.ClientFactory, registry *config.Registry, tr *tracker.Tracker, cfg *config.ProvisionConfig, owner string, logger *logrus.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.DefaultProvisionConfig()
	}
	if registry == nil {
		registry = config.DefaultRegistry()
	}
	s := &Service{
		clients:   clients,
		registry:  registry,
		validator: spec.NewValidator(registry, spec.WithLogger(logger)),
		tracker:   tr,
		cfg:       cfg,
		owner:     owner,
		policy:    report.DefaultPolicy(),
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the scaffold registry the service validates against.
func (s *Service) Registry() *config.Registry {
	return s.registry
}

// Tracker returns the run ledger.
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

func (s *Service) client(credential string) (github.ObjectStore, error) {
	if credential == "" {
		credential = s.defaultToken
	}
	if credential == "" {
		return nil, errors.NewUnauthorizedError("no credential provided", nil)
	}
	store, err := s.clients(credential)
	if err != nil {
		return nil, errors.NewUnauthorizedError("failed to create client", err)
	}
	return store, nil
}

func (s *Service) materializer(store history.Store) *history.Materializer {
	return history.NewMaterializer(store, batch.NewProcessor(s.cfg), s.logger, history.WithClock(s.now))
}

func (s *Service) replicator(store github.IssueStore) *issues.Replicator {
	return issues.NewReplicator(store, s.logger)
}

// ensureRepository generates target from template, or reuses it when it
// already exists. reused reports the latter.
func (s *Service) ensureRepository(ctx context.Context, store github.RepoStore, template models.RepoRef, req models.TemplateRequest, rep *report.Report, log *logrus.Entry) (info *models.RepoInfo, reused bool, err error) {
	target := models.RepoRef{Owner: req.Owner, Name: req.Name}
	info, err = store.GenerateFromTemplate(ctx, template, req)
	if err == nil {
		rep.Created(report.KindRepository)
		log.WithField("url", info.HTMLURL).Info("Repository generated")
		return info, false, nil
	}

	if github.IsAlreadyExists(err) {
		existing, getErr := store.GetRepository(ctx, target)
		if getErr == nil {
			log.WithField("url", existing.HTMLURL).Info("Reusing existing repository")
			return existing, true, nil
		}
		err = getErr
	}

	log.WithError(err).Error("Repository creation failed")
	if abort := rep.Fail(report.KindRepository, target.String(), err); abort != nil {
		return nil, false, abort
	}
	// nothing can be built without the repository, whatever the policy says
	return nil, false, err
}

// baseline returns the root commit of branch. Re-runs start from it again,
// so a rebuilt repository never diverges from its spec.
func (s *Service) baseline(ctx context.Context, store github.RepoStore, repo models.RepoRef, branch string) (history.Head, error) {
	commits, err := store.ListCommits(ctx, repo, branch)
	if err != nil {
		return history.Head{}, fmt.Errorf("failed to list commits of %s: %w", repo, err)
	}
	if len(commits) == 0 {
		return history.Head{}, fmt.Errorf("repository %s has no baseline commit", repo)
	}
	return history.ResolveHead(ctx, store, repo, commits[0].SHA)
}

// finish records the terminal state of run. Ledger writes outlive a
// cancelled request.
func (s *Service) finish(ctx context.Context, run *models.ProvisionRun, rep *report.Report, runErr error) {
	state := models.StateFailed
	if runErr == nil {
		state = rep.State()
	}
	if err := s.tracker.Finish(context.WithoutCancel(ctx), run, state, rep, runErr); err != nil {
		s.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to record run result")
		s.tracker.Release(run)
	}
}

// rateLimitFields reports the remaining API quota when store tracks it.
func rateLimitFields(store github.ObjectStore) logrus.Fields {
	limiter, ok := store.(github.RateLimiter)
	if !ok {
		return logrus.Fields{}
	}
	info := limiter.RateLimit()
	return logrus.Fields{
		"rate_remaining": info.Remaining,
		"rate_reset":     info.ResetTime,
	}
}

// fatal classifies an error that ended a build or fork. Cancellation and
// caller errors pass through unchanged.
func fatal(msg string, err error) error {
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	case errors.IsInvalidInput(err), errors.IsUnauthorized(err):
		return err
	}
	return errors.NewRemoteFatalError(msg, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
