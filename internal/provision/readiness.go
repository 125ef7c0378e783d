package provision

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// waitReady polls a freshly generated repository until it serves file (or
// the branch ref when file is empty). Generation populates content
// asynchronously and offers no completion signal.
//
// A 404, or the 409 served while the repository is still empty, means
// "not yet": polling continues every PollInterval until
// SettleTimeout, after which the run proceeds and the baseline read decides.
// When the probe never answers at all, the fixed FallbackDelay is waited
// instead.
func (s *Service) waitReady(ctx context.Context, store github.ObjectStore, repo models.RepoRef, branch, file string, log *logrus.Entry) error {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.SettleTimeout)
	defer cancel()

	observed := false
	for attempt := 1; ; attempt++ {
		var err error
		if file != "" {
			_, err = store.GetFile(pollCtx, repo, file, branch)
		} else {
			_, err = store.GetRef(pollCtx, repo, branch)
		}
		if err == nil {
			log.WithField("attempts", attempt).Debug("Repository ready")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if github.IsNotFound(err) || github.IsConflict(err) {
			observed = true
		} else if pollCtx.Err() == nil {
			if github.IsRetryable(err) {
				log.WithError(err).Debug("Readiness probe failed")
			} else {
				log.WithError(err).Warn("Readiness probe rejected")
			}
		}

		if err := s.sleep(pollCtx, s.cfg.PollInterval); err != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if observed {
		log.WithField("timeout", s.cfg.SettleTimeout).Warn("Repository not ready before settle timeout, continuing")
		return nil
	}
	log.WithField("delay", s.cfg.FallbackDelay).Warn("No readiness signal, waiting fixed delay")
	return s.sleep(ctx, s.cfg.FallbackDelay)
}
