package provision

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/history"
	"github.com/Kamar-Folarin/repo-provisioner/internal/issues"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
)

// ScenarioRepo returns the repository a scenario is built into.
func (s *Service) ScenarioRepo(scenarioID string) models.RepoRef {
	return models.RepoRef{Owner: s.owner, Name: s.cfg.ScenarioRepoPrefix + scenarioID}
}

// BuildFromSpec builds the scenario repository for a validated spec and
// returns its URL. The repository is generated from the spec's scaffold, or
// reused when it exists, and its branch is rebuilt from the scaffold's root
// commit, so re-running for the same id converges on the same history.
//
// Only repository creation, an unreadable baseline and the final ref update
// fail the build; every other omission is recorded on the run.
func (s *Service) BuildFromSpec(ctx context.Context, scenarioID string, repoSpec *models.RepoSpec, credential string) (string, error) {
	if repoSpec == nil {
		return "", errors.NewValidationError("spec cannot be nil", nil)
	}
	scaffold, ok := s.registry.Get(repoSpec.ScaffoldID)
	if !ok {
		return "", errors.NewValidationError(fmt.Sprintf("unknown scaffold %q", repoSpec.ScaffoldID), nil)
	}
	template, err := scaffold.TemplateRef()
	if err != nil {
		return "", errors.NewValidationError("invalid scaffold template", err)
	}

	run, err := s.tracker.Start(ctx, models.RunBuild, scenarioID, models.StateValid)
	if err != nil {
		return "", err
	}
	if err := s.tracker.Transition(ctx, run, models.StateBuilding); err != nil {
		s.tracker.Release(run)
		return "", err
	}

	rep := report.New(s.policy)
	url, err := s.build(ctx, run, scenarioID, repoSpec, template, scaffold.ReadinessFile, credential, rep)
	if err != nil {
		err = fatal("build failed", err)
	}
	s.finish(ctx, run, rep, err)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) build(ctx context.Context, run *models.ProvisionRun, scenarioID string, repoSpec *models.RepoSpec, template models.RepoRef, readinessFile, credential string, rep *report.Report) (string, error) {
	store, err := s.client(credential)
	if err != nil {
		return "", err
	}

	repo := s.ScenarioRepo(scenarioID)
	log := s.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"repo":     repo.String(),
		"scaffold": repoSpec.ScaffoldID,
	})

	info, reused, err := s.ensureRepository(ctx, store, template, models.TemplateRequest{
		Owner:       repo.Owner,
		Name:        repo.Name,
		Description: repoSpec.ProjectDescription,
		Private:     s.cfg.PrivateRepos,
	}, rep, log)
	if err != nil {
		return "", err
	}
	run.RepoURL = info.HTMLURL

	branch := info.DefaultBranch
	if branch == "" {
		branch = s.cfg.DefaultBranch
	}
	if !reused {
		if err := s.waitReady(ctx, store, repo, branch, readinessFile, log); err != nil {
			return "", err
		}
	}

	base, err := s.baseline(ctx, store, repo, branch)
	if err != nil {
		return "", err
	}
	log.WithField("baseline", base.CommitSHA).Info("Building history")

	if _, err := s.materializer(store).Materialize(ctx, history.Target{Repo: repo, Branch: branch, Base: base}, repoSpec, rep); err != nil {
		return "", err
	}

	if _, err := s.replicator(store).ReplicateIssues(ctx, repo, issues.FromSpec(repoSpec.Issues), issues.Options{
		SkipExisting: reused,
		Report:       rep,
	}); err != nil {
		return "", err
	}

	if err := store.SetTemplate(ctx, repo, true); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.WithError(err).Warn("Failed to mark repository as template")
		if abort := rep.Fail(report.KindTemplateFlag, repo.String(), err); abort != nil {
			return "", abort
		}
	} else {
		rep.Created(report.KindTemplateFlag)
	}

	log.WithFields(logrus.Fields{
		"state":     rep.State(),
		"omissions": len(rep.Omissions()),
	}).WithFields(rateLimitFields(store)).Info("Scenario built")
	return info.HTMLURL, nil
}
