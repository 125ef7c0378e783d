package provision

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/history"
	"github.com/Kamar-Folarin/repo-provisioner/internal/issues"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
	"github.com/Kamar-Folarin/repo-provisioner/internal/utils"
)

// AssessmentRepo returns the repository an assessment is forked into.
func (s *Service) AssessmentRepo(assessmentID string) models.RepoRef {
	return models.RepoRef{Owner: s.owner, Name: s.cfg.AssessmentRepoPrefix + assessmentID}
}

// ForkWithHistory creates the private assessment copy of a scenario
// repository and returns its URL. Generating from a template squashes the
// source into one commit and drops its issues, so every later source commit
// is replayed on top with its original metadata, followed by the source's
// issues and comments.
func (s *Service) ForkWithHistory(ctx context.Context, assessmentID, sourceRepoURL, credential string) (string, error) {
	source, err := utils.ParseRepoURL(sourceRepoURL)
	if err != nil {
		return "", errors.NewValidationError("invalid source repository", err)
	}

	run, err := s.tracker.Start(ctx, models.RunFork, assessmentID, models.StateValid)
	if err != nil {
		return "", err
	}
	if err := s.tracker.Transition(ctx, run, models.StateBuilding); err != nil {
		s.tracker.Release(run)
		return "", err
	}

	rep := report.New(s.policy)
	url, err := s.fork(ctx, run, assessmentID, source, credential, rep)
	if err != nil {
		err = fatal("fork failed", err)
	}
	s.finish(ctx, run, rep, err)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) fork(ctx context.Context, run *models.ProvisionRun, assessmentID string, source models.RepoRef, credential string, rep *report.Report) (string, error) {
	store, err := s.client(credential)
	if err != nil {
		return "", err
	}

	target := s.AssessmentRepo(assessmentID)
	log := s.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"repo":   target.String(),
		"source": source.String(),
	})

	srcInfo, err := store.GetRepository(ctx, source)
	if err != nil {
		return "", fmt.Errorf("failed to read source repository: %w", err)
	}
	srcBranch := srcInfo.DefaultBranch
	if srcBranch == "" {
		srcBranch = s.cfg.DefaultBranch
	}

	info, reused, err := s.ensureRepository(ctx, store, source, models.TemplateRequest{
		Owner:              target.Owner,
		Name:               target.Name,
		Description:        fmt.Sprintf("Assessment %s", assessmentID),
		Private:            true,
		IncludeAllBranches: false,
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
		if err := s.waitReady(ctx, store, target, branch, "", log); err != nil {
			return "", err
		}
	}

	commits, err := store.ListCommits(ctx, source, srcBranch)
	if err != nil {
		return "", fmt.Errorf("failed to list source commits: %w", err)
	}
	base, err := s.baseline(ctx, store, target, branch)
	if err != nil {
		return "", err
	}

	// the target's initial commit stands in for the source's first one
	var replay []models.CommitSummary
	if len(commits) > 1 {
		replay = commits[1:]
	}
	log.WithField("commits", len(replay)).Info("Replaying source history")

	if _, err := s.materializer(store).Replay(ctx, source, history.Target{Repo: target, Branch: branch, Base: base}, replay, rep); err != nil {
		return "", err
	}

	srcIssues, err := s.sourceIssues(ctx, store, source, rep, log)
	if err != nil {
		return "", err
	}
	if _, err := s.replicator(store).ReplicateIssues(ctx, target, issues.FromSource(srcIssues), issues.Options{
		SkipExisting: reused,
		Report:       rep,
	}); err != nil {
		return "", err
	}

	log.WithFields(logrus.Fields{
		"state":     rep.State(),
		"omissions": len(rep.Omissions()),
	}).WithFields(rateLimitFields(store)).Info("Assessment forked")
	return info.HTMLURL, nil
}

// sourceIssues reads the source's issues with their comments. An issue whose
// comments cannot be read is replicated without them.
func (s *Service) sourceIssues(ctx context.Context, store github.IssueStore, source models.RepoRef, rep *report.Report, log *logrus.Entry) ([]models.SourceIssue, error) {
	list, err := store.ListIssues(ctx, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WithError(err).Warn("Failed to list source issues")
		return nil, rep.Fail(report.KindIssue, source.String()+" issues", err)
	}

	for i := range list {
		comments, err := store.ListIssueComments(ctx, source, list[i].Number)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.WithError(err).WithField("issue", list[i].Number).Warn("Failed to list source comments")
			if abort := rep.Fail(report.KindComment, fmt.Sprintf("%s#%d", source, list[i].Number), err); abort != nil {
				return nil, abort
			}
			continue
		}
		list[i].Comments = comments
	}
	return list, nil
}
