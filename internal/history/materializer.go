package history

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/batch"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/report"
)

// ReadmePath is where a spec's README content is written.
const ReadmePath = "README.md"

// Store is the part of the object store the materializer drives.
type Store interface {
	github.GitStore
	github.RepoStore
}

// Target is the repository and branch a history is built on, starting at
// Base.
type Target struct {
	Repo   models.RepoRef
	Branch string
	Base   Head
}

// Result is the outcome of a materialization or replay that reached its
// final ref update.
type Result struct {
	Head    Head
	Commits []string
}

// Materializer turns commit plans into blobs, trees and commits.
type Materializer struct {
	store     Store
	processor *batch.Processor
	logger    *logrus.Logger
	now       func() time.Time
}

// MaterializerOption configures a Materializer.
type MaterializerOption func(*Materializer)

// WithClock overrides the time source used for commit dates.
func WithClock(now func() time.Time) MaterializerOption {
	return func(m *Materializer) {
		m.now = now
	}
}

// NewMaterializer creates a materializer. Blob creation for one commit fans
// out through processor.
func NewMaterializer(store Store, processor *batch.Processor, logger *logrus.Logger, opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		store:     store,
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResolveHead returns the head for an existing commit.
func ResolveHead(ctx context.Context, store github.RepoStore, repo models.RepoRef, commitSHA string) (Head, error) {
	detail, err := store.GetCommit(ctx, repo, commitSHA)
	if err != nil {
		return Head{}, fmt.Errorf("failed to resolve commit %s: %w", commitSHA, err)
	}
	return Head{CommitSHA: detail.SHA, TreeSHA: detail.TreeSHA}, nil
}

// blobJob is one file whose content has to become a blob.
type blobJob struct {
	path string
	// content is set for spec files; sourceSHA for replayed files.
	content   []byte
	sourceSHA string
}

// Materialize builds one commit per CommitSpec on top of target.Base and
// force-moves the branch to the last one. Per-entity failures are recorded in
// rep and skipped as its policy allows; the ref update is always attempted.
func (m *Materializer) Materialize(ctx context.Context, target Target, s *models.RepoSpec, rep *report.Report) (*Result, error) {
	groups := s.FilesByCommit()
	readmeOwned := false
	for _, f := range s.Files {
		if f.Path == ReadmePath {
			readmeOwned = true
			break
		}
	}

	chain := NewChain(m.store, target.Repo, target.Base)
	now := m.now()

	for i, cs := range s.CommitHistory {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := m.logger.WithFields(logrus.Fields{
			"repo":         target.Repo.String(),
			"commit_index": i,
		})

		var jobs []blobJob
		if i == 0 && !readmeOwned && s.ReadmeContent != "" {
			jobs = append(jobs, blobJob{path: ReadmePath, content: []byte(s.ReadmeContent)})
		}
		for _, f := range groups[i] {
			jobs = append(jobs, blobJob{path: f.Path, content: []byte(f.Content)})
		}

		entries, err := m.createBlobs(ctx, target.Repo, models.RepoRef{}, jobs, rep, log)
		if err != nil {
			return nil, err
		}

		date := now.AddDate(0, 0, -cs.DaysAgo)
		sig := models.Signature{Name: cs.AuthorName, Email: cs.AuthorEmail, Date: date}
		entity := fmt.Sprintf("commit[%d] %q", i, cs.Message)
		if err := m.append(ctx, chain, Step{
			Message:   cs.Message,
			Author:    sig,
			Committer: sig,
			Entries:   entries,
		}, entity, rep, log); err != nil {
			return nil, err
		}
	}

	return m.publish(ctx, chain, target, rep)
}

// Replay recreates commits of source on top of target.Base, oldest first.
// Each commit's changed files are copied blob by blob; removed paths and the
// old side of renames are deleted from the tree. Author, committer and
// message are preserved.
func (m *Materializer) Replay(ctx context.Context, source models.RepoRef, target Target, commits []models.CommitSummary, rep *report.Report) (*Result, error) {
	chain := NewChain(m.store, target.Repo, target.Base)

	for i, summary := range commits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := m.logger.WithFields(logrus.Fields{
			"repo":         target.Repo.String(),
			"source":       source.String(),
			"commit_index": i,
			"source_sha":   summary.SHA,
		})
		entity := fmt.Sprintf("commit %s", summary.SHA)

		detail, err := m.store.GetCommit(ctx, source, summary.SHA)
		if err != nil {
			log.WithError(err).Warn("Skipping source commit that could not be read")
			if abort := rep.Fail(report.KindCommit, entity, err); abort != nil {
				return nil, abort
			}
			continue
		}

		var deletions []models.TreeEntry
		var jobs []blobJob
		for _, f := range detail.Files {
			switch f.Status {
			case models.ChangeRemoved:
				deletions = append(deletions, models.TreeEntry{Path: f.Path, Delete: true})
			case models.ChangeRenamed:
				if f.PreviousPath != "" && f.PreviousPath != f.Path {
					deletions = append(deletions, models.TreeEntry{Path: f.PreviousPath, Delete: true})
				}
				jobs = append(jobs, blobJob{path: f.Path, sourceSHA: f.BlobSHA})
			case models.ChangeUnchanged:
			default:
				jobs = append(jobs, blobJob{path: f.Path, sourceSHA: f.BlobSHA})
			}
		}

		entries, err := m.createBlobs(ctx, target.Repo, source, jobs, rep, log)
		if err != nil {
			return nil, err
		}
		entries = append(deletions, entries...)

		if err := m.append(ctx, chain, Step{
			Message:   detail.Message,
			Author:    detail.Author,
			Committer: detail.Committer,
			Entries:   entries,
		}, entity, rep, log); err != nil {
			return nil, err
		}
	}

	return m.publish(ctx, chain, target, rep)
}

// createBlobs creates the blobs of one commit concurrently and returns tree
// entries for the ones that succeeded, in job order. Jobs with a sourceSHA
// are read from source first.
func (m *Materializer) createBlobs(ctx context.Context, repo, source models.RepoRef, jobs []blobJob, rep *report.Report, log *logrus.Entry) ([]models.TreeEntry, error) {
	shas := make([]string, len(jobs))
	errs := m.processor.ProcessItems(ctx, len(jobs), func(ctx context.Context, i int) error {
		content := jobs[i].content
		if jobs[i].sourceSHA != "" {
			fetched, err := m.store.GetBlob(ctx, source, jobs[i].sourceSHA)
			if err != nil {
				return fmt.Errorf("failed to read source blob %s: %w", jobs[i].sourceSHA, err)
			}
			content = fetched
		}
		sha, err := m.store.CreateBlob(ctx, repo, content)
		if err != nil {
			return err
		}
		shas[i] = sha
		return nil
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]models.TreeEntry, 0, len(jobs))
	for i, job := range jobs {
		if errs[i] != nil {
			log.WithError(errs[i]).WithField("path", job.path).Warn("Skipping file whose blob could not be created")
			if abort := rep.Fail(report.KindBlob, job.path, errs[i]); abort != nil {
				return nil, abort
			}
			continue
		}
		rep.Created(report.KindBlob)
		entries = append(entries, models.TreeEntry{
			Path:    job.path,
			Mode:    fileMode(job.path),
			BlobSHA: shas[i],
		})
	}
	return entries, nil
}

func (m *Materializer) append(ctx context.Context, chain *Chain, step Step, entity string, rep *report.Report, log *logrus.Entry) error {
	res, err := chain.Append(ctx, step)
	if res.TreeErr != nil {
		log.WithError(res.TreeErr).Warn("Tree failed, committing on the previous tree")
		if abort := rep.Fail(report.KindTree, entity, res.TreeErr); abort != nil {
			return abort
		}
	} else if len(step.Entries) > 0 {
		rep.Created(report.KindTree)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WithError(err).Warn("Skipping commit")
		return rep.Fail(report.KindCommit, entity, err)
	}
	rep.Created(report.KindCommit)
	log.WithField("sha", res.Head.CommitSHA).Debug("Commit created")
	return nil
}

func (m *Materializer) publish(ctx context.Context, chain *Chain, target Target, rep *report.Report) (*Result, error) {
	if err := chain.Publish(ctx, target.Branch); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"repo":   target.Repo.String(),
			"branch": target.Branch,
		}).Error("Final ref update failed")
		if abort := rep.Fail(report.KindRef, target.Branch, err); abort != nil {
			return nil, abort
		}
	} else {
		rep.Created(report.KindRef)
	}

	m.logger.WithFields(logrus.Fields{
		"repo":    target.Repo.String(),
		"head":    chain.Head().CommitSHA,
		"commits": len(chain.Commits()),
	}).Info("History published")
	return &Result{Head: chain.Head(), Commits: chain.Commits()}, nil
}

func fileMode(p string) string {
	if path.Ext(p) == ".sh" {
		return models.ModeExecutable
	}
	return models.ModeFile
}
