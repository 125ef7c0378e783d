package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/github"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
	"github.com/Kamar-Folarin/repo-provisioner/internal/spec"
	"github.com/Kamar-Folarin/repo-provisioner/internal/utils"
)

// Provisioner is the pipeline surface the API drives.
type Provisioner interface {
	ValidateSpec(ctx context.Context, candidate map[string]any) (*models.RepoSpec, error)
	BuildFromSpec(ctx context.Context, scenarioID string, repoSpec *models.RepoSpec, credential string) (string, error)
	ForkWithHistory(ctx context.Context, assessmentID, sourceRepoURL, credential string) (string, error)
}

// RunReader reads the run ledger.
type RunReader interface {
	Get(ctx context.Context, id string) (*models.ProvisionRun, error)
	List(ctx context.Context, subjectID string) ([]*models.ProvisionRun, error)
}

type Handler struct {
	provisioner Provisioner
	runs        RunReader
	registry    *config.Registry
	logger      *logrus.Logger
}

func NewHandler(provisioner Provisioner, runs RunReader, registry *config.Registry, logger *logrus.Logger) *Handler {
	return &Handler{
		provisioner: provisioner,
		runs:        runs,
		registry:    registry,
		logger:      logger,
	}
}

// BuildRequest is the body of a scenario build.
type BuildRequest struct {
	Spec map[string]any `json:"spec" binding:"required"`
}

// ForkRequest is the body of an assessment fork.
type ForkRequest struct {
	SourceRepoURL string `json:"source_repo_url" binding:"required"`
}

// ValidateSpec validates a candidate spec without provisioning anything.
func (h *Handler) ValidateSpec(c *gin.Context) {
	var candidate map[string]any
	if err := c.ShouldBindJSON(&candidate); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	validated, err := h.provisioner.ValidateSpec(c.Request.Context(), candidate)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ValidationResponse{Valid: true, Spec: validated})
}

// BuildScenario validates the request spec and builds the scenario repository.
func (h *Handler) BuildScenario(c *gin.Context) {
	scenarioID := c.Param("id")
	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	validated, err := h.provisioner.ValidateSpec(ctx, req.Spec)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	url, err := h.provisioner.BuildFromSpec(ctx, scenarioID, validated, bearerToken(c))
	if err != nil {
		h.logger.WithError(err).WithField("scenario_id", scenarioID).Error("Failed to build scenario")
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ProvisionResponse{SubjectID: scenarioID, RepoURL: url})
}

// ForkAssessment copies a scenario repository into an assessment repository.
func (h *Handler) ForkAssessment(c *gin.Context) {
	assessmentID := c.Param("id")
	var req ForkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if !utils.IsValidRepoURL(req.SourceRepoURL) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid source repository URL"})
		return
	}

	url, err := h.provisioner.ForkWithHistory(c.Request.Context(), assessmentID, req.SourceRepoURL, bearerToken(c))
	if err != nil {
		h.logger.WithError(err).WithField("assessment_id", assessmentID).Error("Failed to fork assessment")
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ProvisionResponse{SubjectID: assessmentID, RepoURL: url})
}

func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.runs.List(c.Request.Context(), c.Query("subject"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	if runs == nil {
		runs = []*models.ProvisionRun{}
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) ListScaffolds(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

func (h *Handler) respondWithError(c *gin.Context, err error) {
	if vErr, ok := spec.AsValidationError(err); ok {
		c.JSON(http.StatusUnprocessableEntity, ValidationResponse{
			Valid:      false,
			Phase:      string(vErr.Phase),
			Violations: vErr.Violations,
			Error:      vErr.Error(),
		})
		return
	}
	c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var busy *errors.RunInProgressError
	switch {
	case stderrors.As(err, &busy):
		return http.StatusConflict
	case stderrors.Is(err, context.Canceled):
		return 499
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsRateLimit(err), github.IsRateLimitError(err):
		return http.StatusTooManyRequests
	case errors.IsRemoteFatal(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// bearerToken returns the caller's credential from the Authorization header,
// or "" to use the server's default token.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	if scheme, token, ok := strings.Cut(header, " "); ok && (strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "token")) {
		return strings.TrimSpace(token)
	}
	return header
}
