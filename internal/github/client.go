package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
)

// GitHubClient implements ObjectStore against the GitHub REST API. All calls
// go through a retrying transport; logical 4xx failures surface as
// *GitHubError.
type GitHubClient struct {
	gh        *gh.Client
	transport *retryTransport
	logger    *logrus.Logger
}

// ClientOption allows configuring the GitHub client
type ClientOption func(*clientOptions)

type clientOptions struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
}

// WithRetryConfig configures retry behavior
func WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.maxRetries = maxRetries
		o.initialBackoff = initialBackoff
		o.maxBackoff = maxBackoff
	}
}

// NewGitHubClient creates a new GitHub client with the given token and options
func NewGitHubClient(token string, cfg *config.GitHubConfig, logger *logrus.Logger, opts ...ClientOption) (*GitHubClient, error) {
	if cfg == nil {
		cfg = config.DefaultGitHubConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	options := &clientOptions{
		maxRetries:     cfg.RateLimit.MaxRetries,
		initialBackoff: cfg.RateLimit.InitialBackoff,
		maxBackoff:     cfg.RateLimit.MaxBackoff,
		multiplier:     cfg.RateLimit.RetryMultiplier,
	}
	for _, opt := range opts {
		opt(options)
	}

	transport := &retryTransport{
		base:           http.DefaultTransport,
		logger:         logger,
		apiVersion:     cfg.APIVersion,
		maxRetries:     options.maxRetries,
		initialBackoff: options.initialBackoff,
		maxBackoff:     options.maxBackoff,
		multiplier:     options.multiplier,
		attemptTimeout: cfg.RequestTimeout,
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: transport},
	}

	client := gh.NewClient(httpClient)
	if cfg.APIBaseURL != "" {
		base := cfg.APIBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		baseURL, err := url.Parse(base)
		if err != nil {
			return nil, NewValidationError("api base url", cfg.APIBaseURL)
		}
		client.BaseURL = baseURL
	}

	return &GitHubClient{
		gh:        client,
		transport: transport,
		logger:    logger,
	}, nil
}

// RateLimit returns the most recently observed rate limit headers.
func (c *GitHubClient) RateLimit() RateLimitInfo {
	return c.transport.RateLimit()
}

// ClientFactory builds an ObjectStore for one caller credential.
type ClientFactory func(token string) (ObjectStore, error)

// NewClientFactory returns a ClientFactory that creates GitHubClients sharing
// cfg and logger.
func NewClientFactory(cfg *config.GitHubConfig, logger *logrus.Logger, opts ...ClientOption) ClientFactory {
	return func(token string) (ObjectStore, error) {
		if token == "" {
			return nil, NewValidationError("token", "empty")
		}
		return NewGitHubClient(token, cfg, logger, opts...)
	}
}

func (c *GitHubClient) logCall(ctx context.Context, op string, fields logrus.Fields) *logrus.Entry {
	entry := c.logger.WithContext(ctx).WithField("op", op)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	return entry
}
