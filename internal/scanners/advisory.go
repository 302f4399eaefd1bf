package scanners

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/retry"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/version"
)

const (
	DefaultTokenURL    = "https://id.cisco.com/oauth2/default/v1/token"
	DefaultAdvisoryURL = "https://apix.cisco.com/security/advisories/v2/OSType"

	advisoryPageURL = "https://tools.cisco.com/security/center/content/CiscoSecurityAdvisory/"
)

var (
	ErrNoCredentials    = errors.New("advisory client credentials not configured")
	ErrUnexpectedStatus = errors.New("unexpected advisory response status")
	ErrRateLimited      = errors.New("advisory service rate limited the request")
	ErrServerError      = errors.New("advisory service error")
)

// AdvisoryConfig holds the advisory API endpoints and client credentials.
type AdvisoryConfig struct {
	ClientID     string        `mapstructure:"client_id" json:"-"`
	ClientSecret string        `mapstructure:"client_secret" json:"-"`
	TokenURL     string        `mapstructure:"token_url" json:"token_url"`
	BaseURL      string        `mapstructure:"base_url" json:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout" json:"timeout"`
}

// HasCredentials reports whether both client id and secret are set.
func (c AdvisoryConfig) HasCredentials() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// Advisory is one entry of the advisory API response
type Advisory struct {
	AdvisoryID         string   `json:"advisoryId"`
	AdvisoryIdentifier string   `json:"advisoryIdentifier,omitempty"`
	Title              string   `json:"advisoryTitle"`
	SIR                string   `json:"sir"`
	CVEs               []string `json:"cves"`
}

// ID returns the advisory id, falling back to the advisory identifier.
func (a Advisory) ID() string {
	if a.AdvisoryID != "" {
		return a.AdvisoryID
	}
	return a.AdvisoryIdentifier
}

type advisoryResponse struct {
	Advisories []Advisory `json:"advisories"`
}

// AdvisorySource looks up the advisories affecting one platform/version.
type AdvisorySource interface {
	Advisories(ctx context.Context, platform, version string) ([]Advisory, error)
}

// AdvisoryClient queries the vendor advisory API with an OAuth2 client-credentials token.
type AdvisoryClient struct {
	cfg    AdvisoryConfig
	client *http.Client
	policy retry.Policy
	log    zerolog.Logger
}

var _ AdvisorySource = (*AdvisoryClient)(nil)

// NewAdvisoryClient returns ErrNoCredentials when id or secret is missing.
func NewAdvisoryClient(ctx context.Context, cfg AdvisoryConfig, policy retry.Policy, log logger.Logger) (*AdvisoryClient, error) {
	if !cfg.HasCredentials() {
		return nil, ErrNoCredentials
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAdvisoryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	httpClient := cc.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return &AdvisoryClient{
		cfg:    cfg,
		client: httpClient,
		policy: policy,
		log:    log.WithComponent("advisory"),
	}, nil
}

// Advisories tries each spelling of the version in turn and returns the first
// non-empty advisory list. When every spelling comes back empty or failed,
// one last query uses the raw version string.
func (c *AdvisoryClient) Advisories(ctx context.Context, platform, ver string) ([]Advisory, error) {
	raw := strings.TrimSpace(ver)
	if raw == "" {
		return nil, nil
	}

	for _, candidate := range version.VariantsFor(platform, raw) {
		advs, err := c.fetch(ctx, platform, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Debug().Err(err).
				Str("platform", platform).
				Str("version", candidate).
				Msg("Advisory query failed; trying next spelling")
			continue
		}
		if len(advs) > 0 {
			return advs, nil
		}
	}

	return c.fetch(ctx, platform, raw)
}

func (c *AdvisoryClient) fetch(ctx context.Context, platform, ver string) ([]Advisory, error) {
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + url.PathEscape(platform) +
		"?" + url.Values{"version": {ver}}.Encode()

	advs, _, err := retry.Do(ctx, c.policy, func(ctx context.Context) ([]Advisory, error) {
		return c.get(ctx, endpoint)
	}, func(attempt int, err error, wait time.Duration) {
		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Str("platform", platform).
			Str("version", ver).
			Msg("Advisory query failed; retrying")
	})

	return advs, err
}

func (c *AdvisoryClient) get(ctx context.Context, endpoint string) ([]Advisory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, retry.Permanent(fmt.Errorf("fetch token: %w", err))
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		// the API answers 404 when a version has no advisories
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d", ErrServerError, resp.StatusCode)
	default:
		return nil, retry.Permanent(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	var body advisoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode advisories: %w", err))
	}

	return body.Advisories, nil
}
