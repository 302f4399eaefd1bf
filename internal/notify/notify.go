// Package notify sends the per-batch digest once a run finishes.
package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/pkg/utils"
)

// Config selects and configures the notifier.
type Config struct {
	SlackToken   string `mapstructure:"slack_token" json:"-"`
	SlackChannel string `mapstructure:"slack_channel" json:"slack_channel"`
	// SlackAPIURL overrides the Slack API base URL.
	SlackAPIURL string `mapstructure:"slack_api_url" json:"slack_api_url,omitempty"`
}

// Digest is what a notifier is asked to deliver.
type Digest struct {
	BatchID string
	Text    string
	Summary schema.BatchSummary
}

// Notifier delivers a batch digest.
type Notifier interface {
	Notify(ctx context.Context, d Digest) error
}

// Nop discards every digest.
type Nop struct{}

func (Nop) Notify(context.Context, Digest) error { return nil }

// Slack posts the digest text to one channel.
type Slack struct {
	client  *slack.Client
	channel string
	log     zerolog.Logger
}

// New returns a Slack notifier when a token and channel are configured and
// Nop otherwise.
func New(cfg Config, log logger.Logger) Notifier {
	if cfg.SlackToken == "" || cfg.SlackChannel == "" {
		log.Debug().Msg("Slack not configured; notifications disabled")
		return Nop{}
	}

	var opts []slack.Option
	if cfg.SlackAPIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(cfg.SlackAPIURL, "/")+"/"))
	}

	return &Slack{
		client:  slack.New(cfg.SlackToken, opts...),
		channel: cfg.SlackChannel,
		log:     log.WithComponent("notify"),
	}
}

func (s *Slack) Notify(ctx context.Context, d Digest) error {
	_, ts, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(fmt.Sprintf("*Upgrade suggestions (batch %s)*\n```\n%s\n```", d.BatchID, d.Text), false),
	)
	if err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}

	s.log.Info().Str("channel", s.channel).Str("ts", ts).Str("batch", d.BatchID).Msg("Digest posted")
	return nil
}

func rank(c *schema.Category) int {
	if c == nil {
		return schema.Category("").Urgency()
	}
	return c.Urgency()
}

func label(c *schema.Category) string {
	if c == nil {
		return "undetermined"
	}
	return string(*c)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatDigest renders the plain-text digest of one batch: hosts with
// critical CVEs first, then by recommendation urgency.
func FormatDigest(batchID string, suggestions []schema.UpgradeSuggestion, cves schema.CVEReport) string {
	rows := append([]schema.UpgradeSuggestion(nil), suggestions...)
	crit := func(host string) int { return cves[host].Counts().Critical }

	sort.SliceStable(rows, func(i, j int) bool {
		ci, cj := crit(rows[i].Host), crit(rows[j].Host)
		if ci != cj {
			return ci > cj
		}
		ri, rj := rank(rows[i].Recommendation), rank(rows[j].Recommendation)
		if ri != rj {
			return ri < rj
		}
		return rows[i].Host < rows[j].Host
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Latest upgrade suggestion batch: %s\n", batchID)
	fmt.Fprintf(&b, "Devices in this batch: %d\n\n", len(rows))
	b.WriteString("Per-device details:\n")

	critDevices := 0
	recCounts := make(map[string]int)

	for _, s := range rows {
		counts := cves[s.Host].Counts()
		if counts.Critical > 0 {
			critDevices++
		}
		rec := label(s.Recommendation)
		recCounts[rec]++

		badge := ""
		if counts.Critical > 0 {
			badge = " CRITICAL"
		}
		fmt.Fprintf(&b, "- %s [%s] PID=%s\n", s.Host, orDash(s.Platform), orDash(s.PID))
		fmt.Fprintf(&b, "    Version: %s -> %s | Recommendation: %s%s\n", orDash(s.CurrentVersion), orDash(s.RecommendedVersion), rec, badge)
		fmt.Fprintf(&b, "    CVEs: Critical=%d, High=%d, Medium=%d, Low=%d\n", counts.Critical, counts.High, counts.Medium, counts.Low)
		if s.FinalURL != "" {
			fmt.Fprintf(&b, "    Ref: %s\n", s.FinalURL)
		}
	}

	b.WriteString("\nSummary:\n")
	fmt.Fprintf(&b, "  Devices with Critical CVEs: %d\n", critDevices)

	keys := make([]string, 0, len(recCounts))
	for k := range recCounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if recCounts[keys[i]] != recCounts[keys[j]] {
			return recCounts[keys[i]] > recCounts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %d\n", k, recCounts[k])
	}

	return b.String()
}

// Archive keeps a batch-stamped copy of the digest under dir.
func Archive(dir, batchID, text string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create notification dir: %w", err)
	}
	path := filepath.Join(dir, "notification_"+utils.SafeName(batchID)+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write notification: %w", err)
	}
	return path, nil
}
