package lookup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/catalog"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/ledger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/logger"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/retry"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

const batch = "2025-09-18T08:00:00Z"

var errTransient = errors.New("page did not load")

func testConfig() Config {
	p := retry.Policy{MaxAttempts: 3, Base: 2, Unit: time.Microsecond, Cap: time.Millisecond}
	return Config{URLRetry: p, ScrapeRetry: p, EoLRetry: p}
}

func category(t *testing.T, s schema.UpgradeSuggestion) schema.Category {
	t.Helper()
	require.NotNil(t, s.Recommendation)
	return *s.Recommendation
}

func TestRun_ResolveFailuresBecomeNoURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	inv := schema.Inventory{
		"sw1": {Model: "WS-C2960X-48FPD-L", Platform: "ios", Version: "15.2(7)E4"},
		"sw2": {Model: "C9300-48P", Platform: "iosxe", Version: "17.3.4"},
	}
	aliases := schema.AliasMap{
		"WS-C2960X-48FPD-L": "Catalyst 2960-X",
		"C9300-48P":         "Catalyst 9300",
	}

	cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 2960-X").Return("", errTransient).Times(3)

	cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 9300").Return("https://example.test/download/9300", nil)
	cat.EXPECT().ScrapeLatest(gomock.Any(), "https://example.test/download/9300").Return(&catalog.VersionInfo{
		LatestVersion: "17.9.5(MD)",
		FinalURL:      "https://example.test/download/9300/release/17.9.5",
		SwitchType:    "Catalyst 9300 Series",
	}, nil)

	o := New(cat, testConfig(), logger.NewTestLogger())
	out, err := o.Run(context.Background(), batch, inv, aliases)
	require.NoError(t, err)
	require.Len(t, out, 2)

	sw1 := out[0]
	assert.Equal(t, "sw1", sw1.Host)
	assert.Equal(t, schema.CategoryNoURL, category(t, sw1))
	assert.Nil(t, sw1.UpgradeRecommended)
	assert.Equal(t, "no url", sw1.Notes)
	assert.Equal(t, batch, sw1.CheckedAt)

	sw2 := out[1]
	assert.Equal(t, "sw2", sw2.Host)
	assert.Equal(t, schema.CategorySuggested, category(t, sw2))
	require.NotNil(t, sw2.UpgradeRecommended)
	assert.True(t, *sw2.UpgradeRecommended)
	assert.Equal(t, "17.9.5", sw2.RecommendedVersion)
	assert.Equal(t, "MD", sw2.ReleaseDesignation)
	assert.Equal(t, "17.9.5(MD)", sw2.ScrapedVersionRaw)
	assert.Equal(t, "https://example.test/download/9300/release/17.9.5", sw2.FinalURL)
	assert.Equal(t, "Catalyst 9300", sw2.Alias)
	require.NotNil(t, sw2.ExplicitRecommendation)
	assert.False(t, *sw2.ExplicitRecommendation)
}

func TestRun_MissingPIDAndAlias(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	inv := schema.Inventory{
		"a-nopid":  {Model: "  ", Platform: "ios", Version: "15.0(2)SE10"},
		"b-noalia": {Model: "C1000-24T-4G-L", Platform: "ios", Version: "15.2(7)E4"},
	}

	o := New(cat, testConfig(), logger.NewTestLogger())
	out, err := o.Run(context.Background(), batch, inv, schema.AliasMap{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, schema.CategoryMissingPID, category(t, out[0]))
	assert.Empty(t, out[0].PID)
	assert.Equal(t, "device missing PID (model)", out[0].Notes)

	assert.Equal(t, schema.CategoryMissingAlias, category(t, out[1]))
	assert.Equal(t, "C1000-24T-4G-L", out[1].PID)
	assert.Nil(t, out[1].UpgradeRecommended)
	assert.Nil(t, out[1].ExplicitRecommendation)
}

func TestRun_ScrapeFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	url := "https://example.test/download/282440588/type"
	cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 1000").Return(url, nil)
	cat.EXPECT().ScrapeLatest(gomock.Any(), url).Return(nil, catalog.ErrEmptyVersion).Times(3)

	inv := schema.Inventory{"sw1": {Model: "C1000-24T-4G-L", Platform: "ios", Version: "15.2(7)E4"}}
	aliases := schema.AliasMap{"C1000-24T-4G-L": "Catalyst 1000"}

	out, err := New(cat, testConfig(), logger.NewTestLogger()).Run(context.Background(), batch, inv, aliases)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, schema.CategoryScrapeFailed, category(t, out[0]))
	assert.Equal(t, url, out[0].FinalURL)
}

func TestRun_RetrySucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	url := "https://example.test/download/2960x"
	gomock.InOrder(
		cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 2960-X").Return("", errTransient),
		cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 2960-X").Return(url, nil),
	)
	cat.EXPECT().ScrapeLatest(gomock.Any(), url).Return(&catalog.VersionInfo{LatestVersion: "15.2(7)E13 (recommended)"}, nil)

	inv := schema.Inventory{"sw1": {Model: "WS-C2960X-48FPD-L", Platform: "ios", Version: "15.2.7-E4"}}
	aliases := schema.AliasMap{"WS-C2960X-48FPD-L": "Catalyst 2960-X"}

	out, err := New(cat, testConfig(), logger.NewTestLogger()).Run(context.Background(), batch, inv, aliases)
	require.NoError(t, err)

	assert.Equal(t, schema.CategoryObligatory, category(t, out[0]))
	require.NotNil(t, out[0].ExplicitRecommendation)
	assert.True(t, *out[0].ExplicitRecommendation)
	assert.Equal(t, "15.2(7)E13", out[0].RecommendedVersion)
	// no final URL reported by the scraper
	assert.Equal(t, url, out[0].FinalURL)
}

func TestRun_CacheSharedAcrossHosts(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	url := "https://example.test/download/9200"
	cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 9200").Return(url, nil).Times(1)
	cat.EXPECT().ScrapeLatest(gomock.Any(), url).Return(&catalog.VersionInfo{LatestVersion: "17.9.5"}, nil).Times(1)
	cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 3850").Return("", errTransient).Times(3)

	inv := schema.Inventory{
		"sw1": {Model: "C9200L-24P-4G", Platform: "iosxe", Version: "17.9.5"},
		"sw2": {Model: "C9200L-48P-4X", Platform: "iosxe", Version: "17.6.1"},
		"sw3": {Model: "WS-C3850-24P", Platform: "iosxe", Version: "16.12.4"},
		"sw4": {Model: "WS-C3850-24P", Platform: "iosxe", Version: "16.12.4"},
	}
	aliases := schema.AliasMap{
		"C9200L-24P-4G": "Catalyst 9200",
		"C9200L-48P-4X": "Catalyst 9200",
		"WS-C3850-24P":  "Catalyst 3850",
	}

	out, err := New(cat, testConfig(), logger.NewTestLogger()).Run(context.Background(), batch, inv, aliases)
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, schema.CategorySameVersion, category(t, out[0]))
	assert.Equal(t, schema.CategoryOptional, category(t, out[1]))
	assert.Equal(t, schema.CategoryNoURL, category(t, out[2]))
	assert.Equal(t, schema.CategoryNoURL, category(t, out[3]))
}

func TestRun_IndeterminateWhenCurrentMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	cat.EXPECT().ResolveURL(gomock.Any(), "Nexus 9000").Return("https://example.test/download/n9k", nil)
	cat.EXPECT().ScrapeLatest(gomock.Any(), gomock.Any()).Return(&catalog.VersionInfo{LatestVersion: "10.3(3)"}, nil)

	inv := schema.Inventory{"nx1": {Model: "N9K-C93180YC-FX", Platform: "nxos"}}
	aliases := schema.AliasMap{"N9K-C93180YC-FX": "Nexus 9000"}

	out, err := New(cat, testConfig(), logger.NewTestLogger()).Run(context.Background(), batch, inv, aliases)
	require.NoError(t, err)

	assert.Nil(t, out[0].Recommendation)
	assert.Nil(t, out[0].UpgradeRecommended)
	assert.Equal(t, "10.3(3)", out[0].RecommendedVersion)
}

func TestRun_MirrorsInventoryEoL(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	inv := schema.Inventory{"sw1": {
		Model:    "WS-C2960X-48FPD-L",
		Platform: "ios",
		Version:  "15.2(7)E4",
		EoL: &schema.EoLDetails{
			EndOfSaleDate:    "31-Oct-2022",
			EndOfSupportDate: "31-Oct-2027",
			Status:           "End of Sale",
		},
	}}

	out, err := New(cat, testConfig(), logger.NewTestLogger()).Run(context.Background(), batch, inv, schema.AliasMap{})
	require.NoError(t, err)

	assert.Equal(t, schema.EoLDetails{
		EndOfSaleDate:    "31-Oct-2022",
		EndOfSupportDate: "31-Oct-2027",
		Status:           "End of Sale",
	}, out[0].MirroredEoL())
}

func TestRun_AuditLedger(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	url := "https://example.test/download/9300"
	cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 9300").Return(url, nil)
	cat.EXPECT().ScrapeLatest(gomock.Any(), url).Return(&catalog.VersionInfo{LatestVersion: "17.9.5"}, nil)

	inv := schema.Inventory{
		"sw1": {Model: "C9300-48P", Platform: "iosxe", Version: "17.9.5"},
		"sw2": {Model: "C9300-48P", Platform: "iosxe", Version: "17.9.5"},
	}
	aliases := schema.AliasMap{"C9300-48P": "Catalyst 9300"}

	path := filepath.Join(t.TempDir(), "cisco_urls.jsonl")
	o := New(cat, testConfig(), logger.NewTestLogger(), WithAuditLedger(path), WithRunID("run-1"))

	_, err := o.Run(context.Background(), batch, inv, aliases)
	require.NoError(t, err)

	res, err := ledger.Read[schema.URLAuditEntry](path)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "run-1", res.Records[0].RunID)
	assert.Equal(t, batch, res.Records[0].BatchTS)
	assert.Equal(t, "Catalyst 9300", res.Records[0].Alias)
	assert.Equal(t, url, res.Records[0].URL)
}

func TestRun_ContextCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cat.EXPECT().ResolveURL(gomock.Any(), "Catalyst 9300").DoAndReturn(func(context.Context, string) (string, error) {
		cancel()
		return "", context.Canceled
	})

	inv := schema.Inventory{
		"sw1": {Model: "C9300-48P", Platform: "iosxe", Version: "17.9.5"},
		"sw2": {Model: "C9300-48P", Platform: "iosxe", Version: "17.9.5"},
	}
	aliases := schema.AliasMap{"C9300-48P": "Catalyst 9300"}

	out, err := New(cat, testConfig(), logger.NewTestLogger()).Run(ctx, batch, inv, aliases)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestRun_Pacing(t *testing.T) {
	ctrl := gomock.NewController(t)
	cat := catalog.NewMockCatalog(ctrl)

	cat.EXPECT().ResolveURL(gomock.Any(), gomock.Any()).Return("https://example.test/download/x", nil).Times(2)
	cat.EXPECT().ScrapeLatest(gomock.Any(), gomock.Any()).Return(&catalog.VersionInfo{LatestVersion: "17.9.5"}, nil).Times(1)

	inv := schema.Inventory{
		"sw1": {Model: "A", Platform: "iosxe", Version: "17.9.5"},
		"sw2": {Model: "B", Platform: "iosxe", Version: "17.9.5"},
	}
	aliases := schema.AliasMap{"A": "Alpha", "B": "Beta"}

	cfg := testConfig()
	cfg.Pacing = 50 * time.Millisecond

	start := time.Now()
	_, err := New(cat, cfg, logger.NewTestLogger()).Run(context.Background(), batch, inv, aliases)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
