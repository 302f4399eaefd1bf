//go:generate mockgen -destination=mock_catalog.go -package=catalog github.com/yorozuya-cybersecurity/upgrade-advisor/internal/catalog Catalog,EoLSource

// Package catalog navigates the vendor software catalog and support site.
// The orchestrator only sees the Catalog and EoLSource interfaces; Browser is
// the chromedp-backed implementation.
package catalog

import (
	"context"
	"errors"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

var (
	ErrBlocked         = errors.New("catalog blocked the request")
	ErrElementNotFound = errors.New("no selector matched")
	ErrNoNavigation    = errors.New("page did not navigate")
	ErrEmptyVersion    = errors.New("latest version text is empty")
)

// VersionInfo is what a release page tells us about the latest software
type VersionInfo struct {
	SwitchType     string `json:"switch_type"`
	LatestVersion  string `json:"latest_version"`
	FinalURL       string `json:"final_url"`
	SelectedLabel  string `json:"selected_label,omitempty"`
	ScreenshotFile string `json:"screenshot_file,omitempty"`
}

// Catalog resolves a search term to a download page and reads its latest release.
type Catalog interface {
	ResolveURL(ctx context.Context, term string) (string, error)
	ScrapeLatest(ctx context.Context, url string) (*VersionInfo, error)
}

// EoLSource looks up end-of-sale / end-of-support details for a product.
type EoLSource interface {
	LookupEoL(ctx context.Context, term string) (*schema.EoLDetails, error)
}
