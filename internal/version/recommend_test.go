package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

func TestParseRelease(t *testing.T) {
	tests := []struct {
		raw         string
		clean       string
		explicit    bool
		designation string
	}{
		{raw: "15.0(2)SE11", clean: "15.0(2)SE11"},
		{raw: "15.0(2)SE11 (recommended)", clean: "15.0(2)SE11", explicit: true},
		{raw: "15.0(2)SE11 (Recommended) ", clean: "15.0(2)SE11", explicit: true},
		{raw: "15.0(2)SE11 (recomended)", clean: "15.0(2)SE11", explicit: true},
		{raw: "15.0(2)SE11(MD)", clean: "15.0(2)SE11", designation: "MD"},
		{raw: "15.0(2)SE11 ( df )", clean: "15.0(2)SE11", designation: "DF"},
		{raw: "15.0(2)SE11(MD) (recommended)", clean: "15.0(2)SE11", explicit: true, designation: "MD"},
		{raw: "15.0(2)SE11)(MD)", clean: "15.0(2)SE11)", designation: "MD"},
		{raw: "15.0(2)SE11 (XX)", clean: "15.0(2)SE11 (XX)"},
		{raw: "", clean: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r := ParseRelease(tt.raw)
			assert.Equal(t, tt.clean, r.Clean)
			assert.Equal(t, tt.explicit, r.Explicit)
			assert.Equal(t, tt.designation, r.Designation)
			assert.Equal(t, tt.raw, r.Raw)
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		current  string
		latest   string
		want     schema.Category
		upgrade  *bool
	}{
		{
			name: "same version", platform: "nxos",
			current: "10.3(3)", latest: "10.3(3)",
			want: schema.CategorySameVersion, upgrade: boolPtr(false),
		},
		{
			name: "same after normalization", platform: "ios",
			current: "15.0.2-SE11", latest: "15.0(2)SE11",
			want: schema.CategorySameVersion, upgrade: boolPtr(false),
		},
		{
			name: "same with designation only", platform: "ios",
			current: "15.0(2)SE11", latest: "15.0(2)SE11 (MD)",
			want: schema.CategorySameVersion, upgrade: boolPtr(false),
		},
		{
			name: "explicit marker wins over equal-looking input", platform: "ios",
			current: "15.0(2)SE10", latest: "15.0(2)SE10 (recommended)",
			want: schema.CategoryObligatory, upgrade: boolPtr(true),
		},
		{
			name: "explicit marker wins over DF", platform: "ios",
			current: "15.0(2)SE10", latest: "15.0(2)SE11(DF) (recommended)",
			want: schema.CategoryObligatory, upgrade: boolPtr(true),
		},
		{
			name: "DF", platform: "ios",
			current: "15.0(2)SE10", latest: "15.0(2)SE11 (DF)",
			want: schema.CategoryCriticalSuggest, upgrade: boolPtr(true),
		},
		{
			name: "MD with dash current", platform: "ios",
			current: "15.0.2-SE10", latest: "15.0(2)SE11)(MD)",
			want: schema.CategorySuggested, upgrade: boolPtr(true),
		},
		{
			name: "GD", platform: "ios",
			current: "15.0(2)SE10", latest: "15.0(2)SE11 (GD)",
			want: schema.CategorySuggested, upgrade: boolPtr(true),
		},
		{
			name: "ED is optional", platform: "ios",
			current: "15.0(2)SE10", latest: "15.0(2)SE11 (ED)",
			want: schema.CategoryOptional, upgrade: boolPtr(false),
		},
		{
			name: "no tags is optional", platform: "nxos",
			current: "10.2(5)", latest: "10.3(3)",
			want: schema.CategoryOptional, upgrade: boolPtr(false),
		},
		{
			name: "missing current", platform: "ios",
			current: "", latest: "15.0(2)SE11 (recommended)",
		},
		{
			name: "missing latest", platform: "ios",
			current: "15.0(2)SE11", latest: "",
		},
		{
			name: "marker only", platform: "ios",
			current: "15.0(2)SE11", latest: "(recommended)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.platform, tt.current, ParseRelease(tt.latest))
			assert.Equal(t, tt.want, d.Category)
			if tt.upgrade == nil {
				assert.True(t, d.Indeterminate())
				assert.Nil(t, d.Upgrade)
				return
			}
			require.NotNil(t, d.Upgrade)
			assert.Equal(t, *tt.upgrade, *d.Upgrade)
		})
	}
}

// Every combination of explicit marker, designation and textual equality.
func TestDecide_PriorityTable(t *testing.T) {
	designations := []string{"", "MD", "GD", "DF", "ED", "LD", "F", "M"}

	for _, explicit := range []bool{false, true} {
		for _, desig := range designations {
			for _, equal := range []bool{false, true} {
				latest := Release{Clean: "15.0(2)SE11", Explicit: explicit, Designation: desig}
				current := "15.0(2)SE10"
				if equal {
					current = "15.0.2-SE11"
				}

				var want schema.Category
				switch {
				case equal && !explicit:
					want = schema.CategorySameVersion
				case explicit:
					want = schema.CategoryObligatory
				case desig == "DF":
					want = schema.CategoryCriticalSuggest
				case desig == "MD" || desig == "GD":
					want = schema.CategorySuggested
				default:
					want = schema.CategoryOptional
				}

				d := Decide("ios", current, latest)
				assert.Equal(t, want, d.Category, "explicit=%v desig=%q equal=%v", explicit, desig, equal)
			}
		}
	}
}

func boolPtr(b bool) *bool { return &b }
