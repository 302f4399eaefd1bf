package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory_Urgency(t *testing.T) {
	ordered := []Category{
		CategoryObligatory,
		CategoryCriticalSuggest,
		CategorySuggested,
		CategoryOptional,
		CategorySameVersion,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Urgency(), ordered[i].Urgency(), ordered[i])
	}
	assert.Equal(t, CategoryNoURL.Urgency(), Category("").Urgency())
	assert.Greater(t, CategoryScrapeFailed.Urgency(), CategorySameVersion.Urgency())
}

func TestCategory_IsFailure(t *testing.T) {
	for _, c := range []Category{CategoryMissingPID, CategoryMissingAlias, CategoryNoURL, CategoryScrapeFailed} {
		assert.True(t, c.IsFailure(), c)
	}
	assert.False(t, CategorySameVersion.IsFailure())
	assert.False(t, CategoryObligatory.IsFailure())
}

func TestInventory_Hosts(t *testing.T) {
	inv := Inventory{"sw3": {}, "ap1": {}, "sw10": {}}
	assert.Equal(t, []string{"ap1", "sw10", "sw3"}, inv.Hosts())
}

func TestNewCVEFinding(t *testing.T) {
	f := NewCVEFinding("C9300-48P", "17.9.5")
	require.Len(t, f.CVEs, 4)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"C9300-48P","version":"17.9.5","cves":{"Critical":[],"High":[],"Medium":[],"Low":[]}}`, string(data))

	f.CVEs[SeverityHigh] = append(f.CVEs[SeverityHigh], CVEEntry{ID: "CVE-2018-0171"})
	assert.Equal(t, SeverityCounts{High: 1}, f.Counts())
}

func TestUpgradeSuggestion_NullableFields(t *testing.T) {
	data, err := json.Marshal(UpgradeSuggestion{Host: "sw1", CheckedAt: "2025-09-18T08:00:00Z"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"host":"sw1","explicit_recommendation":null,"recommendation":null,"upgrade_recommended":null,"checked_at":"2025-09-18T08:00:00Z"}`, string(data))
}

func TestEoLDetails_IsEmpty(t *testing.T) {
	assert.True(t, EoLDetails{NavTitle: "Catalyst 2960-X", NavSteps: []string{"search"}}.IsEmpty())
	assert.False(t, EoLDetails{Status: "End of Sale"}.IsEmpty())
}

func TestCVEEntry_FillLinks(t *testing.T) {
	e := CVEEntry{ID: "CVE-2018-0171"}
	e.FillLinks()
	assert.Equal(t, "https://nvd.nist.gov/vuln/detail/CVE-2018-0171", e.NVDURL)
	assert.Equal(t, "https://tools.cisco.com/security/center/search.x?search=CVE-2018-0171", e.AdvisoryURL)

	page := CVEEntry{ID: "CVE-2018-0171", AdvisoryURL: "https://example.test/cisco-sa-20180328-smi2"}
	page.FillLinks()
	assert.Equal(t, "https://example.test/cisco-sa-20180328-smi2", page.AdvisoryURL)

	blank := CVEEntry{}
	blank.FillLinks()
	assert.Empty(t, blank.NVDURL)
	assert.Empty(t, blank.AdvisoryURL)
}

func TestNumber(t *testing.T) {
	var p PerformanceInfo
	require.NoError(t, json.Unmarshal([]byte(`{"cpu_usage": null, "cpu_5_sec": " 12 ", "cpu_1_min": 7.5, "cpu_5_min": 3}`), &p))

	assert.Equal(t, Number(""), p.CPUUsage)
	assert.Equal(t, "12", p.CPU())
	assert.Equal(t, Number("7.5"), p.CPU1Min)
	assert.Nil(t, p.CPU1Min.Int())
	require.NotNil(t, p.CPU5Min.Int())
	assert.Equal(t, 3, *p.CPU5Min.Int())

	assert.Error(t, json.Unmarshal([]byte(`{"cpu_usage": true}`), &p))
	assert.Empty(t, PerformanceInfo{}.CPU())
}
