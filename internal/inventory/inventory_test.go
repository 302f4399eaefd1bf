package inventory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

const devicesJSON = `{
  "sw1": {
    "model": "C9300-48P",
    "platform": "iosxe",
    "version": "17.9.4",
    "interface_summary": {"connected": "12"},
    "eol_details": {"status": "Available"}
  },
  "sw2": {"model": null, "platform": "ios", "version": "15.0.2-SE11"}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadInventory(t *testing.T) {
	inv, err := LoadInventory(writeFile(t, "devices.json", devicesJSON))
	require.NoError(t, err)

	require.Len(t, inv, 2)
	assert.Equal(t, []string{"sw1", "sw2"}, inv.Hosts())

	sw1 := inv["sw1"]
	assert.Equal(t, "sw1", sw1.Host)
	assert.Equal(t, "C9300-48P", sw1.Model)
	assert.Equal(t, "iosxe", sw1.Platform)
	require.NotNil(t, sw1.EoL)
	assert.Equal(t, "Available", sw1.EoL.Status)

	assert.Empty(t, inv["sw2"].Model)
	assert.Nil(t, inv["sw2"].EoL)
}

func TestLoadInventory_WrongShape(t *testing.T) {
	for name, content := range map[string]string{
		"list":         `[{"host": "sw1"}]`,
		"null":         `null`,
		"scalar entry": `{"sw1": "C9300"}`,
		"garbage":      `{"sw1":`,
		"bad field":    `{"sw1": {"model": 12}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadInventory(writeFile(t, "devices.json", content))
			require.ErrorIs(t, err, ErrInventoryShape)
		})
	}
}

func TestLoadInventory_Missing(t *testing.T) {
	_, err := LoadInventory(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadAliases(t *testing.T) {
	aliases, found, err := LoadAliases(writeFile(t, "pid_alias.json", `{"C9300-48P": "Catalyst 9300 Series"}`))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Catalyst 9300 Series", aliases["C9300-48P"])

	aliases, found, err = LoadAliases(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, aliases)

	_, _, err = LoadAliases(writeFile(t, "pid_alias.json", `["C9300"]`))
	require.ErrorIs(t, err, ErrAliasShape)
}

func TestSaveEoL_PreservesOtherFields(t *testing.T) {
	path := writeFile(t, "devices.json", devicesJSON)

	err := SaveEoL(path, map[string]schema.EoLDetails{
		"sw2": {EndOfSaleDate: "31-Oct-2021", Status: "End of Sale", AliasUsed: "Catalyst 2960"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.JSONEq(t, `{"connected": "12"}`, string(raw["sw1"]["interface_summary"]))
	assert.JSONEq(t, `{"status": "Available"}`, string(raw["sw1"]["eol_details"]))
	assert.JSONEq(t, `{"end_of_sale_date": "31-Oct-2021", "status": "End of Sale", "alias_used": "Catalyst 2960"}`,
		string(raw["sw2"]["eol_details"]))

	inv, err := LoadInventory(path)
	require.NoError(t, err)
	assert.Equal(t, "End of Sale", inv["sw2"].EoL.Status)
	assert.Equal(t, "15.0.2-SE11", inv["sw2"].Version)
}

func TestSaveEoL_UnknownHost(t *testing.T) {
	path := writeFile(t, "devices.json", devicesJSON)

	err := SaveEoL(path, map[string]schema.EoLDetails{"ghost": {Status: "x"}})
	require.ErrorIs(t, err, ErrUnknownHost)
}
