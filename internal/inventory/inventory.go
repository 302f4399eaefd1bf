// Package inventory reads the device inventory and PID alias map, and writes
// end-of-life details back into the inventory without disturbing other fields.
package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
	"github.com/yorozuya-cybersecurity/upgrade-advisor/pkg/utils"
)

var (
	ErrInventoryShape = errors.New("inventory must be a JSON object keyed by host name")
	ErrAliasShape     = errors.New("alias map must be a JSON object mapping PID to catalog term")
	ErrUnknownHost    = errors.New("host not present in inventory")
)

// LoadInventory reads path and returns the device records keyed by host.
func LoadInventory(path string) (schema.Inventory, error) {
	raw, err := loadObject(path)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s is not an object", ErrInventoryShape, path)
	}

	inv := make(schema.Inventory, len(raw))
	for host, body := range raw {
		if !isObject(body) {
			return nil, fmt.Errorf("%w: entry %q is not an object", ErrInventoryShape, host)
		}

		var rec schema.DeviceRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInventoryShape, host, err)
		}
		rec.Host = host
		inv[host] = rec
	}

	return inv, nil
}

// LoadAliases reads the PID alias map. A missing file yields an empty map.
func LoadAliases(path string) (schema.AliasMap, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return schema.AliasMap{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read alias map: %w", err)
	}

	var aliases schema.AliasMap
	if err := json.Unmarshal(data, &aliases); err != nil || aliases == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrAliasShape, path)
	}

	return aliases, true, nil
}

// SaveEoL replaces the eol_details key of each updated host. Every other
// field keeps the exact JSON value it was read with.
func SaveEoL(path string, updates map[string]schema.EoLDetails) error {
	if len(updates) == 0 {
		return nil
	}

	raw, err := loadObject(path)
	if err != nil {
		return err
	}

	for host, eol := range updates {
		body, ok := raw[host]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownHost, host)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
			return fmt.Errorf("%w: entry %q is not an object", ErrInventoryShape, host)
		}

		encoded, err := json.Marshal(eol)
		if err != nil {
			return fmt.Errorf("encode eol details for %s: %w", host, err)
		}
		fields["eol_details"] = encoded

		if raw[host], err = json.Marshal(fields); err != nil {
			return fmt.Errorf("encode record for %s: %w", host, err)
		}
	}

	return utils.WriteJSON(path, raw)
}

func loadObject(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInventoryShape, err)
	}

	return raw, nil
}

func isObject(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}
