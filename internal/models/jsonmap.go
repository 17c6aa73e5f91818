package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is an open-shape JSON document column. Preferences, voice profiles,
// connector config and item metadata all use it; accessors provide defaults
// on missing keys instead of forcing a schema.
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// GetString returns the string at key, or def when absent or not a string.
func (m JSONMap) GetString(key, def string) string {
	if m == nil {
		return def
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// GetBool returns the bool at key, or def when absent or not a bool.
func (m JSONMap) GetBool(key string, def bool) bool {
	if m == nil {
		return def
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// GetFloat returns the number at key, or def when absent. JSON numbers
// decode as float64; int is tolerated for values set in code.
func (m JSONMap) GetFloat(key string, def float64) float64 {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// GetMap returns the nested document at key, or an empty map.
func (m JSONMap) GetMap(key string) JSONMap {
	if m == nil {
		return JSONMap{}
	}
	switch v := m[key].(type) {
	case map[string]interface{}:
		return JSONMap(v)
	case JSONMap:
		return v
	}
	return JSONMap{}
}

// StringList is a JSON array of strings stored in one column.
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// Int64List is a JSON array of IDs stored in one column.
type Int64List []int64

// Value implements driver.Valuer
func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *Int64List) Scan(value interface{}) error {
	if value == nil {
		*l = Int64List{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Int64List", value)
	}
	if len(data) == 0 {
		*l = Int64List{}
		return nil
	}
	return json.Unmarshal(data, l)
}
