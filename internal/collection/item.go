// Package collection holds the ordered, identity-unique item store behind a
// paged table.
package collection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Item is one row. Fields values are string, float64 or json.RawMessage.
// Items are treated as immutable once handed to a Store.
type Item struct {
	ID     string
	Fields map[string]any
}

var ErrMissingID = errors.New("item has no id")

func NewItem(id string, fields map[string]any) Item {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		switch n := v.(type) {
		case int:
			copied[k] = float64(n)
		case int64:
			copied[k] = float64(n)
		default:
			copied[k] = v
		}
	}
	return Item{ID: id, Fields: copied}
}

// String returns a string field.
func (i Item) String(field string) (string, bool) {
	v, ok := i.Fields[field].(string)
	return v, ok
}

// Number returns a numeric field.
func (i Item) Number(field string) (float64, bool) {
	v, ok := i.Fields[field].(float64)
	return v, ok
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode item: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("decode item: %w", ErrMissingID)
	}
	idRaw, ok := raw["id"]
	if !ok {
		return fmt.Errorf("decode item: %w", ErrMissingID)
	}
	id, err := decodeID(idRaw)
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(raw)-1)
	for key, value := range raw {
		if key == "id" {
			continue
		}
		fields[key] = decodeValue(value)
	}
	i.ID = id
	i.Fields = fields
	return nil
}

func (i Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(i.Fields)+1)
	for k, v := range i.Fields {
		out[k] = v
	}
	out["id"] = i.ID
	return json.Marshal(out)
}

func decodeID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("decode item: %w", ErrMissingID)
		}
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("decode item id %s: %w", string(raw), err)
	}
	// integer literals keep their digits; float64 would merge ids past 2^53
	if !strings.ContainsAny(n.String(), ".eE") {
		return n.String(), nil
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return n.String(), nil
}

func decodeValue(raw json.RawMessage) any {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return raw
}
