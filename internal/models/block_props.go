package models

import (
	"encoding/json"
	"strings"
)

// BlockProps keeps the type-specific props of a block as decoded JSON so unknown
// fields (positions, fonts, cell styling) survive a round trip untouched.
type BlockProps map[string]interface{}

const (
	propBlockID      = "blockId"
	propRowIDs       = "rowIds"
	propItems        = "items"
	propRows         = "rows"
	propRowLanguages = "rowLanguages"
)

// BlockID returns the persisted stable identifier, or "" for legacy blocks.
func (p BlockProps) BlockID() string {
	if p == nil {
		return ""
	}
	id, _ := p[propBlockID].(string)
	return strings.TrimSpace(id)
}

// RowIDs returns the stable row identifiers, index-aligned with the table rows.
func (p BlockProps) RowIDs() []string {
	if p == nil {
		return nil
	}
	raw, ok := p[propRowIDs].([]interface{})
	if !ok {
		if typed, ok := p[propRowIDs].([]string); ok {
			return append([]string(nil), typed...)
		}
		return nil
	}
	ids := make([]string, len(raw))
	for i, v := range raw {
		s, _ := v.(string)
		ids[i] = strings.TrimSpace(s)
	}
	return ids
}

// RowID returns the stable id of row r, or "" when the row predates row ids.
func (p BlockProps) RowID(r int) string {
	ids := p.RowIDs()
	if r < 0 || r >= len(ids) {
		return ""
	}
	return ids[r]
}

// RowCount reports how many rows a table block declares.
func (p BlockProps) RowCount() int {
	if p == nil {
		return 0
	}
	rows, _ := p[propRows].([]interface{})
	langs, _ := p[propRowLanguages].([]interface{})
	if len(langs) > len(rows) {
		return len(langs)
	}
	return len(rows)
}

// Items returns the default toggle items of a language_toggle block.
func (p BlockProps) Items() []ToggleItem {
	if p == nil {
		return nil
	}
	return decodeItems(p[propItems])
}

// RowItems returns the default toggle items of table row r. The boolean reports
// whether the row is toggle-bearing at all.
func (p BlockProps) RowItems(r int) ([]ToggleItem, bool) {
	if p == nil {
		return nil, false
	}
	langs, ok := p[propRowLanguages].([]interface{})
	if !ok || r < 0 || r >= len(langs) || langs[r] == nil {
		return nil, false
	}
	return decodeItems(langs[r]), true
}

// SetItems replaces the default items of a language_toggle block.
func (p BlockProps) SetItems(items []ToggleItem) {
	p[propItems] = encodeItems(items)
}

// SetRowItems replaces the default items of table row r, growing rowLanguages as needed.
func (p BlockProps) SetRowItems(r int, items []ToggleItem) {
	if r < 0 {
		return
	}
	langs, _ := p[propRowLanguages].([]interface{})
	for len(langs) <= r {
		langs = append(langs, nil)
	}
	langs[r] = encodeItems(items)
	p[propRowLanguages] = langs
}

func decodeItems(v interface{}) []ToggleItem {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var items []ToggleItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func encodeItems(items []ToggleItem) interface{} {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	var generic []interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	return generic
}
