package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ToggleItem is one switchable entry of a language toggle (e.g. "English, GS").
type ToggleItem struct {
	Code   string
	Label  string
	Active bool
	Level  string
	Levels []string
	// Extra carries any attribute the engine does not interpret.
	Extra map[string]json.RawMessage
}

var toggleItemKnownFields = map[string]struct{}{
	"code": {}, "label": {}, "active": {}, "level": {}, "levels": {},
}

// UnmarshalJSON decodes known fields and stashes the rest in Extra.
func (t *ToggleItem) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var item ToggleItem
	if raw, ok := fields["code"]; ok {
		_ = json.Unmarshal(raw, &item.Code)
	}
	if raw, ok := fields["label"]; ok {
		_ = json.Unmarshal(raw, &item.Label)
	}
	if raw, ok := fields["active"]; ok {
		if err := json.Unmarshal(raw, &item.Active); err != nil {
			item.Active = false
		}
	}
	if raw, ok := fields["level"]; ok {
		_ = json.Unmarshal(raw, &item.Level)
	}
	if raw, ok := fields["levels"]; ok {
		_ = json.Unmarshal(raw, &item.Levels)
	}
	for key, raw := range fields {
		if _, known := toggleItemKnownFields[key]; known {
			continue
		}
		if item.Extra == nil {
			item.Extra = make(map[string]json.RawMessage)
		}
		item.Extra[key] = append(json.RawMessage(nil), raw...)
	}
	*t = item
	return nil
}

// MarshalJSON merges Extra back with the known fields.
func (t ToggleItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.Extra)+5)
	for key, raw := range t.Extra {
		out[key] = raw
	}
	out["code"] = t.Code
	out["active"] = t.Active
	if t.Label != "" {
		out["label"] = t.Label
	}
	if t.Level != "" {
		out["level"] = t.Level
	}
	if len(t.Levels) > 0 {
		out["levels"] = t.Levels
	}
	return json.Marshal(out)
}

// DeclaredLevels returns the distinct levels the item is tagged with.
func (t ToggleItem) DeclaredLevels() []string {
	seen := make(map[string]struct{}, len(t.Levels)+1)
	levels := make([]string, 0, len(t.Levels)+1)
	add := func(level string) {
		level = strings.TrimSpace(level)
		if level == "" {
			return
		}
		if _, ok := seen[level]; ok {
			return
		}
		seen[level] = struct{}{}
		levels = append(levels, level)
	}
	add(t.Level)
	for _, level := range t.Levels {
		add(level)
	}
	return levels
}

// CloneToggleItems deep-copies a slice of items.
func CloneToggleItems(items []ToggleItem) []ToggleItem {
	if items == nil {
		return nil
	}
	out := make([]ToggleItem, len(items))
	for i, item := range items {
		out[i] = item
		out[i].Levels = append([]string(nil), item.Levels...)
		if item.Extra != nil {
			out[i].Extra = make(map[string]json.RawMessage, len(item.Extra))
			for k, v := range item.Extra {
				out[i].Extra[k] = append(json.RawMessage(nil), v...)
			}
		}
	}
	return out
}

// OverrideKind tags the variant held by an OverrideValue.
type OverrideKind string

const (
	OverrideKindToggleItems OverrideKind = "toggle_items"
	OverrideKindJSON        OverrideKind = "json"
)

// OverrideValue is a decoded entry of an assignment's override data.
type OverrideValue struct {
	Kind  OverrideKind
	Items []ToggleItem
	Raw   json.RawMessage
}

// DecodeOverride classifies a raw override: a JSON array of objects carrying a
// "code" is a toggle-item list, anything else stays generic JSON.
func DecodeOverride(raw json.RawMessage) OverrideValue {
	value := OverrideValue{Kind: OverrideKindJSON, Raw: raw}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return value
	}
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return value
	}
	for _, entry := range probe {
		if _, ok := entry["code"]; !ok {
			return value
		}
	}
	var items []ToggleItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return value
	}
	value.Kind = OverrideKindToggleItems
	value.Items = items
	return value
}

// EncodeToggleItems renders items as an override payload.
func EncodeToggleItems(items []ToggleItem) (json.RawMessage, error) {
	if items == nil {
		items = []ToggleItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// LanguageCategory buckets toggle item language codes for batch filters.
type LanguageCategory string

const (
	LanguageCategoryAll     LanguageCategory = "all"
	LanguageCategoryPoly    LanguageCategory = "poly"
	LanguageCategoryArabic  LanguageCategory = "arabic"
	LanguageCategoryEnglish LanguageCategory = "english"
	LanguageCategoryOther   LanguageCategory = "other"
)

// LevelRelation places an item level relative to a class level.
type LevelRelation string

const (
	LevelRelationAll     LevelRelation = "all"
	LevelRelationCurrent LevelRelation = "current"
	LevelRelationPast    LevelRelation = "past"
	LevelRelationFuture  LevelRelation = "future"
	LevelRelationUnknown LevelRelation = "unknown"
)

// ToggleLevelAll selects items regardless of their declared level.
const ToggleLevelAll = "ALL"
