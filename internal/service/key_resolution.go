package service

import (
	"strconv"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const (
	languageTogglePrefix = "language_toggle_"
	tablePrefix          = "table_"
	rowSeparator         = "_row_"
)

// ToggleSlot locates a toggle-bearing block, or a toggle-bearing table row, inside
// a page tree. Row is -1 for language_toggle blocks.
type ToggleSlot struct {
	Page      int
	Block     int
	Row       int
	BlockType models.BlockType
	BlockID   string
	RowID     string
	Defaults  []models.ToggleItem
}

// IsRow reports whether the slot is a table row.
func (s ToggleSlot) IsRow() bool {
	return s.Row >= 0
}

// StableKey derives the identity-based key, or "" when the block or row has no persisted id.
func (s ToggleSlot) StableKey() string {
	if s.BlockID == "" {
		return ""
	}
	if !s.IsRow() {
		return languageTogglePrefix + s.BlockID
	}
	if s.RowID == "" {
		return ""
	}
	return tablePrefix + s.BlockID + rowSeparator + s.RowID
}

// LegacyPageKey derives the positional key including the page index.
func (s ToggleSlot) LegacyPageKey() string {
	p, b := strconv.Itoa(s.Page), strconv.Itoa(s.Block)
	if !s.IsRow() {
		return languageTogglePrefix + p + "_" + b
	}
	return tablePrefix + p + "_" + b + rowSeparator + strconv.Itoa(s.Row)
}

// LegacyNoPageKey derives the oldest positional row key, which predates page
// indexes. Only table rows have one.
func (s ToggleSlot) LegacyNoPageKey() string {
	if !s.IsRow() {
		return ""
	}
	return tablePrefix + strconv.Itoa(s.Block) + rowSeparator + strconv.Itoa(s.Row)
}

type keyCandidate struct {
	key    string
	source models.ToggleSource
}

// readChain lists the keys consulted on read, in precedence order. New legacy
// formats go at the end, never ahead of the stable key.
func (s ToggleSlot) readChain() []keyCandidate {
	chain := make([]keyCandidate, 0, 3)
	if key := s.StableKey(); key != "" {
		chain = append(chain, keyCandidate{key: key, source: models.ToggleSourceStable})
	}
	chain = append(chain, keyCandidate{key: s.LegacyPageKey(), source: models.ToggleSourceLegacyPage})
	if key := s.LegacyNoPageKey(); key != "" {
		chain = append(chain, keyCandidate{key: key, source: models.ToggleSourceLegacyNoPage})
	}
	return chain
}

// ReadKeys returns the keys consulted on read, in precedence order.
func (s ToggleSlot) ReadKeys() []string {
	chain := s.readChain()
	keys := make([]string, len(chain))
	for i, candidate := range chain {
		keys[i] = candidate.key
	}
	return keys
}

// WriteKey is the stable key when resolvable, otherwise the page-aware legacy key.
func (s ToggleSlot) WriteKey() string {
	if key := s.StableKey(); key != "" {
		return key
	}
	return s.LegacyPageKey()
}

// ResolveItems walks the read chain against data and falls back to the slot's
// defaults. Values that are not toggle-item lists are skipped. The returned
// items are always a private copy.
func (s ToggleSlot) ResolveItems(data models.OverrideData) ([]models.ToggleItem, string, models.ToggleSource) {
	for _, candidate := range s.readChain() {
		raw, ok := data.Lookup(candidate.key)
		if !ok {
			continue
		}
		value := models.DecodeOverride(raw)
		if value.Kind != models.OverrideKindToggleItems {
			continue
		}
		return models.CloneToggleItems(value.Items), candidate.key, candidate.source
	}
	return models.CloneToggleItems(s.Defaults), "", models.ToggleSourceBlockDefaults
}

// ToggleSlots enumerates every toggle-bearing block and table row of a page tree
// in document order. Identities are always taken from the given pages.
func ToggleSlots(pages models.Pages) []ToggleSlot {
	var slots []ToggleSlot
	for p, page := range pages {
		for b, block := range page.Blocks {
			switch block.Type {
			case models.BlockTypeLanguageToggle:
				slots = append(slots, ToggleSlot{
					Page:      p,
					Block:     b,
					Row:       -1,
					BlockType: block.Type,
					BlockID:   block.Props.BlockID(),
					Defaults:  block.Props.Items(),
				})
			case models.BlockTypeTable:
				blockID := block.Props.BlockID()
				for r := 0; r < block.Props.RowCount(); r++ {
					items, ok := block.Props.RowItems(r)
					if !ok {
						continue
					}
					slots = append(slots, ToggleSlot{
						Page:      p,
						Block:     b,
						Row:       r,
						BlockType: block.Type,
						BlockID:   blockID,
						RowID:     block.Props.RowID(r),
						Defaults:  items,
					})
				}
			}
		}
	}
	return slots
}

// findSlot returns the slot at the given position.
func findSlot(pages models.Pages, page, block int, row *int) (ToggleSlot, bool) {
	for _, slot := range ToggleSlots(pages) {
		if slot.Page != page || slot.Block != block {
			continue
		}
		if row == nil && !slot.IsRow() {
			return slot, true
		}
		if row != nil && slot.IsRow() && slot.Row == *row {
			return slot, true
		}
	}
	return ToggleSlot{}, false
}
