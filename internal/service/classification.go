package service

import (
	"strings"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// LevelOrder is the injected total order of class levels (PS < MS < GS ...).
type LevelOrder struct {
	ordinals map[string]int
}

// NewLevelOrder builds the table from levels listed lowest first. Duplicates keep their first position.
func NewLevelOrder(levels []string) *LevelOrder {
	ordinals := make(map[string]int, len(levels))
	for _, level := range levels {
		key := normalizeLevel(level)
		if key == "" {
			continue
		}
		if _, exists := ordinals[key]; exists {
			continue
		}
		ordinals[key] = len(ordinals)
	}
	return &LevelOrder{ordinals: ordinals}
}

// Ordinal returns the position of level in the order.
func (o *LevelOrder) Ordinal(level string) (int, bool) {
	if o == nil {
		return 0, false
	}
	ordinal, ok := o.ordinals[normalizeLevel(level)]
	return ordinal, ok
}

// Relation places itemLevel relative to classLevel. An empty item level is
// always current; a level the table does not know is unknown.
func (o *LevelOrder) Relation(itemLevel, classLevel string) models.LevelRelation {
	if normalizeLevel(itemLevel) == "" || sameLevel(itemLevel, classLevel) {
		return models.LevelRelationCurrent
	}
	item, ok := o.Ordinal(itemLevel)
	if !ok {
		return models.LevelRelationUnknown
	}
	class, ok := o.Ordinal(classLevel)
	if !ok {
		return models.LevelRelationUnknown
	}
	if item < class {
		return models.LevelRelationPast
	}
	return models.LevelRelationFuture
}

func normalizeLevel(level string) string {
	return strings.ToUpper(strings.TrimSpace(level))
}

func sameLevel(a, b string) bool {
	na := normalizeLevel(a)
	return na != "" && na == normalizeLevel(b)
}

// ClassifyLanguage buckets a toggle item code.
func ClassifyLanguage(code string) models.LanguageCategory {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "fr":
		return models.LanguageCategoryPoly
	case "ar", "lb":
		return models.LanguageCategoryArabic
	case "en", "uk", "gb":
		return models.LanguageCategoryEnglish
	default:
		return models.LanguageCategoryOther
	}
}

var relationRank = map[models.LevelRelation]int{
	models.LevelRelationCurrent: 0,
	models.LevelRelationPast:    1,
	models.LevelRelationFuture:  2,
	models.LevelRelationUnknown: 3,
}

// itemPlacement is the level an item is counted under and how it relates to the class.
type itemPlacement struct {
	Level    string
	Relation models.LevelRelation
}

// placeItem applies the level filter to an item. With a specific toggleLevel an
// item matches when one of its declared levels equals it, or, for an item with
// no levels, when the class itself is on that level. Under ALL every item
// matches and multi-level items are placed at their closest level.
func (o *LevelOrder) placeItem(item models.ToggleItem, classLevel, toggleLevel string) (itemPlacement, bool) {
	levels := item.DeclaredLevels()
	all := toggleLevel == "" || strings.EqualFold(strings.TrimSpace(toggleLevel), models.ToggleLevelAll)

	if len(levels) == 0 {
		if !all && !sameLevel(classLevel, toggleLevel) {
			return itemPlacement{}, false
		}
		return itemPlacement{Level: normalizeLevel(classLevel), Relation: models.LevelRelationCurrent}, true
	}

	if !all {
		for _, level := range levels {
			if sameLevel(level, toggleLevel) {
				return itemPlacement{Level: normalizeLevel(level), Relation: o.Relation(level, classLevel)}, true
			}
		}
		return itemPlacement{}, false
	}

	best := itemPlacement{Level: normalizeLevel(levels[0]), Relation: o.Relation(levels[0], classLevel)}
	for _, level := range levels[1:] {
		relation := o.Relation(level, classLevel)
		if relationRank[relation] < relationRank[best.Relation] {
			best = itemPlacement{Level: normalizeLevel(level), Relation: relation}
		}
	}
	return best, true
}

// toggleFilter is the full inclusion test shared by Mutate and Summarize.
type toggleFilter struct {
	order            *LevelOrder
	toggleLevel      string
	levelRelation    models.LevelRelation
	languageCategory models.LanguageCategory
}

func (f toggleFilter) match(item models.ToggleItem, classLevel string) (itemPlacement, models.LanguageCategory, bool) {
	placement, ok := f.order.placeItem(item, classLevel, f.toggleLevel)
	if !ok {
		return itemPlacement{}, "", false
	}
	if f.levelRelation != "" && f.levelRelation != models.LevelRelationAll && placement.Relation != f.levelRelation {
		return itemPlacement{}, "", false
	}
	category := ClassifyLanguage(item.Code)
	if f.languageCategory != "" && f.languageCategory != models.LanguageCategoryAll && category != f.languageCategory {
		return itemPlacement{}, "", false
	}
	return placement, category, true
}
