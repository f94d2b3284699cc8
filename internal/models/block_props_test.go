package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeProps(t *testing.T, raw string) BlockProps {
	t.Helper()
	var props BlockProps
	require.NoError(t, json.Unmarshal([]byte(raw), &props))
	return props
}

func TestBlockPropsTableRows(t *testing.T) {
	props := decodeProps(t, `{
		"blockId": "tbl",
		"rowIds": ["r1", "r2"],
		"rows": [["a"], ["b"], ["c"]],
		"rowLanguages": [[{"code":"EN","active":true}], null]
	}`)

	assert.Equal(t, "tbl", props.BlockID())
	assert.Equal(t, "r2", props.RowID(1))
	assert.Equal(t, "", props.RowID(2))
	assert.Equal(t, 3, props.RowCount())

	items, ok := props.RowItems(0)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "EN", items[0].Code)

	_, ok = props.RowItems(1)
	assert.False(t, ok)
	_, ok = props.RowItems(5)
	assert.False(t, ok)
}

func TestBlockPropsSetRowItemsGrows(t *testing.T) {
	props := BlockProps{}
	props.SetRowItems(2, []ToggleItem{{Code: "AR"}})

	items, ok := props.RowItems(2)
	require.True(t, ok)
	assert.Equal(t, "AR", items[0].Code)
	_, ok = props.RowItems(0)
	assert.False(t, ok)
}

func TestBlockPropsKeepsUnknownFields(t *testing.T) {
	props := decodeProps(t, `{"x": 10, "font": {"size": 12}, "items": []}`)
	props.SetItems([]ToggleItem{{Code: "EN", Active: true}})

	out, err := json.Marshal(props)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":10,"font":{"size":12},"items":[{"code":"EN","active":true}]}`, string(out))
}

func TestPagesCloneDoesNotAlias(t *testing.T) {
	pages := Pages{{Title: "p1", Blocks: []Block{{Type: BlockTypeLanguageToggle, Props: BlockProps{"blockId": "b1"}}}}}
	clone := pages.Clone()
	clone[0].Blocks[0].Props["blockId"] = "changed"
	assert.Equal(t, "b1", pages[0].Blocks[0].Props.BlockID())
}

func TestPagesScan(t *testing.T) {
	var pages Pages
	require.NoError(t, pages.Scan([]byte(`[{"title":"p","blocks":[]}]`)))
	require.Len(t, pages, 1)
	assert.Equal(t, "p", pages[0].Title)

	require.NoError(t, pages.Scan(nil))
	assert.Empty(t, pages)

	assert.Error(t, pages.Scan(42))
}
