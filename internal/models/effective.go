package models

// ToggleSource tells where a resolved toggle value came from.
type ToggleSource string

const (
	ToggleSourceStable        ToggleSource = "stable"
	ToggleSourceLegacyPage    ToggleSource = "legacy_page"
	ToggleSourceLegacyNoPage  ToggleSource = "legacy"
	ToggleSourceBlockDefaults ToggleSource = "default"
)

// ResolvedToggle is one toggle-bearing block or table row with its effective items.
type ResolvedToggle struct {
	PageIndex  int          `json:"pageIndex"`
	BlockIndex int          `json:"blockIndex"`
	RowIndex   *int         `json:"rowIndex,omitempty"`
	BlockType  BlockType    `json:"blockType"`
	BlockID    string       `json:"blockId,omitempty"`
	RowID      string       `json:"rowId,omitempty"`
	Key        string       `json:"key,omitempty"`
	WriteKey   string       `json:"writeKey"`
	Source     ToggleSource `json:"source"`
	Items      []ToggleItem `json:"items"`
}

// EffectiveDocument is the snapshot an assignment is bound to with its overrides layered on top.
type EffectiveDocument struct {
	AssignmentID    string           `json:"assignmentId"`
	TemplateID      string           `json:"templateId"`
	StudentID       string           `json:"studentId"`
	TemplateVersion int              `json:"templateVersion"`
	DataVersion     int              `json:"dataVersion"`
	Status          AssignmentStatus `json:"status"`
	Pages           Pages            `json:"pages"`
	Toggles         []ResolvedToggle `json:"toggles"`
	Data            OverrideData     `json:"data"`
}
