package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BlockType enumerates the visual blocks a report-card page can hold.
type BlockType string

const (
	BlockTypeText           BlockType = "text"
	BlockTypeDynamicText    BlockType = "dynamic_text"
	BlockTypeImage          BlockType = "image"
	BlockTypeTable          BlockType = "table"
	BlockTypeSignature      BlockType = "signature"
	BlockTypeLanguageToggle BlockType = "language_toggle"
)

// SaveType distinguishes explicit admin commits from editor autosaves.
type SaveType string

const (
	SaveTypeManual SaveType = "manual"
	SaveTypeAuto   SaveType = "auto"
)

// Template is the canonical report-card layout with its live head version.
type Template struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	CurrentVersion int       `db:"current_version" json:"currentVersion"`
	Pages          Pages     `db:"pages" json:"pages"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Page is one printed page of a template.
type Page struct {
	Title   string  `json:"title"`
	BgColor *string `json:"bgColor,omitempty"`
	Blocks  []Block `json:"blocks"`
}

// Block is a positioned element on a page.
type Block struct {
	Type  BlockType  `json:"type"`
	Props BlockProps `json:"props"`
}

// VersionSnapshot is an immutable copy of a template's pages at commit time.
type VersionSnapshot struct {
	TemplateID        string    `db:"template_id" json:"templateId"`
	Version           int       `db:"version" json:"version"`
	Pages             Pages     `db:"pages" json:"pages"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	CreatedBy         string    `db:"created_by" json:"createdBy"`
	ChangeDescription string    `db:"change_description" json:"changeDescription"`
	SaveType          SaveType  `db:"save_type" json:"saveType"`
}

// VersionHistoryEntry annotates a snapshot with the assignments currently bound to it.
type VersionHistoryEntry struct {
	VersionSnapshot
	BoundCount int  `json:"boundCount"`
	IsCurrent  bool `json:"isCurrent"`
}

// Pages is the JSONB column holding a template's page tree.
type Pages []Page

// Value implements driver.Valuer.
func (p Pages) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal([]Page(p))
	if err != nil {
		return nil, fmt.Errorf("marshal pages: %w", err)
	}
	return raw, nil
}

// Scan implements sql.Scanner.
func (p *Pages) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("scan pages: %w", err)
	}
	if len(raw) == 0 {
		*p = Pages{}
		return nil
	}
	var pages []Page
	if err := json.Unmarshal(raw, &pages); err != nil {
		return fmt.Errorf("scan pages: %w", err)
	}
	*p = pages
	return nil
}

// Clone deep-copies the page tree so snapshots never alias the live document.
func (p Pages) Clone() Pages {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal([]Page(p))
	if err != nil {
		return nil
	}
	var out Pages
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported source type %T", src)
	}
}
