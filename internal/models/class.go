package models

import "time"

// Class represents a class group within a school year, tagged with its level (PS, MS, GS, ...).
type Class struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Level        string    `db:"level" json:"level"`
	SchoolYearID string    `db:"school_year_id" json:"schoolYearId"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	SchoolYearID string
	Level        string
	IDs          []string
}

// SchoolYear is the academic year enrollments and classes belong to.
type SchoolYear struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"isActive"`
}
