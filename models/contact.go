package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ContactTags is the JSON column holding key/value tags parsed from extra
// CSV columns
type ContactTags map[string]string

// Value implements the driver.Valuer interface for ContactTags
func (t ContactTags) Value() (driver.Value, error) {
	if t == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(t)
}

// Scan implements the sql.Scanner interface for ContactTags
func (t *ContactTags) Scan(value any) error {
	if value == nil {
		*t = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ContactTags", value)
	}

	return json.Unmarshal(bytes, t)
}

// RawRow preserves the original CSV cells keyed by header
type RawRow map[string]string

// Value implements the driver.Valuer interface for RawRow
func (r RawRow) Value() (driver.Value, error) {
	if r == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(r)
}

// Scan implements the sql.Scanner interface for RawRow
func (r *RawRow) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RawRow", value)
	}

	return json.Unmarshal(bytes, r)
}

// Contact represents an imported contact in the database. Phone numbers are
// stored in E.164 form and deduplicated per import via the composite unique
// index on (import_id, phone).
type Contact struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	ImportID     uint        `gorm:"not null;uniqueIndex:uk_contacts_import_phone;index:idx_contacts_import_id" json:"import_id"`
	Phone        string      `gorm:"size:20;not null;uniqueIndex:uk_contacts_import_phone" json:"phone"`
	Name         *string     `gorm:"size:100" json:"name"`
	Tags         ContactTags `gorm:"type:jsonb" json:"tags"`
	CSVRowNumber int         `gorm:"not null;default:0" json:"csv_row_number"`
	RawData      RawRow      `gorm:"type:jsonb" json:"raw_data"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for the Contact model
func (Contact) TableName() string {
	return "contacts"
}

// ContactFilter represents filter criteria for contact queries
type ContactFilter struct {
	ID       *uint   `json:"id,omitempty"`
	ImportID *uint   `json:"import_id,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}
