// internal/model/campaign.go
package model

import (
	"strings"
	"time"
)

type Campaign struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	TriggerTag string     `db:"trigger_tag" json:"trigger_tag"`
	TemplateID int64      `db:"template_id" json:"template_id"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// NormalizeTag is the form trigger tags are stored and compared in.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
