package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type pageViewRecord struct {
	bun.BaseModel `bun:"table:page_view_events,alias:pve"`

	ID         string         `bun:"id,pk"`
	Name       string         `bun:"name,notnull"`
	Path       string         `bun:"path,notnull"`
	Referrer   string         `bun:"referrer,notnull"`
	SessionID  string         `bun:"session_id,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
