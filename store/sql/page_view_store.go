package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-resultlink/core"
)

const defaultPageViewPerPage = 25

type PageViewFilter struct {
	Path      string
	SessionID string
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

type PageViewPage struct {
	Items      []core.PageViewRecord
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

// PageViewStore appends page_view events. List and Prune serve reporting and
// retention jobs; request handling only ever records.
type PageViewStore struct {
	db   *bun.DB
	repo repository.Repository[*pageViewRecord]
}

func NewPageViewStore(db *bun.DB) (*PageViewStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pageViewRecord](db, pageViewHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid page view repository wiring: %w", err)
		}
	}
	return &PageViewStore{db: db, repo: repo}, nil
}

// RecordPageView stores view. Ids that are not UUIDs are replaced since the
// table keys on UUID strings.
func (s *PageViewStore) RecordPageView(ctx context.Context, view core.PageViewRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: page view store is not configured")
	}
	path := strings.TrimSpace(view.Path)
	if path == "" {
		return fmt.Errorf("sqlstore: page view path is required")
	}
	id := strings.TrimSpace(view.ID)
	if parseUUID(id) == uuid.Nil {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(view.Name)
	if name == "" {
		name = core.PageViewEventName
	}
	occurredAt := view.OccurredAt.UTC()
	if view.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	record := &pageViewRecord{
		ID:         id,
		Name:       name,
		Path:       RedactURL(path),
		Referrer:   RedactURL(strings.TrimSpace(view.Referrer)),
		SessionID:  strings.TrimSpace(view.SessionID),
		Metadata:   RedactMetadata(view.Metadata),
		OccurredAt: occurredAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *PageViewStore) List(ctx context.Context, filter PageViewFilter) (PageViewPage, error) {
	if s == nil || s.repo == nil {
		return PageViewPage{}, fmt.Errorf("sqlstore: page view store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultPageViewPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("occurred_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if path := strings.TrimSpace(filter.Path); path != "" {
		selectors = append(selectors, repository.SelectBy("path", "=", path))
	}
	if sessionID := strings.TrimSpace(filter.SessionID); sessionID != "" {
		selectors = append(selectors, repository.SelectBy("session_id", "=", sessionID))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("occurred_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return PageViewPage{}, err
	}
	items := make([]core.PageViewRecord, 0, len(records))
	for _, record := range records {
		items = append(items, pageViewRecordToDomain(record))
	}
	hasNext := offset+len(items) < total
	nextCursor := ""
	if hasNext {
		nextCursor = strconv.Itoa(offset + len(items))
	}
	return PageViewPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextCursor,
	}, nil
}

// Prune deletes events that occurred before now minus ttl.
func (s *PageViewStore) Prune(ctx context.Context, ttl time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: page view store is not configured")
	}
	if ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.NewDelete().
		Model((*pageViewRecord)(nil)).
		Where("occurred_at < ?", time.Now().UTC().Add(-ttl)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func pageViewRecordToDomain(record *pageViewRecord) core.PageViewRecord {
	if record == nil {
		return core.PageViewRecord{}
	}
	return core.PageViewRecord{
		ID:         record.ID,
		Name:       record.Name,
		Path:       record.Path,
		Referrer:   record.Referrer,
		SessionID:  record.SessionID,
		Metadata:   core.CopyAnyMap(record.Metadata),
		OccurredAt: record.OccurredAt,
	}
}
