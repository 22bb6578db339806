package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
)

type CampaignRepositoryInterface interface {
	FindActiveByTriggerTag(ctx context.Context, tag string) ([]*model.Campaign, error)
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	Create(ctx context.Context, c *model.Campaign) error
}

type CampaignRepository struct {
	DB *sql.DB
}

// Create stores the trigger tag normalized so lookups can match on equality.
// A campaign with an ID keeps it; inserting an existing ID is ErrAlreadyExists.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	c.TriggerTag = model.NormalizeTag(c.TriggerTag)
	if c.ID == 0 {
		query := `
        INSERT INTO campaigns (name, trigger_tag, template_id, active, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
		return r.DB.QueryRowContext(ctx, query, c.Name, c.TriggerTag, c.TemplateID, c.Active, c.CreatedAt).Scan(&c.ID)
	}

	query := `
        INSERT INTO campaigns (id, name, trigger_tag, template_id, active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query, c.ID, c.Name, c.TriggerTag, c.TemplateID, c.Active, c.CreatedAt).Scan(&c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	// keep the serial ahead of explicit ids
	_, err = r.DB.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('campaigns', 'id'), (SELECT MAX(id) FROM campaigns))`)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `
        SELECT id, name, trigger_tag, template_id, active, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.TriggerTag, &c.TemplateID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("campaign", id)
		}
		return nil, err
	}
	return &c, nil
}

// findActiveByTagQuery normalizes the stored column too; campaign rows are
// also written by the campaign CRUD service, which does not lowercase tags.
// Served by idx_campaigns_active_trigger_tag_lower.
const findActiveByTagQuery = `
        SELECT id, name, trigger_tag, template_id, active, created_at, updated_at
        FROM campaigns
        WHERE active AND lower(btrim(trigger_tag)) = $1
        ORDER BY id
    `

func (r *CampaignRepository) FindActiveByTriggerTag(ctx context.Context, tag string) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, findActiveByTagQuery, model.NormalizeTag(tag))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.Name, &c.TriggerTag, &c.TemplateID, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// MemoryCampaignRepository backs STORE=memory and tests.
type MemoryCampaignRepository struct {
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
	nextID    int64
}

func NewMemoryCampaignRepository(seed ...*model.Campaign) *MemoryCampaignRepository {
	r := &MemoryCampaignRepository{campaigns: make(map[int64]*model.Campaign)}
	for _, c := range seed {
		_ = r.Create(context.Background(), c)
	}
	return r
}

func (r *MemoryCampaignRepository) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	} else if c.ID > r.nextID {
		r.nextID = c.ID
	}
	if _, exists := r.campaigns[c.ID]; exists {
		return appErrors.ErrAlreadyExists
	}
	c.TriggerTag = model.NormalizeTag(c.TriggerTag)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepository) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCampaignRepository) FindActiveByTriggerTag(_ context.Context, tag string) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag = model.NormalizeTag(tag)
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Active && model.NormalizeTag(c.TriggerTag) == tag {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ CampaignRepositoryInterface = (*CampaignRepository)(nil)
	_ CampaignRepositoryInterface = (*MemoryCampaignRepository)(nil)
)
