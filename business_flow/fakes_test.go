package businessflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/textwave/textwave/models"
)

// In-memory repository fakes. They keep just enough behavior for the flows
// under test: CAS transitions, counter increments and pending-set paging.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	nextID    uint
	campaigns map[uint]*models.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: make(map[uint]*models.Campaign)}
}

func (r *fakeCampaignRepo) ByID(_ context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ByUUID(_ context.Context, u uuid.UUID) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID == u {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ByFilter(_ context.Context, _ models.CampaignFilter, _ string, _, _ int) ([]*models.Campaign, error) {
	return nil, nil
}

func (r *fakeCampaignRepo) Save(_ context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) Update(_ context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, cs []*models.Campaign) error {
	for _, c := range cs {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeCampaignRepo) Count(context.Context, models.CampaignFilter) (int64, error) {
	return 0, nil
}

func (r *fakeCampaignRepo) Exists(context.Context, models.CampaignFilter) (bool, error) {
	return false, nil
}

func (r *fakeCampaignRepo) UpdateStatusFrom(_ context.Context, id uint, from, to models.CampaignStatus, extra map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	if v, ok := extra["completed_at"]; ok {
		if ts, ok := v.(time.Time); ok {
			c.CompletedAt = &ts
		}
	}
	if v, ok := extra["started_at"]; ok {
		if ts, ok := v.(time.Time); ok {
			c.StartedAt = &ts
		}
	}
	return true, nil
}

func (r *fakeCampaignRepo) IncrementSent(_ context.Context, id uint, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].SentCount += delta
	return nil
}

func (r *fakeCampaignRepo) IncrementFailed(_ context.Context, id uint, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].FailedCount += delta
	return nil
}

func (r *fakeCampaignRepo) SetTotals(_ context.Context, id uint, total, sent, failed int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	c.TotalMessages = total
	c.SentCount = sent
	c.FailedCount = failed
	return nil
}

func (r *fakeCampaignRepo) UpdateSettings(_ context.Context, id uint, settings models.CampaignSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].Settings = settings
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   uint
	messages []*models.Message
}

func newFakeMessageRepo() *fakeMessageRepo { return &fakeMessageRepo{} }

func (r *fakeMessageRepo) ByID(_ context.Context, id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) ByFilter(_ context.Context, _ models.MessageFilter, _ string, _, _ int) ([]*models.Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) Save(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	cp := *m
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *fakeMessageRepo) Update(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.messages {
		if existing.ID == m.ID {
			cp := *m
			r.messages[i] = &cp
			return nil
		}
	}
	return nil
}

func (r *fakeMessageRepo) SaveBatch(ctx context.Context, ms []*models.Message) error {
	for _, m := range ms {
		if err := r.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMessageRepo) Count(context.Context, models.MessageFilter) (int64, error) {
	return 0, nil
}

func (r *fakeMessageRepo) Exists(context.Context, models.MessageFilter) (bool, error) {
	return false, nil
}

func (r *fakeMessageRepo) ByCampaignAndPhone(_ context.Context, campaignID uint, phone string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.CampaignID == campaignID && m.PhoneNumber == phone {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) CountByCampaign(_ context.Context, campaignID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) CountByCampaignAndStatuses(_ context.Context, campaignID uint, statuses []models.MessageStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.CampaignID != campaignID {
			continue
		}
		for _, s := range statuses {
			if m.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) ListByCampaignPaged(_ context.Context, campaignID uint, limit, offset int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.messages {
		if m.CampaignID == campaignID {
			cp := *m
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) ListPendingByCampaignPaged(_ context.Context, campaignID uint, limit int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.messages {
		if m.CampaignID == campaignID && m.Status == models.MessageStatusPending {
			cp := *m
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) byPhone(phone string) *models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.PhoneNumber == phone {
			cp := *m
			return &cp
		}
	}
	return nil
}

func (r *fakeMessageRepo) all() []*models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Message, 0, len(r.messages))
	for _, m := range r.messages {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

type fakeContactRepo struct {
	mu       sync.Mutex
	nextID   uint
	contacts []*models.Contact
}

func newFakeContactRepo() *fakeContactRepo { return &fakeContactRepo{} }

func (r *fakeContactRepo) ByID(_ context.Context, id uint) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeContactRepo) ByFilter(_ context.Context, _ models.ContactFilter, _ string, _, _ int) ([]*models.Contact, error) {
	return nil, nil
}

func (r *fakeContactRepo) Save(_ context.Context, c *models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	cp := *c
	r.contacts = append(r.contacts, &cp)
	return nil
}

func (r *fakeContactRepo) Update(context.Context, *models.Contact) error { return nil }

func (r *fakeContactRepo) SaveBatch(ctx context.Context, cs []*models.Contact) error {
	for _, c := range cs {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeContactRepo) Count(context.Context, models.ContactFilter) (int64, error) {
	return 0, nil
}

func (r *fakeContactRepo) Exists(context.Context, models.ContactFilter) (bool, error) {
	return false, nil
}

func (r *fakeContactRepo) BulkInsertIgnoreDups(ctx context.Context, cs []*models.Contact) (int64, error) {
	var inserted int64
	for _, c := range cs {
		ok, err := r.InsertIfAbsent(ctx, c)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (r *fakeContactRepo) InsertIfAbsent(ctx context.Context, c *models.Contact) (bool, error) {
	r.mu.Lock()
	for _, existing := range r.contacts {
		if existing.ImportID == c.ImportID && existing.Phone == c.Phone {
			r.mu.Unlock()
			return false, nil
		}
	}
	r.mu.Unlock()
	return true, r.Save(ctx, c)
}

func (r *fakeContactRepo) ListByImportPaged(_ context.Context, importID uint, limit, offset int) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Contact
	for _, c := range r.contacts {
		if c.ImportID == importID {
			cp := *c
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeContactRepo) CountByImport(_ context.Context, importID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.contacts {
		if c.ImportID == importID {
			n++
		}
	}
	return n, nil
}

type fakeImportJobRepo struct {
	mu     sync.Mutex
	nextID uint
	jobs   map[uint]*models.ImportJob

	// afterUpdate, when set, runs after every Update with the stored job.
	afterUpdate func(*models.ImportJob)
}

func newFakeImportJobRepo() *fakeImportJobRepo {
	return &fakeImportJobRepo{jobs: make(map[uint]*models.ImportJob)}
}

func (r *fakeImportJobRepo) ByID(_ context.Context, id uint) (*models.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *fakeImportJobRepo) ByUUID(_ context.Context, u uuid.UUID) (*models.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.UUID == u {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeImportJobRepo) ByFilter(_ context.Context, _ models.ImportJobFilter, _ string, _, _ int) ([]*models.ImportJob, error) {
	return nil, nil
}

func (r *fakeImportJobRepo) Save(_ context.Context, j *models.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.ID == 0 {
		r.nextID++
		j.ID = r.nextID
	}
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *fakeImportJobRepo) Update(_ context.Context, j *models.ImportJob) error {
	r.mu.Lock()
	cp := *j
	r.jobs[j.ID] = &cp
	hook := r.afterUpdate
	r.mu.Unlock()
	if hook != nil {
		hook(&cp)
	}
	return nil
}

func (r *fakeImportJobRepo) SaveBatch(ctx context.Context, js []*models.ImportJob) error {
	for _, j := range js {
		if err := r.Save(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeImportJobRepo) Count(context.Context, models.ImportJobFilter) (int64, error) {
	return 0, nil
}

func (r *fakeImportJobRepo) Exists(context.Context, models.ImportJobFilter) (bool, error) {
	return false, nil
}

func (r *fakeImportJobRepo) UpdateProgress(_ context.Context, jobID uint, rowsTotal, rowsProcessed, errorCount int64, errorSample models.ImportErrorList, metadata models.ImportJobMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	j.RowsTotal = rowsTotal
	j.RowsProcessed = rowsProcessed
	j.ErrorCount = errorCount
	j.Errors = errorSample
	j.Metadata = metadata
	return nil
}

func (r *fakeImportJobRepo) MarkCompleted(_ context.Context, jobID uint, status models.ImportJobStatus, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	j.Status = status
	j.CompletedAt = &completedAt
	return nil
}

func (r *fakeImportJobRepo) UpdateStatusFrom(_ context.Context, jobID uint, from, to models.ImportJobStatus, extra map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	if v, ok := extra["completed_at"]; ok {
		if ts, ok := v.(time.Time); ok {
			j.CompletedAt = &ts
		}
	}
	return true, nil
}
