package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"kpbuilder/api/internal/config"
	"kpbuilder/api/internal/email"
	"kpbuilder/api/internal/export"
	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/search"
	"kpbuilder/api/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	proposals map[string]store.ProposalRecord
	products  map[string]proposal.Product
	templates map[string]store.TemplateRecord
	pingFn    func(context.Context) error
	saves     int
	clock     time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		proposals: map[string]store.ProposalRecord{},
		products:  map[string]proposal.Product{},
		templates: map[string]store.TemplateRecord{},
		clock:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) putProposal(id, workspaceID, document string) {
	f.proposals[id] = store.ProposalRecord{
		ID:          id,
		WorkspaceID: workspaceID,
		Document:    []byte(document),
		Status:      "draft",
		Version:     1,
		CreatedAt:   f.clock,
		UpdatedAt:   f.clock,
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetProposalDocument(_ context.Context, id string) (store.ProposalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.proposals[id]
	if !ok {
		return store.ProposalRecord{}, fmt.Errorf("get proposal: %w", sql.ErrNoRows)
	}
	return rec, nil
}

func (f *fakeStore) SaveProposal(_ context.Context, p proposal.Proposal) (proposal.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	encoded, err := json.Marshal(p)
	if err != nil {
		return proposal.Proposal{}, err
	}
	rec := f.proposals[p.ID]
	f.clock = f.clock.Add(time.Minute)
	rec.ID = p.ID
	rec.WorkspaceID = p.WorkspaceID
	rec.ClientID = p.ClientID
	rec.Document = encoded
	rec.Status = string(p.Status)
	rec.Version++
	rec.UpdatedAt = f.clock
	f.proposals[p.ID] = rec
	f.saves++
	return rec.Proposal()
}

func (f *fakeStore) SetSharePassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.proposals[id]
	if !ok {
		return fmt.Errorf("set share password: %w", sql.ErrNoRows)
	}
	rec.SharePasswordHash = hash
	f.proposals[id] = rec
	return nil
}

func (f *fakeStore) GetWorkspace(_ context.Context, id string) (proposal.Workspace, error) {
	return proposal.Workspace{ID: id, Name: "Студия Север"}, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (proposal.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return proposal.Product{}, fmt.Errorf("get product: %w", sql.ErrNoRows)
	}
	return p, nil
}

func (f *fakeStore) ListTemplates(_ context.Context, workspaceID string) ([]store.TemplateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.TemplateRecord, 0)
	for _, rec := range f.templates {
		if rec.WorkspaceID == workspaceID {
			items = append(items, rec)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) GetTemplate(_ context.Context, id string) (store.TemplateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.templates[id]
	if !ok {
		return store.TemplateRecord{}, fmt.Errorf("get template: %w", sql.ErrNoRows)
	}
	return rec, nil
}

func (f *fakeStore) InsertTemplate(_ context.Context, rec store.TemplateRecord) (store.TemplateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.IsDefault {
		for id, other := range f.templates {
			if other.WorkspaceID == rec.WorkspaceID && other.IsDefault {
				other.IsDefault = false
				f.templates[id] = other
			}
		}
	}
	rec.CreatedAt = f.clock
	f.templates[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) DeleteTemplate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.templates[id]; !ok {
		return fmt.Errorf("delete template: %w", sql.ErrNoRows)
	}
	delete(f.templates, id)
	return nil
}

// exportStore satisfies export.DataStore on top of fakeStore.
type exportStore struct {
	*fakeStore
}

func (e exportStore) GetClient(_ context.Context, id string) (proposal.Client, error) {
	return proposal.Client{}, fmt.Errorf("get client: %w", sql.ErrNoRows)
}

type fakePDF struct{}

func (fakePDF) RenderPDF(_ context.Context, html string) ([]byte, error) {
	return []byte("%PDF-" + fmt.Sprint(len(html))), nil
}

type fakeSearch struct {
	last search.Query
}

func (f *fakeSearch) SearchProducts(_ context.Context, q search.Query) search.Response {
	f.last = q
	return search.Response{Results: []proposal.Product{{ID: "pr1", Name: "Логотип"}}, Total: 1, Query: q.Text, Source: search.SourceFallback}
}

type fakeMailer struct {
	configured bool
	err        error
	sent       []email.ShareLinkData
	to         []string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendShareLink(to string, data email.ShareLinkData) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, data)
	return nil
}

// fakeArchive stands in for the MinIO archive on both the export and the
// download side.
type fakeArchive struct {
	objects map[string][]byte
	ttl     time.Duration
}

func (f *fakeArchive) PutPDF(_ context.Context, proposalID string, updatedAt time.Time, data []byte) (string, error) {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	key := fmt.Sprintf("proposals/%s/%d.pdf", proposalID, updatedAt.Unix())
	f.objects[key] = data
	return key, nil
}

func (f *fakeArchive) PresignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	f.ttl = ttl
	return "https://minio.example.com/kp/" + key + "?X-Amz-Expires=" + fmt.Sprint(int(ttl.Seconds())), nil
}

type fakeInvalidator struct {
	ids []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

func sequentialIDs() func(string) string {
	n := 0
	return func(prefix string) string {
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}
}

type testEnv struct {
	store   *fakeStore
	search  *fakeSearch
	cache   *fakeInvalidator
	exports *export.Service
	service *Service
	server  *HTTPServer
}

func newTestEnv() *testEnv {
	fs := newFakeStore()
	cfg := config.Config{
		ShareSecret:   "test-secret",
		ShareTTL:      time.Hour,
		PublicBaseURL: "https://kp.example.com/",
	}
	exports := export.NewService(exportStore{fs}, fakePDF{}, nil).WithShareSecret([]byte(cfg.ShareSecret))
	fsearch := &fakeSearch{}
	cache := &fakeInvalidator{}
	svc := NewService(cfg, fs, exports, fsearch).WithPDFCache(cache)
	svc.newID = sequentialIDs()
	return &testEnv{
		store:   fs,
		search:  fsearch,
		cache:   cache,
		exports: exports,
		service: svc,
		server:  NewHTTPServer(svc, "*"),
	}
}
