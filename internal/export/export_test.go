package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"kpbuilder/api/internal/pdfcache"
	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/sharelink"
	"kpbuilder/api/internal/store"
)

type fakeStore struct {
	records    map[string]store.ProposalRecord
	workspaces map[string]proposal.Workspace
	clients    map[string]proposal.Client
}

func (f *fakeStore) GetProposalDocument(_ context.Context, id string) (store.ProposalRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return store.ProposalRecord{}, fmt.Errorf("get proposal: %w", sql.ErrNoRows)
	}
	return rec, nil
}

func (f *fakeStore) GetWorkspace(_ context.Context, id string) (proposal.Workspace, error) {
	ws, ok := f.workspaces[id]
	if !ok {
		return proposal.Workspace{}, fmt.Errorf("get workspace: %w", sql.ErrNoRows)
	}
	return ws, nil
}

func (f *fakeStore) GetClient(_ context.Context, id string) (proposal.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return proposal.Client{}, fmt.Errorf("get client: %w", sql.ErrNoRows)
	}
	return c, nil
}

type fakePDF struct {
	calls int
	html  string
	err   error
}

func (f *fakePDF) RenderPDF(_ context.Context, html string) ([]byte, error) {
	f.calls++
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7"), nil
}

type memoryCache struct {
	entries map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, id string, at time.Time) ([]byte, error) {
	data, ok := m.entries[pdfcache.Key(id, at)]
	if !ok {
		return nil, pdfcache.ErrMiss
	}
	return data, nil
}

func (m *memoryCache) Put(_ context.Context, id string, at time.Time, pdf []byte) error {
	m.entries[pdfcache.Key(id, at)] = pdf
	return nil
}

type fakeArchive struct {
	keys []string
}

func (f *fakeArchive) PutPDF(_ context.Context, id string, at time.Time, _ []byte) (string, error) {
	key := fmt.Sprintf("proposals/%s/%d.pdf", id, at.Unix())
	f.keys = append(f.keys, key)
	return key, nil
}

var updatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fakeStore {
	t.Helper()
	return &fakeStore{
		records: map[string]store.ProposalRecord{
			"p1": {
				ID:          "p1",
				WorkspaceID: "ws1",
				ClientID:    "c1",
				Document:    []byte(`{"title":"Разработка сайта","items":[{"id":"i1","name":"Дизайн","qty":2,"price":100}]}`),
				Status:      "draft",
				Version:     3,
				UpdatedAt:   updatedAt,
			},
			"orphan": {
				ID:          "orphan",
				WorkspaceID: "gone",
				ClientID:    "gone",
				Document:    []byte(`{"title":"Orphan"}`),
				UpdatedAt:   updatedAt,
			},
		},
		workspaces: map[string]proposal.Workspace{"ws1": {ID: "ws1", Name: "Студия Север"}},
		clients:    map[string]proposal.Client{"c1": {ID: "c1", Name: "Иван", Company: "ООО Ромашка"}},
	}
}

func TestPreviewUsesWorkspaceAndClient(t *testing.T) {
	svc := NewService(newFixture(t), nil, nil)
	html, err := svc.Preview(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	for _, want := range []string{"Разработка сайта", "Студия Север", "ООО Ромашка", "Дизайн"} {
		if !strings.Contains(html, want) {
			t.Errorf("preview missing %q", want)
		}
	}
}

func TestPreviewToleratesMissingWorkspaceAndClient(t *testing.T) {
	svc := NewService(newFixture(t), nil, nil)
	html, err := svc.Preview(context.Background(), "orphan")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !strings.Contains(html, "Orphan") {
		t.Fatal("expected title in preview")
	}
}

func TestPreviewNotFound(t *testing.T) {
	svc := NewService(newFixture(t), nil, nil)
	_, err := svc.Preview(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestAllCallSitesRenderTheSameDocument(t *testing.T) {
	fx := newFixture(t)
	secret := []byte("secret")
	pdf := &fakePDF{}
	svc := NewService(fx, pdf, nil).WithShareSecret(secret)
	ctx := context.Background()

	preview, err := svc.Preview(ctx, "p1")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	token, err := sharelink.IssueFor(secret, "p1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueFor() error = %v", err)
	}
	public, err := svc.Public(ctx, token, "")
	if err != nil {
		t.Fatalf("Public() error = %v", err)
	}

	htmlExport, err := svc.Export(ctx, Request{ProposalID: "p1", Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export(html) error = %v", err)
	}
	if _, err := svc.Export(ctx, Request{ProposalID: "p1", Format: FormatPDF}); err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}

	if public != preview || string(htmlExport.Data) != preview || pdf.html != preview {
		t.Fatal("expected identical HTML across preview, public link and exports")
	}
	if htmlExport.Filename != "Разработка-сайта.html" || htmlExport.MimeType != mimeHTML {
		t.Fatalf("unexpected html result: %s %s", htmlExport.Filename, htmlExport.MimeType)
	}
}

func TestPublicRequiresValidTokenAndPassword(t *testing.T) {
	fx := newFixture(t)
	hash, err := sharelink.HashPassword("open sesame")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	rec := fx.records["p1"]
	rec.SharePasswordHash = hash
	fx.records["p1"] = rec

	secret := []byte("secret")
	svc := NewService(fx, nil, nil).WithShareSecret(secret)
	ctx := context.Background()
	token, _ := sharelink.IssueFor(secret, "p1", time.Hour, time.Now())

	if _, err := svc.Public(ctx, "garbage", ""); !errors.Is(err, sharelink.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Public(ctx, token, ""); !errors.Is(err, sharelink.ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := svc.Public(ctx, token, "wrong"); !errors.Is(err, sharelink.ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if _, err := svc.Public(ctx, token, "open sesame"); err != nil {
		t.Fatalf("Public() error = %v", err)
	}

	expired, _ := sharelink.IssueFor(secret, "p1", time.Minute, time.Now().Add(-time.Hour))
	if _, err := svc.Public(ctx, expired, "open sesame"); !errors.Is(err, sharelink.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestPublicDisabledWithoutSecret(t *testing.T) {
	svc := NewService(newFixture(t), nil, nil)
	if _, err := svc.Public(context.Background(), "x.y", ""); !errors.Is(err, ErrShareDisabled) {
		t.Fatalf("expected ErrShareDisabled, got %v", err)
	}
}

func TestExportPDFUsesCacheAndArchive(t *testing.T) {
	fx := newFixture(t)
	pdf := &fakePDF{}
	cache := &memoryCache{entries: map[string][]byte{}}
	archive := &fakeArchive{}
	svc := NewService(fx, pdf, nil).WithCache(cache).WithArchive(archive)
	ctx := context.Background()

	first, err := svc.Export(ctx, Request{ProposalID: "p1", Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if first.Cached || first.ArchiveKey != "proposals/p1/1740823200.pdf" {
		t.Fatalf("unexpected first result: cached=%v key=%q", first.Cached, first.ArchiveKey)
	}
	if first.Filename != "Разработка-сайта.pdf" || first.MimeType != mimePDF {
		t.Fatalf("unexpected pdf metadata: %s %s", first.Filename, first.MimeType)
	}

	second, err := svc.Export(ctx, Request{ProposalID: "p1"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !second.Cached || pdf.calls != 1 || len(archive.keys) != 1 {
		t.Fatalf("expected cached second export, calls=%d archived=%d", pdf.calls, len(archive.keys))
	}

	rec := fx.records["p1"]
	rec.UpdatedAt = updatedAt.Add(time.Minute)
	fx.records["p1"] = rec
	if _, err := svc.Export(ctx, Request{ProposalID: "p1", Format: FormatPDF}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if pdf.calls != 2 {
		t.Fatalf("expected re-render after edit, calls=%d", pdf.calls)
	}
}

func TestExportPDFErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	svc := NewService(fx, nil, nil)
	if _, err := svc.Export(ctx, Request{ProposalID: "p1", Format: FormatPDF}); !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("expected ErrPDFDependencyMissing, got %v", err)
	}
	if _, err := svc.Export(ctx, Request{ProposalID: "p1", Format: FormatDOCX}); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("expected ErrDOCXDependencyMissing, got %v", err)
	}
	if _, err := svc.Export(ctx, Request{ProposalID: "p1", Format: "odt"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	boom := errors.New("chrome crashed")
	cache := &memoryCache{entries: map[string][]byte{}}
	svc = NewService(fx, &fakePDF{err: boom}, nil).WithCache(cache)
	if _, err := svc.Export(ctx, Request{ProposalID: "p1", Format: FormatPDF}); !errors.Is(err, boom) {
		t.Fatalf("expected renderer error, got %v", err)
	}
	if len(cache.entries) != 0 {
		t.Fatal("failed renders must not be cached")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatPDF, false},
		{"PDF", FormatPDF, false},
		{" docx ", FormatDOCX, false},
		{"html", FormatHTML, false},
		{"odt", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.input, got, err)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Document v1.2", "My-Document-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"КП для ООО «Ромашка»", "КП-для-ООО-Ромашка"},
		{"", "proposal"},
		{"!!!", "proposal"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
		{strings.Repeat("Я", 60), strings.Repeat("Я", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPrintParamsUseA4AndCSSPageSize(t *testing.T) {
	params := printParams()
	if params.PaperWidth != 8.27 || params.PaperHeight != 11.69 {
		t.Fatalf("expected A4 paper, got %vx%v", params.PaperWidth, params.PaperHeight)
	}
	if !params.PreferCSSPageSize || !params.PrintBackground {
		t.Fatalf("expected css page size and backgrounds, got %+v", params)
	}
	if params.MarginTop != 0 || params.MarginLeft != 0 {
		t.Fatalf("expected zero margins, got %+v", params)
	}
}

func TestChromePDFMissingBinary(t *testing.T) {
	c := NewChromePDF(0, "kpbuilder-no-such-chrome")
	if c.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %s", c.Timeout)
	}
	_, err := c.RenderPDF(context.Background(), "<html></html>")
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("expected ErrPDFDependencyMissing, got %v", err)
	}
}

func TestPandocArgs(t *testing.T) {
	args := strings.Join(Pandoc{}.args(), " ")
	if args != "-f html -t docx --standalone -o -" {
		t.Fatalf("unexpected args %q", args)
	}
	args = strings.Join(Pandoc{ReferenceDoc: "/etc/kp/reference.docx"}.args(), " ")
	if !strings.HasSuffix(args, "--reference-doc=/etc/kp/reference.docx") {
		t.Fatalf("expected reference doc flag, got %q", args)
	}
}
