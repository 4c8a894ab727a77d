package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"kpbuilder/api/internal/pdfcache"
	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/render"
	"kpbuilder/api/internal/sharelink"
	"kpbuilder/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProposalDocument(ctx context.Context, proposalID string) (store.ProposalRecord, error)
	GetWorkspace(ctx context.Context, workspaceID string) (proposal.Workspace, error)
	GetClient(ctx context.Context, clientID string) (proposal.Client, error)
}

// PDFRenderer rasterizes rendered HTML.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// DOCXConverter converts rendered HTML to a Word document.
type DOCXConverter interface {
	ConvertDOCX(ctx context.Context, html string) ([]byte, error)
}

// PDFCache keeps PDFs per proposal revision.
type PDFCache interface {
	Get(ctx context.Context, proposalID string, updatedAt time.Time) ([]byte, error)
	Put(ctx context.Context, proposalID string, updatedAt time.Time, pdf []byte) error
}

// Archiver stores exported PDFs for later download.
type Archiver interface {
	PutPDF(ctx context.Context, proposalID string, updatedAt time.Time, data []byte) (string, error)
}

// Service provides proposal rendering and export
type Service struct {
	store       DataStore
	pdf         PDFRenderer
	docx        DOCXConverter
	cache       PDFCache
	archive     Archiver
	shareSecret []byte
	now         func() time.Time
}

// NewService creates a new export service. pdf and docx may be nil, which
// disables the respective format.
func NewService(store DataStore, pdf PDFRenderer, docx DOCXConverter) *Service {
	return &Service{store: store, pdf: pdf, docx: docx, now: time.Now}
}

// WithCache enables the PDF cache.
func (s *Service) WithCache(cache PDFCache) *Service {
	s.cache = cache
	return s
}

// WithArchive enables archiving of freshly rendered PDFs.
func (s *Service) WithArchive(archive Archiver) *Service {
	s.archive = archive
	return s
}

// WithShareSecret enables public links signed with secret.
func (s *Service) WithShareSecret(secret []byte) *Service {
	s.shareSecret = secret
	return s
}

type loaded struct {
	proposal  proposal.Proposal
	workspace *proposal.Workspace
	client    *proposal.Client
	password  string
}

func (s *Service) load(ctx context.Context, proposalID string) (loaded, error) {
	rec, err := s.store.GetProposalDocument(ctx, proposalID)
	if err != nil {
		return loaded{}, fmt.Errorf("get proposal: %w", err)
	}
	p, err := rec.Proposal()
	if err != nil {
		return loaded{}, err
	}

	out := loaded{proposal: p, password: rec.SharePasswordHash}
	ws, err := s.store.GetWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		if !store.IsNotFound(err) {
			return loaded{}, fmt.Errorf("get workspace: %w", err)
		}
		log.Printf("export: workspace %s missing for proposal %s", p.WorkspaceID, p.ID)
	} else {
		out.workspace = &ws
	}

	if p.ClientID != "" {
		client, err := s.store.GetClient(ctx, p.ClientID)
		switch {
		case err == nil:
			out.client = &client
		case store.IsNotFound(err):
			log.Printf("export: client %s missing for proposal %s", p.ClientID, p.ID)
		default:
			return loaded{}, fmt.Errorf("get client: %w", err)
		}
	}
	return out, nil
}

func (l loaded) html() string {
	return render.Render(l.proposal, l.workspace, l.client)
}

// Preview renders the editor preview of a proposal.
func (s *Service) Preview(ctx context.Context, proposalID string) (string, error) {
	l, err := s.load(ctx, proposalID)
	if err != nil {
		return "", err
	}
	return l.html(), nil
}

// Public renders a proposal behind a share token. Password protected
// proposals need the matching password.
func (s *Service) Public(ctx context.Context, token, password string) (string, error) {
	if len(s.shareSecret) == 0 {
		return "", ErrShareDisabled
	}
	claims, err := sharelink.Parse(s.shareSecret, token, s.now())
	if err != nil {
		return "", err
	}
	l, err := s.load(ctx, claims.ProposalID)
	if err != nil {
		return "", err
	}
	if err := sharelink.CheckPassword(l.password, password); err != nil {
		return "", err
	}
	return l.html(), nil
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	format := req.Format
	if format == "" {
		format = FormatPDF
	}
	if format != FormatHTML && format != FormatPDF && format != FormatDOCX {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	l, err := s.load(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	name := sanitizeFilename(l.proposal.Title)

	switch format {
	case FormatHTML:
		return &Result{Data: []byte(l.html()), Filename: name + ".html", MimeType: mimeHTML}, nil
	case FormatDOCX:
		if s.docx == nil {
			return nil, fmt.Errorf("%w: converter not configured", ErrDOCXDependencyMissing)
		}
		data, err := s.docx.ConvertDOCX(ctx, l.html())
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: name + ".docx", MimeType: mimeDOCX}, nil
	default:
		return s.exportPDF(ctx, l, name)
	}
}

func (s *Service) exportPDF(ctx context.Context, l loaded, name string) (*Result, error) {
	p := l.proposal
	if s.cache != nil {
		data, err := s.cache.Get(ctx, p.ID, p.UpdatedAt)
		switch {
		case err == nil:
			return &Result{Data: data, Filename: name + ".pdf", MimeType: mimePDF, Cached: true}, nil
		case errors.Is(err, pdfcache.ErrMiss):
		default:
			log.Printf("export: pdf cache get proposal=%s: %v", p.ID, err)
		}
	}

	if s.pdf == nil {
		return nil, fmt.Errorf("%w: renderer not configured", ErrPDFDependencyMissing)
	}
	data, err := s.pdf.RenderPDF(ctx, l.html())
	if err != nil {
		return nil, err
	}

	result := &Result{Data: data, Filename: name + ".pdf", MimeType: mimePDF}
	if s.cache != nil {
		if err := s.cache.Put(ctx, p.ID, p.UpdatedAt, data); err != nil {
			log.Printf("export: pdf cache put proposal=%s: %v", p.ID, err)
		}
	}
	if s.archive != nil {
		key, err := s.archive.PutPDF(ctx, p.ID, p.UpdatedAt, data)
		if err != nil {
			log.Printf("export: archive pdf proposal=%s: %v", p.ID, err)
		} else {
			result.ArchiveKey = key
		}
	}
	return result, nil
}

// sanitizeFilename keeps letters and digits of any script, turns spaces
// into hyphens and caps the name at 50 runes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(title) {
		if n == 50 {
			break
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		default:
			continue
		}
		n++
	}
	if b.Len() == 0 {
		return "proposal"
	}
	return b.String()
}
