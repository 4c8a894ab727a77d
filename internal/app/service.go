package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"kpbuilder/api/internal/config"
	"kpbuilder/api/internal/email"
	"kpbuilder/api/internal/export"
	"kpbuilder/api/internal/pricing"
	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/search"
	"kpbuilder/api/internal/sharelink"
	"kpbuilder/api/internal/store"
	"kpbuilder/api/internal/templates"
	"kpbuilder/api/internal/util"
)

type dataStore interface {
	Ping(context.Context) error
	GetProposalDocument(context.Context, string) (store.ProposalRecord, error)
	SaveProposal(context.Context, proposal.Proposal) (proposal.Proposal, error)
	SetSharePassword(context.Context, string, string) error
	GetWorkspace(context.Context, string) (proposal.Workspace, error)
	GetProduct(context.Context, string) (proposal.Product, error)
	ListTemplates(context.Context, string) ([]store.TemplateRecord, error)
	GetTemplate(context.Context, string) (store.TemplateRecord, error)
	InsertTemplate(context.Context, store.TemplateRecord) (store.TemplateRecord, error)
	DeleteTemplate(context.Context, string) error
}

type exporter interface {
	Preview(ctx context.Context, proposalID string) (string, error)
	Public(ctx context.Context, token, password string) (string, error)
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type productSearcher interface {
	SearchProducts(ctx context.Context, q search.Query) search.Response
}

type pdfInvalidator interface {
	Invalidate(ctx context.Context, proposalID string) error
}

type shareMailer interface {
	IsConfigured() bool
	SendShareLink(to string, data email.ShareLinkData) error
}

type archiveLinker interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// archiveLinkTTL bounds presigned archive downloads.
const archiveLinkTTL = 15 * time.Minute

type Service struct {
	cfg      config.Config
	store    dataStore
	exports  exporter
	search   productSearcher
	pdfCache pdfInvalidator
	mailer   shareMailer
	archive  archiveLinker
	newID    pricing.IDFunc
	now      func() time.Time
}

func NewService(cfg config.Config, store dataStore, exports exporter, search productSearcher) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		exports: exports,
		search:  search,
		newID:   util.NewID,
		now:     time.Now,
	}
}

// WithPDFCache drops cached PDFs whenever the service saves a proposal.
func (s *Service) WithPDFCache(cache pdfInvalidator) *Service {
	s.pdfCache = cache
	return s
}

// WithMailer lets ShareProposal email the link.
func (s *Service) WithMailer(mailer shareMailer) *Service {
	s.mailer = mailer
	return s
}

// WithArchive enables download links for archived PDFs.
func (s *Service) WithArchive(archive archiveLinker) *Service {
	s.archive = archive
	return s
}

type ArchiveLink struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ShareLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Protected bool      `json:"protected"`
	EmailedTo string    `json:"emailedTo,omitempty"`
}

type ShareInput struct {
	Password      string `json:"password"`
	ClearPassword bool   `json:"clearPassword"`
	// SendTo, when set, mails the link to this address.
	SendTo string `json:"sendTo"`
}

type TotalsView struct {
	pricing.Totals
	Formatted FormattedTotals `json:"formatted"`
}

type FormattedTotals struct {
	Subtotal string `json:"subtotal"`
	VAT      string `json:"vat"`
	Total    string `json:"total"`
}

type SaveTemplateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsDefault   bool   `json:"isDefault"`
}

type ApplyTemplateInput struct {
	WorkspaceID string `json:"workspaceId"`
	ClientID    string `json:"clientId"`
	Title       string `json:"title"`
	Recipient   string `json:"recipient"`
}

type VariantInput struct {
	Name     string `json:"name"`
	SourceID string `json:"sourceId"`
}

type ImportProductInput struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) loadProposal(ctx context.Context, proposalID string) (proposal.Proposal, error) {
	rec, err := s.store.GetProposalDocument(ctx, proposalID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	return rec.Proposal()
}

func (s *Service) saveProposal(ctx context.Context, p proposal.Proposal) (proposal.Proposal, error) {
	saved, err := s.store.SaveProposal(ctx, p)
	if err != nil {
		return proposal.Proposal{}, err
	}
	s.invalidatePDF(ctx, saved.ID)
	return saved, nil
}

func (s *Service) invalidatePDF(ctx context.Context, proposalID string) {
	if s.pdfCache == nil {
		return
	}
	if err := s.pdfCache.Invalidate(ctx, proposalID); err != nil {
		log.Printf("app: invalidate pdf cache proposal=%s: %v", proposalID, err)
	}
}

func (s *Service) Preview(ctx context.Context, proposalID string) (string, error) {
	return s.exports.Preview(ctx, proposalID)
}

func (s *Service) PublicProposal(ctx context.Context, token, password string) (string, error) {
	return s.exports.Public(ctx, token, password)
}

func (s *Service) Export(ctx context.Context, proposalID, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, validationError("format must be 'pdf', 'docx' or 'html'")
	}
	return s.exports.Export(ctx, export.Request{ProposalID: proposalID, Format: format})
}

// ArchiveLink presigns a download of an archived PDF. The key must be one
// the export endpoint reported for the same proposal.
func (s *Service) ArchiveLink(ctx context.Context, proposalID, key string) (ArchiveLink, error) {
	if s.archive == nil {
		return ArchiveLink{}, unavailableError("ARCHIVE_DISABLED", "PDF archive is not configured")
	}
	key = strings.TrimSpace(key)
	prefix := "proposals/" + proposalID + "/"
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) || strings.Contains(key, "..") {
		return ArchiveLink{}, validationError("key must be an archive key of this proposal")
	}
	if _, err := s.store.GetProposalDocument(ctx, proposalID); err != nil {
		return ArchiveLink{}, err
	}
	download, err := s.archive.PresignedURL(ctx, key, archiveLinkTTL)
	if err != nil {
		return ArchiveLink{}, fmt.Errorf("archive link proposal=%s: %w", proposalID, err)
	}
	return ArchiveLink{Key: key, URL: download, ExpiresAt: s.now().Add(archiveLinkTTL).UTC()}, nil
}

// ShareProposal issues a public link. A non-empty password protects the
// link; ClearPassword removes the protection. SendTo mails the link.
func (s *Service) ShareProposal(ctx context.Context, proposalID string, input ShareInput) (ShareLink, error) {
	if strings.TrimSpace(s.cfg.ShareSecret) == "" {
		return ShareLink{}, unavailableError("SHARE_DISABLED", "Share links are not configured")
	}
	if len(input.Password) > sharelink.MaxPasswordBytes {
		return ShareLink{}, validationError(fmt.Sprintf("password must be at most %d bytes", sharelink.MaxPasswordBytes))
	}
	recipient := ""
	if strings.TrimSpace(input.SendTo) != "" {
		addr, err := mail.ParseAddress(strings.TrimSpace(input.SendTo))
		if err != nil {
			return ShareLink{}, validationError("sendTo must be an email address")
		}
		if s.mailer == nil || !s.mailer.IsConfigured() {
			return ShareLink{}, unavailableError("EMAIL_DISABLED", "Email delivery is not configured")
		}
		recipient = addr.Address
	}
	rec, err := s.store.GetProposalDocument(ctx, proposalID)
	if err != nil {
		return ShareLink{}, err
	}

	protected := rec.SharePasswordHash != ""
	switch {
	case input.Password != "":
		hash, err := sharelink.HashPassword(input.Password)
		if err != nil {
			return ShareLink{}, err
		}
		if err := s.store.SetSharePassword(ctx, proposalID, hash); err != nil {
			return ShareLink{}, err
		}
		protected = true
	case input.ClearPassword:
		if err := s.store.SetSharePassword(ctx, proposalID, ""); err != nil {
			return ShareLink{}, err
		}
		protected = false
	}

	now := s.now()
	token, err := sharelink.IssueFor([]byte(s.cfg.ShareSecret), proposalID, s.cfg.ShareTTL, now)
	if err != nil {
		return ShareLink{}, fmt.Errorf("issue share token: %w", err)
	}
	link := ShareLink{
		Token:     token,
		URL:       strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/p/" + token,
		ExpiresAt: now.Add(s.cfg.ShareTTL).UTC(),
		Protected: protected,
	}
	if recipient == "" {
		return link, nil
	}

	p, err := rec.Proposal()
	if err != nil {
		return ShareLink{}, err
	}
	company := ""
	if ws, err := s.store.GetWorkspace(ctx, p.WorkspaceID); err == nil {
		company = ws.Name
	} else {
		log.Printf("app: workspace %s for share email: %v", p.WorkspaceID, err)
	}
	if err := s.mailer.SendShareLink(recipient, email.ShareLinkData{
		Company:   company,
		Recipient: p.Recipient,
		Title:     p.Title,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
		Protected: protected,
	}); err != nil {
		log.Printf("app: email share link proposal=%s: %v", proposalID, err)
		return ShareLink{}, domainError(http.StatusBadGateway, "EMAIL_FAILED", "Failed to send the share link", nil)
	}
	link.EmailedTo = recipient
	return link, nil
}

// MigrateVariants moves a legacy item list into variants, heals the variant
// structure and saves the result.
func (s *Service) MigrateVariants(ctx context.Context, proposalID string) (proposal.Proposal, error) {
	p, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	p = pricing.Normalize(pricing.MigrateLegacyToVariants(p, s.newID), s.newID)
	return s.saveProposal(ctx, p)
}

func (s *Service) Totals(ctx context.Context, proposalID string) (TotalsView, error) {
	p, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return TotalsView{}, err
	}
	totals := pricing.Compute(p)
	return TotalsView{
		Totals: totals,
		Formatted: FormattedTotals{
			Subtotal: pricing.FormatMoney(totals.Subtotal, totals.Currency),
			VAT:      pricing.FormatMoney(totals.VAT, totals.Currency),
			Total:    pricing.FormatMoney(totals.Total, totals.Currency),
		},
	}, nil
}

func (s *Service) AddVariant(ctx context.Context, proposalID string, input VariantInput) (proposal.Proposal, error) {
	p, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	p = pricing.MigrateLegacyToVariants(p, s.newID)

	var created proposal.Variant
	if input.SourceID != "" {
		var ok bool
		p.ProductVariants, created, ok = pricing.DuplicateVariant(p.ProductVariants, input.SourceID, s.newID)
		if !ok {
			return proposal.Proposal{}, variantNotFound(input.SourceID)
		}
	} else {
		p.ProductVariants, created = pricing.AddVariant(p.ProductVariants, strings.TrimSpace(input.Name), s.newID)
	}
	p.PricingMode = proposal.PricingVariants
	p.ActiveVariantID = created.ID
	return s.saveProposal(ctx, pricing.Normalize(p, s.newID))
}

func (s *Service) RemoveVariant(ctx context.Context, proposalID, variantID string) (proposal.Proposal, error) {
	p, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	if !hasVariant(p.ProductVariants, variantID) {
		return proposal.Proposal{}, variantNotFound(variantID)
	}
	variants, err := pricing.RemoveVariant(p.ProductVariants, variantID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	p.ProductVariants = variants
	return s.saveProposal(ctx, pricing.Normalize(p, s.newID))
}

func (s *Service) RecommendVariant(ctx context.Context, proposalID, variantID string) (proposal.Proposal, error) {
	p, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	if !hasVariant(p.ProductVariants, variantID) {
		return proposal.Proposal{}, variantNotFound(variantID)
	}
	p.ProductVariants = pricing.SetRecommended(p.ProductVariants, variantID)
	return s.saveProposal(ctx, pricing.Normalize(p, s.newID))
}

func hasVariant(variants []proposal.Variant, id string) bool {
	for _, v := range variants {
		if v.ID == id {
			return true
		}
	}
	return false
}

// ImportProduct appends a catalog product as a new line, to the given
// variant in variants mode or to the legacy item list otherwise.
func (s *Service) ImportProduct(ctx context.Context, proposalID string, input ImportProductInput) (proposal.Proposal, error) {
	if strings.TrimSpace(input.ProductID) == "" {
		return proposal.Proposal{}, validationError("productId is required")
	}
	p, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	product, err := s.store.GetProduct(ctx, input.ProductID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	if product.WorkspaceID != p.WorkspaceID {
		return proposal.Proposal{}, notFoundError()
	}

	item := proposal.ItemFromProduct(product, s.newID("item"))
	if p.PricingMode != proposal.PricingVariants || len(p.ProductVariants) == 0 {
		p.Items = append(p.Items, item)
		return s.saveProposal(ctx, p)
	}

	targetID := input.VariantID
	if targetID == "" {
		if active, ok := pricing.ResolveActiveVariant(p); ok {
			targetID = active.ID
		}
	}
	variants := pricing.CloneVariants(p.ProductVariants)
	for i := range variants {
		if variants[i].ID == targetID {
			variants[i].Rows = append(variants[i].Rows, proposal.ItemRow(item, ""))
			p.ProductVariants = variants
			return s.saveProposal(ctx, p)
		}
	}
	return proposal.Proposal{}, variantNotFound(targetID)
}

func (s *Service) SaveAsTemplate(ctx context.Context, proposalID string, input SaveTemplateInput) (templates.Template, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return templates.Template{}, validationError("name is required")
	}
	p, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return templates.Template{}, err
	}

	t := templates.FromProposal(p, name, strings.TrimSpace(input.Description), strings.TrimSpace(input.Category))
	t.ID = s.newID("tpl")
	t.IsDefault = input.IsDefault
	rec, err := store.NewTemplateRecord(t)
	if err != nil {
		return templates.Template{}, err
	}
	saved, err := s.store.InsertTemplate(ctx, rec)
	if err != nil {
		return templates.Template{}, err
	}
	return saved.Template()
}

func (s *Service) ListTemplates(ctx context.Context, workspaceID string) ([]templates.Template, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, validationError("workspaceId is required")
	}
	records, err := s.store.ListTemplates(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]templates.Template, 0, len(records))
	for _, rec := range records {
		t, err := rec.Template()
		if err != nil {
			log.Printf("app: skip unreadable template %s: %v", rec.ID, err)
			continue
		}
		items = append(items, t)
	}
	return items, nil
}

// ApplyTemplate builds a new, unsaved proposal from a template with fresh
// ids. The caller saves it once the user confirms.
func (s *Service) ApplyTemplate(ctx context.Context, templateID string, input ApplyTemplateInput) (proposal.Proposal, error) {
	rec, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return proposal.Proposal{}, err
	}
	if input.WorkspaceID != "" && input.WorkspaceID != rec.WorkspaceID {
		return proposal.Proposal{}, notFoundError()
	}
	t, err := rec.Template()
	if err != nil {
		return proposal.Proposal{}, err
	}

	target := proposal.Proposal{
		ID:          s.newID("kp"),
		WorkspaceID: rec.WorkspaceID,
		ClientID:    input.ClientID,
		Title:       strings.TrimSpace(input.Title),
		Recipient:   strings.TrimSpace(input.Recipient),
		Status:      proposal.StatusDraft,
	}
	p, fellBack := templates.Apply(t, target, s.newID)
	if fellBack {
		log.Printf("app: template %s active variant missing, using first variant", templateID)
	}
	return p, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, templateID string) error {
	return s.store.DeleteTemplate(ctx, templateID)
}

func (s *Service) SearchProducts(ctx context.Context, workspaceID, text string, limit, offset int) (search.Response, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return search.Response{}, validationError("workspaceId is required")
	}
	if s.search == nil {
		return search.Response{}, errors.New("product search not configured")
	}
	return s.search.SearchProducts(ctx, search.Query{
		WorkspaceID: workspaceID,
		Text:        text,
		Limit:       limit,
		Offset:      offset,
	}), nil
}
