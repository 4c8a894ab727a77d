package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kpbuilder/api/internal/export"
	"kpbuilder/api/internal/pricing"
	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/sharelink"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)

	// Public share link, no workspace scope
	if len(parts) == 2 && parts[0] == "p" && r.Method == http.MethodGet {
		s.handlePublic(w, r, parts[1])
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "products" && parts[2] == "search" && r.Method == http.MethodGet {
		query := r.URL.Query()
		resp, err := s.service.SearchProducts(r.Context(),
			workspaceScope(r),
			query.Get("q"),
			queryInt(query.Get("limit")),
			queryInt(query.Get("offset")),
		)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "templates" {
		s.handleTemplates(w, r, parts)
		return
	}

	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "proposals" {
		s.handleProposals(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProposals(w http.ResponseWriter, r *http.Request, proposalID string, parts []string) {
	action := parts[0]

	if len(parts) == 1 && r.Method == http.MethodGet {
		switch action {
		case "preview":
			page, err := s.service.Preview(r.Context(), proposalID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeHTML(w, http.StatusOK, page)
			return
		case "export":
			result, err := s.service.Export(r.Context(), proposalID, r.URL.Query().Get("format"))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			w.Header().Set("Content-Disposition", contentDisposition(result.Filename))
			w.Header().Set("Content-Type", result.MimeType)
			if result.Cached {
				w.Header().Set("X-Cache", "HIT")
			}
			if result.ArchiveKey != "" {
				w.Header().Set("X-Archive-Key", result.ArchiveKey)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(result.Data)
			return
		case "archive":
			link, err := s.service.ArchiveLink(r.Context(), proposalID, r.URL.Query().Get("key"))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, link)
			return
		case "totals":
			totals, err := s.service.Totals(r.Context(), proposalID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, totals)
			return
		}
	}

	if len(parts) == 1 && r.Method == http.MethodPost {
		switch action {
		case "share":
			var body ShareInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			link, err := s.service.ShareProposal(r.Context(), proposalID, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, link)
			return
		case "migrate-variants":
			p, err := s.service.MigrateVariants(r.Context(), proposalID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		case "save-as-template":
			var body SaveTemplateInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			t, err := s.service.SaveAsTemplate(r.Context(), proposalID, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, t)
			return
		case "import-product":
			var body ImportProductInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			p, err := s.service.ImportProduct(r.Context(), proposalID, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		case "variants":
			var body VariantInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			p, err := s.service.AddVariant(r.Context(), proposalID, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, p)
			return
		}
	}

	if action == "variants" && len(parts) >= 2 {
		variantID := parts[1]
		if len(parts) == 2 && r.Method == http.MethodDelete {
			p, err := s.service.RemoveVariant(r.Context(), proposalID, variantID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		}
		if len(parts) == 3 && parts[2] == "recommend" && r.Method == http.MethodPost {
			p, err := s.service.RecommendVariant(r.Context(), proposalID, variantID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTemplates(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodGet {
		items, err := s.service.ListTemplates(r.Context(), workspaceScope(r))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := s.service.DeleteTemplate(r.Context(), parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 4 && parts[3] == "apply" && r.Method == http.MethodPost {
		var body ApplyTemplateInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.WorkspaceID == "" {
			body.WorkspaceID = strings.TrimSpace(r.Header.Get("X-Workspace-ID"))
		}
		p, err := s.service.ApplyTemplate(r.Context(), parts[2], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePublic(w http.ResponseWriter, r *http.Request, token string) {
	page, err := s.service.PublicProposal(r.Context(), token, r.URL.Query().Get("password"))
	if err != nil {
		status, _, message, _ := mapError(err)
		writeHTML(w, status, errorPage(status, message))
		return
	}
	writeHTML(w, http.StatusOK, page)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			logPath(r.URL.Path),
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// logPath keeps share tokens out of the request log.
func logPath(path string) string {
	if strings.HasPrefix(path, "/p/") {
		return "/p/:token"
	}
	return path
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Workspace-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Archive-Key, X-Cache")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTML(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(page))
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("app: %v", err)
	}
	writeError(w, status, code, message, details)
}

func errorPage(status int, message string) string {
	return fmt.Sprintf("<!DOCTYPE html>\n<html lang=\"ru\"><head><meta charset=\"utf-8\"><title>%d</title></head><body><p>%s</p></body></html>\n",
		status, html.EscapeString(message))
}

func contentDisposition(filename string) string {
	ascii := strings.Map(func(r rune) rune {
		if r > 127 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, pathEscape(filename))
}

func pathEscape(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// workspaceScope reads the tenant from the query, falling back to the
// header set by the upstream gateway.
func workspaceScope(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("workspaceId")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-Workspace-ID"))
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, sharelink.ErrInvalidToken), errors.Is(err, sharelink.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Ссылка недействительна или устарела", nil
	case errors.Is(err, sharelink.ErrPasswordRequired):
		return http.StatusForbidden, "PASSWORD_REQUIRED", "Для просмотра нужен пароль", nil
	case errors.Is(err, sharelink.ErrWrongPassword):
		return http.StatusForbidden, "WRONG_PASSWORD", "Неверный пароль", nil
	case errors.Is(err, export.ErrShareDisabled):
		return http.StatusServiceUnavailable, "SHARE_DISABLED", "Share links are not configured", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is temporarily unavailable", nil
	case errors.Is(err, pricing.ErrLastVariant):
		return http.StatusConflict, "LAST_VARIANT", "At least one variant must remain", nil
	case errors.Is(err, proposal.ErrNotObject):
		return http.StatusUnprocessableEntity, "INVALID_DOCUMENT", "Stored proposal is not an object", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
