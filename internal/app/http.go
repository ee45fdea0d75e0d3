package app

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"portfolio/api/internal/auth"
	"portfolio/api/internal/authpw"
	"portfolio/api/internal/export"
	"portfolio/api/internal/nav"
	"portfolio/api/internal/portfolio"
	"portfolio/api/internal/rbac"
	"portfolio/api/internal/search"
)

// Handler returns the fully wired HTTP handler: CORS, request logging and the
// route dispatcher.
func (s *Service) Handler() http.Handler {
	return withMiddleware(http.HandlerFunc(s.dispatch))
}

func (s *Service) dispatch(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, s.cfg.CORSOrigin)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
		return
	}

	switch parts[1] {
	case "health":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case "ready":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
			return
		}
		if err := s.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "database unavailable", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	case "auth":
		s.dispatchAuth(w, r, parts[2:])
	case "session":
		s.dispatchSession(w, r, parts[2:])
	case "notifications":
		if len(parts) == 3 && parts[2] == "email" && r.Method == http.MethodPost {
			s.handleNotificationEmail(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	case "magic-link":
		s.dispatchMagicLink(w, r, parts[2:])
	case "search":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
			return
		}
		s.handleSearch(w, r)
	case "workbook":
		s.dispatchWorkbook(w, r, parts[2:])
	case "arcp":
		if len(parts) == 3 && parts[2] == "export" && r.Method == http.MethodPost {
			s.handleARCPExport(w, r)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	}
}

// ── Auth ──

func (s *Service) dispatchAuth(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
		return
	}
	switch {
	case len(rest) == 1 && rest[0] == "signup":
		s.handleSignUp(w, r)
	case len(rest) == 1 && rest[0] == "signin":
		s.handleSignIn(w, r)
	case len(rest) == 1 && rest[0] == "verify-email":
		s.handleVerifyEmail(w, r)
	case len(rest) == 2 && rest[0] == "reset-password" && rest[1] == "request":
		s.handleRequestPasswordReset(w, r)
	case len(rest) == 1 && rest[0] == "reset-password":
		s.handleResetPassword(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	}
}

func (s *Service) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		GMCNumber   string `json:"gmcNumber"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.passwords.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		GMCNumber:   req.GMCNumber,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	body := map[string]any{
		"userId":              resp.UserID,
		"requiresEmailVerify": resp.RequiresEmailVerify,
	}
	if s.SMTPConfigured() {
		url := s.cfg.BaseURL + "/verify-email?token=" + resp.VerificationToken
		if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, url); err != nil {
			log.Printf("send verification email to %s: %v", req.Email, err)
		}
	} else {
		// No mailbox in local setups; hand the token back directly.
		body["devVerificationToken"] = resp.VerificationToken
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Service) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.passwords.SignIn(r.Context(), authpw.SignInRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
		return
	}
	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "email address is not verified", nil)
		return
	}
	session, err := s.CreateSession(r.Context(), resp.User)
	if err != nil {
		writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Service) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.passwords.VerifyEmail(r.Context(), req.Token); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (s *Service) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := s.passwords.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		// Do not reveal whether the address exists.
		writeJSON(w, http.StatusOK, map[string]any{"sent": true})
		return
	}
	body := map[string]any{"sent": true}
	if s.SMTPConfigured() {
		url := s.cfg.BaseURL + "/reset-password?token=" + token
		if err := s.email.SendPasswordResetEmail(req.Email, "", url); err != nil {
			log.Printf("send password reset email to %s: %v", req.Email, err)
		}
	} else {
		body["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Service) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.passwords.ResetPassword(r.Context(), authpw.ResetPasswordRequest{Token: req.Token, NewPassword: req.NewPassword}); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// ── Sessions ──

func (s *Service) dispatchSession(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		claims, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":    claims.Sub,
			"userName":  claims.Name,
			"role":      claims.Role,
			"gmcNumber": claims.GMC,
			"expiresAt": time.Unix(claims.Exp, 0).UTC(),
		})
	case len(rest) == 1 && rest[0] == "refresh" && r.Method == http.MethodPost:
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		session, err := s.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case len(rest) == 1 && rest[0] == "logout" && r.Method == http.MethodPost:
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.Logout(r.Context(), req.RefreshToken); err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	}
}

// ── Edge endpoints ──
// These keep the external snake_case contract and their own error shapes.

func (s *Service) handleNotificationEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NotificationID string `json:"notification_id"`
		UserID         string `json:"user_id"`
		Type           string `json:"type"`
		Title          string `json:"title"`
		Body           string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	err := s.SendNotificationEmail(r.Context(), NotificationEmailRequest{
		NotificationID: req.NotificationID,
		UserID:         req.UserID,
		Type:           req.Type,
		Title:          req.Title,
		Body:           req.Body,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Service) dispatchMagicLink(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodPost || len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
		return
	}
	switch rest[0] {
	case "validate":
		s.handleMagicLinkValidate(w, r)
	case "submit":
		s.handleMagicLinkSubmit(w, r)
	case "issue":
		s.handleMagicLinkIssue(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	}
}

func (s *Service) handleMagicLinkValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "reason": "Token is required"})
		return
	}
	view, err := s.ValidateMagicLink(r.Context(), req.Token)
	switch {
	case errors.Is(err, errMagicLinkNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"valid": false, "reason": "Link not found"})
	case errors.Is(err, errMagicLinkUsed):
		writeJSON(w, http.StatusGone, map[string]any{"valid": false, "reason": "Link has already been used"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"valid": false, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Service) handleMagicLinkSubmit(w http.ResponseWriter, r *http.Request) {
	var sub MagicLinkSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "reason": "Token is required"})
		return
	}
	err := s.SubmitMagicLink(r.Context(), sub)
	var de *DomainError
	switch {
	case errors.Is(err, errMagicLinkNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "reason": "Link not found"})
	case errors.Is(err, errMagicLinkUsed):
		writeJSON(w, http.StatusGone, map[string]any{"success": false, "reason": "Link has already been used"})
	case errors.As(err, &de):
		writeJSON(w, de.Status, map[string]any{"success": false, "error": de.Message})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Service) handleMagicLinkIssue(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if !s.Can(claims.Role, rbac.ActionWrite) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
		return
	}
	var invite MagicLinkInvite
	if !decodeBody(w, r, &invite) {
		return
	}
	issued, err := s.IssueMagicLink(r.Context(), claims.Sub, claims.Name, invite)
	if err != nil {
		writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

// ── Search ──

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if !s.Can(claims.Role, rbac.ActionRead) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	resp := s.SearchEvidence(search.Query{
		Text:           q.Get("q"),
		TraineeID:      claims.Sub,
		FilterFormType: q.Get("type"),
		Limit:          limit,
		Offset:         offset,
	})
	writeJSON(w, http.StatusOK, resp)
}

// ── Workbook ──

type evidencePatchRequest struct {
	ID          string             `json:"id"`
	Type        portfolio.FormType `json:"type"`
	Status      portfolio.Status   `json:"status"`
	Title       string             `json:"title"`
	Level       string             `json:"level"`
	Payload     map[string]any     `json:"payload"`
	Respondents []string           `json:"respondents"`
}

func (r evidencePatchRequest) patch() portfolio.Patch {
	return portfolio.Patch{
		ID:          r.ID,
		Type:        r.Type,
		Status:      r.Status,
		Title:       r.Title,
		Level:       r.Level,
		Payload:     r.Payload,
		Respondents: r.Respondents,
	}
}

func (s *Service) dispatchWorkbook(w http.ResponseWriter, r *http.Request, rest []string) {
	claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	userID := claims.Sub

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
			return
		}
		if !s.Can(claims.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
			return
		}
		writeJSON(w, http.StatusOK, s.WorkbookState(userID))
		return
	}

	// SIA listing is a read; everything else below mutates.
	if len(rest) == 1 && rest[0] == "sias" && r.Method == http.MethodGet {
		if !s.Can(claims.Role, rbac.ActionRead) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sias": s.WorkbookState(userID).SIAs})
		return
	}

	if !s.Can(claims.Role, rbac.ActionWrite) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
		return
	}

	switch {
	case len(rest) == 1 && rest[0] == "navigate" && r.Method == http.MethodPost:
		var req struct {
			View   nav.View       `json:"view"`
			Params nav.FormParams `json:"params"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, s.Navigate(userID, req.View, req.Params))

	case len(rest) == 1 && rest[0] == "back" && r.Method == http.MethodPost:
		writeJSON(w, http.StatusOK, s.GoBack(userID))

	case len(rest) == 2 && rest[0] == "form" && rest[1] == "open" && r.Method == http.MethodPost:
		var req struct {
			Type   portfolio.FormType `json:"type"`
			Params nav.FormParams     `json:"params"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, s.OpenForm(userID, req.Type, req.Params))

	case len(rest) == 2 && rest[0] == "form" && rest[1] == "draft" && r.Method == http.MethodPost:
		var req evidencePatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		item, state, err := s.SaveDraft(userID, req.patch())
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evidence": item, "state": state})

	case len(rest) == 2 && rest[0] == "form" && rest[1] == "submit" && r.Method == http.MethodPost:
		var req evidencePatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		item, state, err := s.SubmitForm(r.Context(), userID, req.patch())
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evidence": item, "state": state})

	case len(rest) == 2 && rest[0] == "evidence" && rest[1] == "view-linked" && r.Method == http.MethodPost:
		var req struct {
			EvidenceID string `json:"evidenceId"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		state, err := s.ViewLinkedEvidence(userID, req.EvidenceID)
		if err != nil {
			// The notice carries the user-facing message; surface both.
			status, code, msg, _ := mapError(err)
			writeError(w, status, code, msg, map[string]any{"notice": state.Notice})
			return
		}
		writeJSON(w, http.StatusOK, state)

	case len(rest) == 2 && rest[0] == "links" && rest[1] == "begin" && r.Method == http.MethodPost:
		var req struct {
			RequirementKey string `json:"requirementKey"`
			Section        int    `json:"section"`
			Item           int    `json:"item"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		state, err := s.BeginLinking(userID, req.RequirementKey, req.Section, req.Item)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	case len(rest) == 2 && rest[0] == "links" && rest[1] == "confirm" && r.Method == http.MethodPost:
		var req struct {
			EvidenceIDs []string `json:"evidenceIds"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		state, err := s.ConfirmLinking(userID, req.EvidenceIDs...)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	case len(rest) == 2 && rest[0] == "links" && rest[1] == "cancel" && r.Method == http.MethodPost:
		state, err := s.CancelLinking(userID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	case len(rest) == 2 && rest[0] == "links" && rest[1] == "remove" && r.Method == http.MethodPost:
		var req struct {
			RequirementKey string `json:"requirementKey"`
			EvidenceID     string `json:"evidenceId"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, s.RemoveLink(userID, req.RequirementKey, req.EvidenceID))

	case len(rest) == 1 && rest[0] == "mandatory-form" && r.Method == http.MethodPost:
		var req struct {
			ExpectedType   portfolio.FormType `json:"expectedType"`
			DefaultSubtype string             `json:"defaultSubtype"`
			RequirementKey string             `json:"requirementKey"`
			Section        int                `json:"section"`
			Item           int                `json:"item"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, s.BeginMandatoryForm(userID, req.ExpectedType, req.DefaultSubtype, req.RequirementKey, req.Section, req.Item))

	case len(rest) == 1 && rest[0] == "sias" && r.Method == http.MethodPost:
		var sia portfolio.SIA
		if !decodeBody(w, r, &sia) {
			return
		}
		saved, state := s.UpsertSIA(userID, sia)
		writeJSON(w, http.StatusOK, map[string]any{"sia": saved, "state": state})

	case len(rest) == 2 && rest[0] == "sias" && r.Method == http.MethodDelete:
		writeJSON(w, http.StatusOK, s.RemoveSIA(userID, rest[1]))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	}
}

// ── ARCP export ──

func (s *Service) handleARCPExport(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if !s.Can(claims.Role, rbac.ActionRead) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
		return
	}
	var req struct {
		Format  export.Format `json:"format"`
		Archive bool          `json:"archive"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Format == "" {
		req.Format = export.FormatPDF
	}
	result, err := s.ExportARCP(r.Context(), claims.Sub, claims.Name, claims.GMC, export.Request{Format: req.Format, Archive: req.Archive})
	if err != nil {
		writeMapped(w, err)
		return
	}
	if result.ObjectKey != "" {
		w.Header().Set("X-Archive-Key", result.ObjectKey)
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// ── Helpers ──

func (s *Service) requireSession(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
		return auth.Claims{}, false
	}
	claims, err := s.SessionFromToken(token)
	if err != nil {
		writeMapped(w, err)
		return auth.Claims{}, false
	}
	return claims, true
}

func writeMapped(w http.ResponseWriter, err error) {
	status, code, msg, details := mapError(err)
	writeError(w, status, code, msg, details)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{"code": code, "error": message}
	if len(details) > 0 {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body", nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func splitPath(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func setCORSHeaders(w http.ResponseWriter, origin string) {
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID, r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds())
	})
}

func randomRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf)
}
