package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portfolio/api/internal/auth"
	"portfolio/api/internal/portfolio"
	"portfolio/api/internal/store"
	"portfolio/api/internal/util"
)

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, decoded
}

func sessionToken(t *testing.T, svc *Service, user store.User) string {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), user)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session.Token
}

func TestHealthAndCORS(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	handler := svc.Handler()

	status, body := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", status, body)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/workbook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}

func TestNotificationEmailEndpoint(t *testing.T) {
	svc, st, mail, _, _ := newTestService(t)
	handler := svc.Handler()
	seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")

	status, body := doJSON(t, handler, http.MethodPost, "/api/notifications/email", "", map[string]any{
		"user_id": "usr-1",
		"type":    "assessment_request",
		"title":   "New assessment request",
		"body":    "A DOPS assessment is waiting for you.",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["success"] != true {
		t.Errorf("body = %v, want success true", body)
	}
	if len(mail.sent) != 1 || mail.sent[0].to != "jane@example.com" {
		t.Fatalf("sent = %+v", mail.sent)
	}

	// The inline request creates and marks a notification row.
	if len(st.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(st.notifications))
	}
	for _, n := range st.notifications {
		if n.EmailSentAt == nil {
			t.Error("expected the notification to be marked sent")
		}
	}
}

func TestNotificationEmailMarksExistingRow(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	handler := svc.Handler()
	seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")
	if err := st.InsertNotification(context.Background(), store.Notification{
		ID:     "ntf-1",
		UserID: "usr-1",
		Type:   "signoff",
		Title:  "Evidence signed off",
	}); err != nil {
		t.Fatal(err)
	}

	status, _ := doJSON(t, handler, http.MethodPost, "/api/notifications/email", "", map[string]any{
		"notification_id": "ntf-1",
		"user_id":         "usr-1",
		"type":            "signoff",
		"title":           "Evidence signed off",
		"body":            "Your OSATS was signed off.",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	n, err := st.GetNotification(context.Background(), "ntf-1")
	if err != nil || n.EmailSentAt == nil {
		t.Errorf("notification not marked sent: %+v, %v", n, err)
	}
}

func TestNotificationEmailFailures(t *testing.T) {
	svc, st, mail, _, _ := newTestService(t)
	handler := svc.Handler()
	seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")

	t.Run("unknown user", func(t *testing.T) {
		status, body := doJSON(t, handler, http.MethodPost, "/api/notifications/email", "", map[string]any{
			"user_id": "usr-missing",
			"type":    "generic",
			"title":   "Hello",
		})
		if status != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", status)
		}
		if _, ok := body["error"]; !ok {
			t.Errorf("body = %v, want an error field", body)
		}
	})

	t.Run("smtp unconfigured", func(t *testing.T) {
		mail.configured = false
		defer func() { mail.configured = true }()
		status, body := doJSON(t, handler, http.MethodPost, "/api/notifications/email", "", map[string]any{
			"user_id": "usr-1",
			"type":    "generic",
			"title":   "Hello",
		})
		if status != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500, body %v", status, body)
		}
	})

	t.Run("missing user_id", func(t *testing.T) {
		status, _ := doJSON(t, handler, http.MethodPost, "/api/notifications/email", "", map[string]any{
			"type": "generic",
		})
		if status != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", status)
		}
	})
}

func TestMagicLinkValidateShapes(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	handler := svc.Handler()
	ctx := context.Background()
	seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")

	payload, _ := json.Marshal(map[string]any{"procedure": "cataract surgery"})
	if err := st.UpsertEvidenceSnapshot(ctx, store.EvidenceSnapshot{
		ID:        "evd-1",
		TraineeID: "usr-1",
		FormType:  "DOPS",
		Title:     "Phacoemulsification",
		Status:    "Submitted",
		Payload:   payload,
		LinkedIDs: []string{"evd-2"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertEvidenceSnapshot(ctx, store.EvidenceSnapshot{
		ID: "evd-2", TraineeID: "usr-1", FormType: "EPA", Title: "EPA Level 2", Status: "Submitted",
	}); err != nil {
		t.Fatal(err)
	}

	goodToken := util.NewToken()
	usedToken := util.NewToken()
	expiredToken := util.NewToken()
	now := time.Now()
	used := now.Add(-time.Hour)
	links := []store.MagicLink{
		{ID: "mlk-1", TokenHash: auth.HashToken(goodToken), EvidenceID: "evd-1", FormType: "DOPS", TraineeID: "usr-1", RecipientEmail: "assessor@example.com", RequiresGMC: true, ExpiresAt: now.Add(time.Hour)},
		{ID: "mlk-2", TokenHash: auth.HashToken(usedToken), EvidenceID: "evd-1", FormType: "DOPS", TraineeID: "usr-1", ExpiresAt: now.Add(time.Hour), UsedAt: &used},
		{ID: "mlk-3", TokenHash: auth.HashToken(expiredToken), EvidenceID: "evd-1", FormType: "DOPS", TraineeID: "usr-1", ExpiresAt: now.Add(-time.Hour)},
	}
	for _, link := range links {
		if err := st.CreateMagicLink(ctx, link); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("missing token", func(t *testing.T) {
		status, body := doJSON(t, handler, http.MethodPost, "/api/magic-link/validate", "", map[string]any{})
		if status != http.StatusBadRequest || body["valid"] != false {
			t.Errorf("got %d %v", status, body)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		status, body := doJSON(t, handler, http.MethodPost, "/api/magic-link/validate", "", map[string]any{"token": "nope"})
		if status != http.StatusNotFound || body["reason"] != "Link not found" {
			t.Errorf("got %d %v", status, body)
		}
	})

	t.Run("used token", func(t *testing.T) {
		status, body := doJSON(t, handler, http.MethodPost, "/api/magic-link/validate", "", map[string]any{"token": usedToken})
		if status != http.StatusGone {
			t.Errorf("status = %d, want 410", status)
		}
		if body["reason"] != "Link has already been used" {
			t.Errorf("reason = %v", body["reason"])
		}
	})

	t.Run("expired token", func(t *testing.T) {
		status, body := doJSON(t, handler, http.MethodPost, "/api/magic-link/validate", "", map[string]any{"token": expiredToken})
		if status != http.StatusGone || body["reason"] != "Link has already been used" {
			t.Errorf("got %d %v", status, body)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		status, body := doJSON(t, handler, http.MethodPost, "/api/magic-link/validate", "", map[string]any{"token": goodToken})
		if status != http.StatusOK {
			t.Fatalf("status = %d, body %v", status, body)
		}
		if body["valid"] != true || body["trainee_name"] != "Jane Doe" {
			t.Errorf("body = %v", body)
		}
		if body["recipient_email"] != "assessor@example.com" || body["requires_gmc"] != true {
			t.Errorf("body = %v", body)
		}
		evidence, _ := body["evidence"].(map[string]any)
		if evidence["id"] != "evd-1" || evidence["form_type"] != "DOPS" {
			t.Errorf("evidence = %v", evidence)
		}
		linked, _ := body["linked_evidence"].([]any)
		if len(linked) != 1 {
			t.Errorf("linked_evidence = %v", linked)
		}
	})
}

func TestWorkbookRequiresAuth(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	handler := svc.Handler()

	status, body := doJSON(t, handler, http.MethodGet, "/api/workbook", "", nil)
	if status != http.StatusUnauthorized || body["code"] != "UNAUTHORIZED" {
		t.Errorf("got %d %v", status, body)
	}
}

func TestSupervisorCannotMutateWorkbook(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	handler := svc.Handler()
	supervisor := seedUser(t, st, "usr-2", "John Smith", "john@example.com", "supervisor", "")
	token := sessionToken(t, svc, supervisor)

	status, _ := doJSON(t, handler, http.MethodGet, "/api/workbook", token, nil)
	if status != http.StatusOK {
		t.Errorf("supervisor read = %d, want 200", status)
	}
	status, body := doJSON(t, handler, http.MethodPost, "/api/workbook/navigate", token, map[string]any{"view": "settings"})
	if status != http.StatusForbidden || body["code"] != "FORBIDDEN" {
		t.Errorf("supervisor write = %d %v", status, body)
	}
}

func TestWorkbookSubmitFlow(t *testing.T) {
	svc, st, _, idx, _ := newTestService(t)
	handler := svc.Handler()
	trainee := seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")
	token := sessionToken(t, svc, trainee)

	status, state := doJSON(t, handler, http.MethodPost, "/api/workbook/form/open", token, map[string]any{
		"type":   "DOPS",
		"params": map[string]any{"specialty": "Cataract"},
	})
	if status != http.StatusOK || state["view"] != "dops-form" {
		t.Fatalf("open form = %d %v", status, state)
	}

	status, body := doJSON(t, handler, http.MethodPost, "/api/workbook/form/submit", token, map[string]any{
		"type":    "DOPS",
		"title":   "Phacoemulsification",
		"payload": map[string]any{"procedure": "cataract surgery"},
	})
	if status != http.StatusOK {
		t.Fatalf("submit = %d %v", status, body)
	}
	evidence, _ := body["evidence"].(map[string]any)
	id, _ := evidence["id"].(string)
	if id == "" {
		t.Fatalf("no evidence id in %v", body)
	}
	submitState, _ := body["state"].(map[string]any)
	if submitState["view"] != "evidence-list" {
		t.Errorf("post-submit view = %v, want evidence-list", submitState["view"])
	}

	if _, err := st.GetEvidenceSnapshot(context.Background(), id); err != nil {
		t.Errorf("expected a snapshot for %s: %v", id, err)
	}
	if _, ok := idx.records[id]; !ok {
		t.Errorf("expected %s in the search index", id)
	}

	status, resp := doJSON(t, handler, http.MethodGet, "/api/search?q=cataract", token, nil)
	if status != http.StatusOK {
		t.Fatalf("search = %d", status)
	}
	if total, _ := resp["total"].(float64); total != 1 {
		t.Errorf("search total = %v, want 1", resp["total"])
	}
}

func TestWorkbookLinkingFlowOverHTTP(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	handler := svc.Handler()
	trainee := seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")
	token := sessionToken(t, svc, trainee)

	item := submitEvidence(t, svc, "usr-1", portfolio.Patch{Type: portfolio.TypeDOPS, Title: "Linked DOPS"})

	status, state := doJSON(t, handler, http.MethodPost, "/api/workbook/links/begin", token, map[string]any{
		"requirementKey": "EPA-L2-1-0",
		"section":        1,
	})
	if status != http.StatusOK || state["selecting"] != true {
		t.Fatalf("begin = %d %v", status, state)
	}
	if state["view"] != "evidence-browser" {
		t.Errorf("view = %v, want evidence-browser", state["view"])
	}

	status, state = doJSON(t, handler, http.MethodPost, "/api/workbook/links/confirm", token, map[string]any{
		"evidenceIds": []string{item.ID},
	})
	if status != http.StatusOK || state["selecting"] != false {
		t.Fatalf("confirm = %d %v", status, state)
	}
	links, _ := state["links"].(map[string]any)
	if linked, _ := links["EPA-L2-1-0"].([]any); len(linked) != 1 {
		t.Errorf("links = %v", links)
	}

	// A second begin without an active selection errors; cancel outside a
	// selection errors too.
	status, body := doJSON(t, handler, http.MethodPost, "/api/workbook/links/cancel", token, nil)
	if status != http.StatusConflict || body["code"] != "CONFLICT" {
		t.Errorf("cancel outside selection = %d %v", status, body)
	}

	status, state = doJSON(t, handler, http.MethodPost, "/api/workbook/links/remove", token, map[string]any{
		"requirementKey": "EPA-L2-1-0",
		"evidenceId":     item.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("remove = %d", status)
	}
	links, _ = state["links"].(map[string]any)
	if _, ok := links["EPA-L2-1-0"]; ok {
		t.Errorf("links after remove = %v", links)
	}
}

func TestMandatoryFormAutoLinkOverHTTP(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	handler := svc.Handler()
	trainee := seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")
	token := sessionToken(t, svc, trainee)

	// Position on an EPA form first so the return target is recorded.
	status, _ := doJSON(t, handler, http.MethodPost, "/api/workbook/form/open", token, map[string]any{
		"type":   "EPA",
		"params": map[string]any{"level": "2"},
	})
	if status != http.StatusOK {
		t.Fatal("open EPA form failed")
	}

	status, state := doJSON(t, handler, http.MethodPost, "/api/workbook/mandatory-form", token, map[string]any{
		"expectedType":   "DOPS",
		"requirementKey": "EPA-L2-1-0",
		"section":        1,
	})
	if status != http.StatusOK || state["view"] != "dops-form" {
		t.Fatalf("mandatory-form = %d %v", status, state)
	}

	status, body := doJSON(t, handler, http.MethodPost, "/api/workbook/form/submit", token, map[string]any{
		"type":  "DOPS",
		"title": "Mandatory DOPS",
	})
	if status != http.StatusOK {
		t.Fatalf("submit = %d", status)
	}
	state, _ = body["state"].(map[string]any)
	if state["view"] != "epa-form" {
		t.Errorf("post-submit view = %v, want epa-form", state["view"])
	}
	evidence, _ := body["evidence"].(map[string]any)
	links, _ := state["links"].(map[string]any)
	if linked, _ := links["EPA-L2-1-0"].([]any); len(linked) != 1 || linked[0] != evidence["id"] {
		t.Errorf("auto-link missing: %v", links)
	}
}

func TestMSFDuplicateRedirectsWithNotice(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	handler := svc.Handler()
	trainee := seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")
	token := sessionToken(t, svc, trainee)

	existing := submitEvidence(t, svc, "usr-1", portfolio.Patch{Type: portfolio.TypeMSF, Title: "MSF round 1"})

	status, state := doJSON(t, handler, http.MethodPost, "/api/workbook/form/open", token, map[string]any{"type": "MSF"})
	if status != http.StatusOK {
		t.Fatalf("open = %d", status)
	}
	if state["notice"] == nil || state["notice"] == "" {
		t.Error("expected a notice about the in-progress MSF")
	}
	params, _ := state["params"].(map[string]any)
	if params["evidenceId"] != existing.ID {
		t.Errorf("params = %v, want redirect to %s", params, existing.ID)
	}

	// The notice is consumed; the next read must not repeat it.
	status, state = doJSON(t, handler, http.MethodGet, "/api/workbook", token, nil)
	if status != http.StatusOK {
		t.Fatalf("state = %d", status)
	}
	if notice, ok := state["notice"]; ok && notice != "" {
		t.Errorf("notice repeated: %v", notice)
	}
}

// Submitting an id-less MSF patch straight through the API must merge into
// the active round rather than create a second one.
func TestMSFDirectSubmitMergesIntoActive(t *testing.T) {
	svc, st, _, _, _ := newTestService(t)
	handler := svc.Handler()
	trainee := seedUser(t, st, "usr-1", "Jane Doe", "jane@example.com", "trainee", "")
	token := sessionToken(t, svc, trainee)

	existing := submitEvidence(t, svc, "usr-1", portfolio.Patch{Type: portfolio.TypeMSF, Title: "MSF round 1"})

	status, body := doJSON(t, handler, http.MethodPost, "/api/workbook/form/submit", token, map[string]any{
		"type":  "MSF",
		"title": "MSF round 2 attempt",
	})
	if status != http.StatusOK {
		t.Fatalf("submit = %d %v", status, body)
	}
	evidence, _ := body["evidence"].(map[string]any)
	if evidence["id"] != existing.ID {
		t.Errorf("evidence id = %v, want merge into %s", evidence["id"], existing.ID)
	}

	count := 0
	for _, item := range svc.WorkbookState("usr-1").Evidence {
		if item.Type == portfolio.TypeMSF {
			count++
		}
	}
	if count != 1 {
		t.Errorf("MSF count = %d, want 1", count)
	}
}
