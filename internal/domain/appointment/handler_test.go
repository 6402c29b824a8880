package appointment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/api/internal/platform/auth"
)

func newTestServer(t *testing.T) (*echo.Echo, *Service) {
	t.Helper()
	svc := newTestService(newMockRepo())
	e := echo.New()
	e.Use(auth.DevAuthMiddleware())
	api := e.Group("/api")
	NewHandler(svc).RegisterRoutes(api)
	return e, svc
}

func doJSON(e *echo.Echo, method, path, body, userID, role string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Dev-User", userID)
	req.Header.Set("X-Dev-Role", role)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createBody(starts ...time.Time) string {
	parts := make([]string, 0, len(starts))
	for _, s := range starts {
		parts = append(parts, fmt.Sprintf("%q", s.Format(time.RFC3339)))
	}
	return fmt.Sprintf(`{"description":"Consulta","proposed_starts":[%s]}`, strings.Join(parts, ","))
}

func TestHandler_CreateAndList(t *testing.T) {
	e, _ := newTestServer(t)
	patient := uuid.NewString()

	rec := doJSON(e, http.MethodPost, "/api/appointments/", createBody(at(7, 14), at(8, 15), at(9, 16)), patient, auth.RoleRequester)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created Request
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Status != StatusRequested || len(created.Proposals) != 3 {
		t.Errorf("unexpected created request: %+v", created)
	}

	rec = doJSON(e, http.MethodGet, "/api/appointments/", "", patient, auth.RoleRequester)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Data  []Request `json:"data"`
		Total int       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if page.Total != 1 || len(page.Data) != 1 {
		t.Errorf("expected one visible request, got %d", page.Total)
	}
}

func TestHandler_CreateValidationCode(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/appointments/", createBody(at(7, 14), at(8, 15)), uuid.NewString(), auth.RoleRequester)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "validation_error") {
		t.Errorf("expected validation_error code in body: %s", rec.Body.String())
	}
}

func TestHandler_ConfirmFlow(t *testing.T) {
	e, svc := newTestServer(t)
	staff := uuid.NewString()

	req := seedRequest(t, svc, uuid.New())
	body := fmt.Sprintf(`{"proposal_id":%q}`, req.Proposals[1].ID)
	rec := doJSON(e, http.MethodPost, "/api/appointments/"+req.ID.String()+"/confirm", body, staff, auth.RoleStaff)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second confirm hits the terminal-state rule.
	rec = doJSON(e, http.MethodPost, "/api/appointments/"+req.ID.String()+"/confirm", body, staff, auth.RoleStaff)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_state") {
		t.Errorf("expected invalid_state code in body: %s", rec.Body.String())
	}
}

func TestHandler_ConfirmOccupiedCode(t *testing.T) {
	e, svc := newTestServer(t)
	staff := uuid.NewString()

	holder := seedRequest(t, svc, uuid.New())
	body := fmt.Sprintf(`{"proposal_id":%q}`, holder.Proposals[0].ID)
	if rec := doJSON(e, http.MethodPost, "/api/appointments/"+holder.ID.String()+"/confirm", body, staff, auth.RoleStaff); rec.Code != http.StatusOK {
		t.Fatalf("seed confirmation failed: %d", rec.Code)
	}

	loser := seedRequest(t, svc, uuid.New())
	body = fmt.Sprintf(`{"proposal_id":%q}`, loser.Proposals[0].ID)
	rec := doJSON(e, http.MethodPost, "/api/appointments/"+loser.ID.String()+"/confirm", body, staff, auth.RoleStaff)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "occupied_slot") {
		t.Errorf("expected occupied_slot code in body: %s", rec.Body.String())
	}
}

func TestHandler_SetPaidOnCancelled(t *testing.T) {
	e, svc := newTestServer(t)
	staff := uuid.NewString()

	req := seedRequest(t, svc, uuid.New())
	rec := doJSON(e, http.MethodPost, "/api/appointments/"+req.ID.String()+"/cancel", `{"reason":"no show"}`, staff, auth.RoleStaff)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/api/appointments/"+req.ID.String()+"/set-paid", `{"is_paid":true}`, staff, auth.RoleStaff)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_state") {
		t.Errorf("expected invalid_state code in body: %s", rec.Body.String())
	}
}

func TestHandler_StaffEndpointsForbiddenForRequester(t *testing.T) {
	e, svc := newTestServer(t)

	req := seedRequest(t, svc, uuid.New())
	body := fmt.Sprintf(`{"proposal_id":%q}`, req.Proposals[0].ID)
	rec := doJSON(e, http.MethodPost, "/api/appointments/"+req.ID.String()+"/confirm", body, uuid.NewString(), auth.RoleRequester)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for requester on confirm, got %d", rec.Code)
	}
}

func TestHandler_NotFoundCode(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/appointments/"+uuid.NewString()+"/cancel", "", uuid.NewString(), auth.RoleStaff)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not_found") {
		t.Errorf("expected not_found code in body: %s", rec.Body.String())
	}
}
