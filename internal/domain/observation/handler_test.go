package observation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type staticConcepts map[string]string

func (s staticConcepts) DisplayName(_ context.Context, loincNum string) (string, error) {
	if name, ok := s[loincNum]; ok {
		return name, nil
	}
	return "", nil
}

func newTestHandler(repo Repository, clk *stepClock) *Handler {
	svc := newTestService(repo, clk)
	return NewHandler(svc, clk, staticConcepts{wbc: "Leukocytes [#/volume] in Blood"})
}

func do(h *Handler, method, path string, body string, fn func(c echo.Context) error, params map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	if err := fn(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestCreateObservation(t *testing.T) {
	repo := newMockFactRepo()
	clk := &stepClock{t: ts("2016-05-17T10:00:00Z")}
	h := newTestHandler(repo, clk)
	patient := uuid.New()

	body := `{"loinc_num":"6690-2","value_num":7800,"start":"17/05/2016 10:00"}`
	rec := do(h, http.MethodPost, "/patients/"+patient.String()+"/observations", body,
		h.CreateObservation, map[string]string{"id": patient.String()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var f Fact
	if err := json.Unmarshal(rec.Body.Bytes(), &f); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if f.Value != 7800 || !f.ValidStart.Equal(ts("2016-05-17T10:00:00Z")) {
		t.Errorf("created fact = %+v", f)
	}
	if f.TxnEnd != nil {
		t.Error("new fact should be born current")
	}
}

func TestCreateObservation_SymbolicNow(t *testing.T) {
	repo := newMockFactRepo()
	clk := &stepClock{t: ts("2016-05-17T10:00:00Z")}
	h := newTestHandler(repo, clk)
	patient := uuid.New()

	body := `{"loinc_num":"6690-2","value_num":7800,"start":"now"}`
	rec := do(h, http.MethodPost, "/patients/"+patient.String()+"/observations", body,
		h.CreateObservation, map[string]string{"id": patient.String()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(repo.facts) != 1 || !repo.facts[0].ValidStart.Equal(clk.Now()) {
		t.Error("symbolic now should resolve to the clock reading")
	}
}

func TestRetroUpdateHandler_NoMatch(t *testing.T) {
	repo := newMockFactRepo()
	clk := &stepClock{t: ts("2016-05-17T10:00:00Z")}
	h := newTestHandler(repo, clk)
	patient := uuid.New()

	body := `{"loinc_num":"6690-2","target":"17/05/2016 10:00","value_num":8000}`
	rec := do(h, http.MethodPost, "/patients/"+patient.String()+"/observations/retro-update", body,
		h.RetroUpdate, map[string]string{"id": patient.String()})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no measurement found at this exact time") {
		t.Errorf("404 body should name the exact-time miss, got %s", rec.Body.String())
	}
}

func TestRetroUpdateHandler_Conflict(t *testing.T) {
	repo := newMockFactRepo()
	clk := &stepClock{t: ts("2016-05-17T10:00:00Z")}
	h := newTestHandler(repo, clk)
	patient := uuid.New()

	svc := newTestService(repo, clk)
	orig, err := svc.Create(context.Background(), patient, wbc, 7800, clk.Now(), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.beforeTx = func(r *mockFactRepo) {
		r.beforeTx = nil
		_ = r.CloseTransaction(context.Background(), orig.ID, clk.Now().Add(time.Minute))
	}

	body := `{"loinc_num":"6690-2","target":"17/05/2016 10:00","value_num":8000}`
	rec := do(h, http.MethodPost, "/patients/"+patient.String()+"/observations/retro-update", body,
		h.RetroUpdate, map[string]string{"id": patient.String()})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestObservationHistoryHandler(t *testing.T) {
	repo := newMockFactRepo()
	clk := &stepClock{t: ts("2016-05-17T10:00:00Z")}
	h := newTestHandler(repo, clk)
	patient := uuid.New()

	svc := newTestService(repo, clk)
	if _, err := svc.Create(context.Background(), patient, wbc, 7800, clk.Now(), nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := do(h, http.MethodGet,
		"/patients/"+patient.String()+"/observations?loinc=6690-2&since=01/01/2016&until=31/12/2025",
		"", h.ObservationHistory, map[string]string{"id": patient.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Facts) != 1 {
		t.Errorf("history returned %d facts, want 1", len(resp.Facts))
	}
	if resp.CommonName == "" {
		t.Error("history response should carry the dictionary display name")
	}
}

func TestObservationHistoryHandler_EmptyIsOK(t *testing.T) {
	repo := newMockFactRepo()
	clk := &stepClock{t: ts("2016-05-17T10:00:00Z")}
	h := newTestHandler(repo, clk)
	patient := uuid.New()

	rec := do(h, http.MethodGet,
		"/patients/"+patient.String()+"/observations?loinc=6690-2&since=01/01/2016&until=now",
		"", h.ObservationHistory, map[string]string{"id": patient.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("empty history should be 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"facts":[]`) {
		t.Errorf("empty history should serialize an empty list, got %s", rec.Body.String())
	}
}

func TestRetroDeleteHandler_BadTimes(t *testing.T) {
	repo := newMockFactRepo()
	clk := &stepClock{t: ts("2016-05-17T10:00:00Z")}
	h := newTestHandler(repo, clk)
	patient := uuid.New()

	body := `{"loinc_num":"6690-2","target":"sometime yesterday"}`
	rec := do(h, http.MethodPost, "/patients/"+patient.String()+"/observations/retro-delete", body,
		h.RetroDelete, map[string]string{"id": patient.String()})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
