package wave_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/httpx"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

func (f *fixture) router() http.Handler {
	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	r.Route("/waves", wave.NewHandler(nil, f.svc).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(shared.ActorHeader, "petrov")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandleWaveLifecycle(t *testing.T) {
	f := newFixture(t, true)
	router := f.router()

	body := fmt.Sprintf(`{"kind":"inbound","stock_id":%d,"party":"acme ltd","planned_date":"2025-03-20","items":[{"item_code":"a-1","quantity":4}]}`, f.stock.ID)
	rr := do(t, router, http.MethodPost, "/waves", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created wave.Wave
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "INB-2025-0001", created.Number)
	require.Equal(t, "ACME LTD", created.Party)
	require.Equal(t, "petrov", created.CreatedBy)
	require.Equal(t, 20, created.PlannedDate.Day())

	path := fmt.Sprintf("/waves/%d", created.ID)
	rr = do(t, router, http.MethodPost, path+"/status", `{"status":"in_progress","actual_date":"2025-03-14"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, path+"/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, path+"/status", `{"status":"completed","actual_date":"2025-03-14"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "set by the server")

	rr = do(t, router, http.MethodPost, path+"/status", `{"status":"in_progress"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, router, http.MethodPost, path+"/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var done wave.Wave
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &done))
	require.Equal(t, wave.StatusCompleted, done.Status)
	require.NotNil(t, done.ActualDate)

	rr = do(t, router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched wave.Wave
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
	require.Len(t, fetched.Items, 1)

	rr = do(t, router, http.MethodDelete, path, "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, "/waves/999", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCreateValidation(t *testing.T) {
	f := newFixture(t, true)
	rr := do(t, f.router(), http.MethodPost, "/waves", `{"kind":"return","items":[{"item_code":"","quantity":0}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.GreaterOrEqual(t, len(problem.Problems), 4)
}

func TestHandleMissingReservedPlace(t *testing.T) {
	f := newFixture(t, false)
	w := f.create(t, wave.KindInbound, line("A", 1))
	rr := do(t, f.router(), http.MethodPost, fmt.Sprintf("/waves/%d/status", w.ID), `{"status":"in_progress"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "urn:warehouse:misconfiguration", problem.Type)
	require.Contains(t, problem.Detail, "INBOUND")
}

func TestHandleDocumentsAndSearch(t *testing.T) {
	f := newFixture(t, true)
	w := f.create(t, wave.KindInbound)
	router := f.router()

	rr := do(t, router, http.MethodGet, fmt.Sprintf("/waves/%d/documents", w.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "INB-2025-0001.zip")
	require.Equal(t, "inbounds/INB-2025-0001", rr.Body.String())

	rr = do(t, router, http.MethodGet, "/waves?kind=inbound&status=planned", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":1`)

	rr = do(t, router, http.MethodGet, "/waves?planned_from=14.03.2025", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodDelete, fmt.Sprintf("/waves/%d", w.ID), "")
	require.Equal(t, http.StatusNoContent, rr.Code)
}
