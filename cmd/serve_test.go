package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperkey/unlock-cli/internal/model"
	"github.com/paperkey/unlock-cli/internal/store"
)

type stubStore struct {
	store.Store
	sessions []model.SessionRecord
	getErr   error
}

func (s *stubStore) ListSessions(_ context.Context, filter store.SessionFilter) ([]model.SessionRecord, error) {
	var out []model.SessionRecord
	for _, rec := range s.sessions {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubStore) GetSession(_ context.Context, id string) (*model.SessionRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, rec := range s.sessions {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, eris.Errorf("session %s not found", id)
}

func TestHandleListSessions(t *testing.T) {
	st := &stubStore{sessions: []model.SessionRecord{
		{ID: "a", Status: model.SessionUnlocked},
		{ID: "b", Status: model.SessionFailed},
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions?status=unlocked", nil)
	rec := httptest.NewRecorder()
	handleListSessions(st)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []model.SessionRecord `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "a", body.Sessions[0].ID)
}

func TestHandleListSessions_InvalidLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions?limit=zero", nil)
	rec := httptest.NewRecorder()
	handleListSessions(&stubStore{})(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSession_NotFound(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/v1/sessions/{id}", handleGetSession(&stubStore{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetSession_Found(t *testing.T) {
	st := &stubStore{sessions: []model.SessionRecord{{ID: "abc", Status: model.SessionOpen}}}
	r := chi.NewRouter()
	r.Get("/v1/sessions/{id}", handleGetSession(st))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.SessionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.SessionOpen, got.Status)
}
