package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"codeduel-server/config"
	"codeduel-server/judge"
	"codeduel-server/match"
	"codeduel-server/problems"
	"codeduel-server/storage"
)

type fakeReadStore struct {
	history     []storage.HistoryRecord
	leaderboard []storage.LeaderboardEntry
	matches     map[string]*match.Match
}

func (f *fakeReadStore) GetMatch(ctx context.Context, id string) (*match.Match, error) {
	return f.matches[id], nil
}

func (f *fakeReadStore) ListHistory(ctx context.Context, userID string) ([]storage.HistoryRecord, error) {
	return f.history, nil
}

func (f *fakeReadStore) ListLeaderboard(ctx context.Context, limit, offset int) ([]storage.LeaderboardEntry, error) {
	return f.leaderboard, nil
}

type fakeJudge struct {
	result judge.Result
}

func (f *fakeJudge) Score(ctx context.Context, solution, problem string) (judge.Result, error) {
	return f.result, nil
}

func newTestRouter(store *fakeReadStore, j judge.Judge) *gin.Engine {
	gin.SetMode(gin.TestMode)
	catalog := problems.New([]problems.Problem{
		{Slug: "two-sum", Title: "Two Sum", Rating: 800, Topics: []string{"arrays"}, Body: "Find two numbers..."},
		{Slug: "joins", Title: "Joins", Rating: 900, Topics: []string{"SQL"}, Body: "Write a query..."},
	})
	h := NewHandler(config.Defaults(), store, nil, catalog, j)
	r := gin.New()
	h.Routes(r)
	return r
}

func doRequest(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeReadStore{}, &fakeJudge{})
	w := doRequest(r, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s, want status ok", w.Body.String())
	}
}

func TestQuestion(t *testing.T) {
	r := newTestRouter(&fakeReadStore{}, &fakeJudge{})

	w := doRequest(r, http.MethodGet, "/question?slug=two-sum", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var p problems.Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if p.Slug != "two-sum" || p.Body == "" {
		t.Errorf("problem = %+v, want two-sum with body", p)
	}

	if w := doRequest(r, http.MethodGet, "/question", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing slug: status = %d, want 400", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/question?slug=nope", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown slug: status = %d, want 404", w.Code)
	}
}

func TestHistoryRequiresAuth(t *testing.T) {
	r := newTestRouter(&fakeReadStore{}, &fakeJudge{})
	w := doRequest(r, http.MethodGet, "/api/history", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHistory(t *testing.T) {
	store := &fakeReadStore{history: []storage.HistoryRecord{
		{MatchID: "m1", Question: "two-sum", Score: 4, IsWin: true, OpponentName: "Bob"},
	}}
	r := newTestRouter(store, &fakeJudge{})

	w := doRequest(r, http.MethodGet, "/api/history", "dev", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var list []storage.HistoryRecord
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(list) != 1 || list[0].MatchID != "m1" || !list[0].IsWin {
		t.Errorf("history = %+v", list)
	}
}

func TestLeaderboard(t *testing.T) {
	store := &fakeReadStore{leaderboard: []storage.LeaderboardEntry{
		{UserID: "alice", Name: "Alice", Rating: 1200},
		{UserID: "bob", Name: "Bob", Rating: 1100},
	}}
	r := newTestRouter(store, &fakeJudge{})

	w := doRequest(r, http.MethodGet, "/api/leaderboard", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Entries []storage.LeaderboardEntry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].UserID != "alice" {
		t.Errorf("entries = %+v", resp.Entries)
	}
}

func TestMatchNotFound(t *testing.T) {
	r := newTestRouter(&fakeReadStore{matches: map[string]*match.Match{}}, &fakeJudge{})
	w := doRequest(r, http.MethodGet, "/api/match/unknown", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestMatchLiveAbsent(t *testing.T) {
	// Nil live store behaves as an always-empty cache.
	r := newTestRouter(&fakeReadStore{}, &fakeJudge{})
	w := doRequest(r, http.MethodGet, "/api/match/m1/live", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestResubmit(t *testing.T) {
	j := &fakeJudge{result: judge.Result{Score: 4, Feedback: "solid"}}
	r := newTestRouter(&fakeReadStore{}, j)

	w := doRequest(r, http.MethodPost, "/resubmit", "dev", `{"slug":"two-sum","solution":"func solve() {}"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var res judge.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if res.Score != 4 {
		t.Errorf("score = %d, want 4", res.Score)
	}

	if w := doRequest(r, http.MethodPost, "/resubmit", "", `{"slug":"two-sum","solution":"x"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d, want 401", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/resubmit", "dev", `{"slug":"two-sum"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing solution: status = %d, want 400", w.Code)
	}
}
