package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teammatch/internal/blob"
	"teammatch/internal/core"
)

const themesCSV = "theme,company,max_teams,responsible,email,description,background,problem,expected_result\n" +
	"Search,Acme,1,Jane,jane@example.com,d,b,p,r\n" +
	"Vision,Initech,2,John,john@example.com,d,b,p,r\n"

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	t       *testing.T
	handler http.Handler
	blobs   blob.Store
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	blobs := blob.NewMemory()
	svc := core.NewInMemoryService(nil, core.WithBlobStore(blobs))
	return &apiFixture{
		t:       t,
		handler: NewRouter(svc, Options{Blobs: blobs, AllowedOrigins: []string{"https://bot.example"}, MaxUploadBytes: 4096}),
		blobs:   blobs,
	}
}

func (a *apiFixture) do(method, target string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = httptest.NewRequest(method, target, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, r)
	return rec
}

func (a *apiFixture) upload(name, content string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(a.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(a.t, err)
	require.NoError(a.t, w.Close())
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *apiFixture) createEvent(name string) core.Event {
	a.t.Helper()
	up := a.upload("themes.csv", themesCSV)
	require.Equal(a.t, http.StatusCreated, up.Code, up.Body.String())
	key := decode[map[string]any](a.t, up)["key"].(string)

	rec := a.do(http.MethodPost, "/api/v1/events", map[string]any{
		"name": name, "organizer_id": "org", "organizer_alias": "@org", "max_members": 2, "upload_key": key,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.Event](a.t, rec)
}

func TestCreateEventFlow(t *testing.T) {
	api := newAPI(t)
	event := api.createEvent("Hackathon")
	assert.Equal(t, "Hackathon", event.Name)

	rec := api.do(http.MethodGet, "/api/v1/event-name-available?name=Hackathon", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["available"])

	rec = api.do(http.MethodGet, "/api/v1/events/"+event.Key+"/themes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	themes := decode[[]core.Theme](t, rec)
	require.Len(t, themes, 2)
	assert.Equal(t, "Search", themes[0].Name)

	rec = api.do(http.MethodGet, "/api/v1/events?organizer=org", nil)
	assert.Len(t, decode[[]core.Event](t, rec), 1)
	rec = api.do(http.MethodGet, "/api/v1/events?member=nobody", nil)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	up := api.upload("themes.csv", themesCSV)
	key := decode[map[string]any](t, up)["key"].(string)
	rec = api.do(http.MethodPost, "/api/v1/events", map[string]any{
		"name": "Hackathon", "organizer_id": "org", "max_members": 2, "upload_key": key,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "event_name_taken", decode[errorBody](t, rec).Code)
}

func TestCreateEventReportsTableProblems(t *testing.T) {
	api := newAPI(t)
	up := api.upload("themes.csv", strings.Replace(themesCSV, "email,", "", 1))
	key := decode[map[string]any](t, up)["key"].(string)

	rec := api.do(http.MethodPost, "/api/v1/events", map[string]any{
		"name": "Hackathon", "organizer_id": "org", "max_members": 2, "upload_key": key,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, codeInvalidTable, body.Code)
	assert.Equal(t, []string{"Отстуствует заголовок email."}, body.Details)
}

func TestCreateEventValidatesBody(t *testing.T) {
	api := newAPI(t)
	rec := api.do(http.MethodPost, "/api/v1/events", map[string]any{"name": "E", "organizer_id": "org"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, codeInvalidArgument, body.Code)
	assert.Contains(t, body.Fields, "maxmembers:required")

	rec = api.do(http.MethodPost, "/api/v1/events", map[string]any{
		"name": "E", "organizer_id": "org", "max_members": 2, "upload_key": "uploads/missing.csv",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeUploadNotFound, decode[errorBody](t, rec).Code)
}

func TestUploadLimits(t *testing.T) {
	api := newAPI(t)
	rec := api.upload("big.csv", strings.Repeat("x", 8192))
	assert.NotEqual(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/uploads", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamLifecycle(t *testing.T) {
	api := newAPI(t)
	event := api.createEvent("Hackathon")
	themes := decode[[]core.Theme](t, api.do(http.MethodGet, "/api/v1/events/"+event.Key+"/themes", nil))
	search := themes[0]
	base := "/api/v1/events/" + event.Key

	rec := api.do(http.MethodPost, base+"/teams", map[string]any{"theme_key": search.Key, "name": "Alpha", "leader_id": "m", "leader_alias": "@m"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	team := decode[core.Team](t, rec)
	teamURL := base + "/teams/" + team.Key

	rec = api.do(http.MethodPost, base+"/teams", map[string]any{"theme_key": search.Key, "name": "Beta", "leader_id": "n"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "theme_full", decode[errorBody](t, rec).Code)

	rec = api.do(http.MethodGet, base+"/lead-themes?member=n", nil)
	lead := decode[[]core.Theme](t, rec)
	require.Len(t, lead, 1)
	assert.Equal(t, "Vision", lead[0].Name)

	rec = api.do(http.MethodPost, teamURL+"/join", map[string]any{"member_id": "a", "alias": "@a"})
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[core.LeaderInfo](t, rec)
	assert.Equal(t, "m", info.LeaderID)

	rec = api.do(http.MethodGet, teamURL+"/requests", nil)
	assert.Len(t, decode[[]core.Member](t, rec), 1)

	rec = api.do(http.MethodPost, teamURL+"/members/a/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.Occupancy{Accepted: 2, Capacity: 2}, decode[core.Occupancy](t, rec))

	rec = api.do(http.MethodPost, teamURL+"/join", map[string]any{"member_id": "b"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "team_unavailable", decode[errorBody](t, rec).Code)

	rec = api.do(http.MethodDelete, teamURL+"/members/m", nil)
	assert.Equal(t, "leader_removal", decode[errorBody](t, rec).Code)

	rec = api.do(http.MethodPost, teamURL+"/toggle", nil)
	assert.Equal(t, false, decode[map[string]any](t, rec)["open"])

	rec = api.do(http.MethodPut, teamURL+"/needs", map[string]any{"needs": "designer"})
	assert.Equal(t, "designer", decode[core.Team](t, rec).Needs)

	rec = api.do(http.MethodGet, base+"/members/a/team", nil)
	assert.Equal(t, team.Key, decode[core.Team](t, rec).Key)

	rec = api.do(http.MethodGet, "/api/v1/members/a/alias", nil)
	assert.Equal(t, "@a", decode[map[string]any](t, rec)["alias"])

	rec = api.do(http.MethodDelete, teamURL+"?leader_id=m", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"a"}, decode[map[string]any](t, rec)["notify"])

	rec = api.do(http.MethodGet, teamURL, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "team_not_found", decode[errorBody](t, rec).Code)

	rec = api.do(http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.CascadeSummary{Themes: 2}, decode[core.CascadeSummary](t, rec))
}

func TestCORSAndHealth(t *testing.T) {
	api := newAPI(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/events", nil)
	r.Header.Set("Origin", "https://bot.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, r)
	assert.Equal(t, "https://bot.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadWithoutBlobStore(t *testing.T) {
	h := NewRouter(core.NewInMemoryService(nil), Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
