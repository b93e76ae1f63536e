package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterq/internal/config"
	"filterq/internal/logging"
	"filterq/internal/service"
)

func newTestServer(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.New(logging.Config{Level: "error", Format: "text"})
	svc, err := service.New(db, map[string]config.EntityConfig{
		"user": {
			Table: "users",
			Columns: map[string]string{
				"id":   "int",
				"name": "string",
				"age":  "int",
			},
			AllowedFields:  []string{"name", "age"},
			DefaultOrderBy: "name",
		},
	}, logger)
	require.NoError(t, err)

	return NewRouter(svc, Options{Logger: logger, DB: db}), mock
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestListEntities(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/entities", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Entities []struct {
			Name          string   `json:"name"`
			AllowedFields []string `json:"allowed_fields"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Entities, 1)
	assert.Equal(t, "user", out.Entities[0].Name)
	assert.Equal(t, []string{"age", "name"}, out.Entities[0].AllowedFields)
}

func TestQueryGroupedShape(t *testing.T) {
	h, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(int64(21)).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `age`, `id`, `name` FROM `users`")).
		WithArgs(int64(21)).
		WillReturnRows(sqlmock.NewRows([]string{"age", "id", "name"}).
			AddRow(30, 1, "ann").
			AddRow(41, 2, "bob"))
	mock.ExpectCommit()

	body := `{
		"groups": [
			{"op": "and", "filters": [{"name": "age", "op": ">=", "value": 21, "type": "int"}]}
		]
	}`
	rec := doRequest(t, h, http.MethodPost, "/v1/entities/user/query", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Items []map[string]any `json:"items"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(2), out.Total)
	assert.Len(t, out.Items, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFlatShape(t *testing.T) {
	h, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `users`")).
		WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"age", "id", "name"}).AddRow(30, 1, "ann"))
	mock.ExpectCommit()

	rec := doRequest(t, h, http.MethodPost, "/v1/entities/user/query", `{"filters": {"name": "ann"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryValidationErrorReturns400(t *testing.T) {
	h, mock := newTestServer(t)

	body := `{"groups": [{"op": "xor", "filters": [{"name": "", "value": null}]}]}`
	rec := doRequest(t, h, http.MethodPost, "/v1/entities/user/query", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "invalid filter input", out.Error)
	assert.NotEmpty(t, out.Details)
	require.NoError(t, mock.ExpectationsWereMet(), "invalid input must not reach the database")
}

func TestQueryUnauthorizedFieldReturns400(t *testing.T) {
	h, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	rec := doRequest(t, h, http.MethodPost, "/v1/entities/user/query", `{"filters": {"id": 7}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "fields not allowed for filtering", out.Error)
	assert.Equal(t, []string{"id"}, out.Details)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryUnknownEntityReturns404(t *testing.T) {
	h, mock := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/entities/ghost/query", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRejectsNonObjectBody(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/entities/user/query", `[1, 2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilterByURLParams(t *testing.T) {
	h, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 10")).
		WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"age", "id", "name"}).AddRow(30, 1, "ann"))
	mock.ExpectCommit()

	rec := doRequest(t, h, http.MethodGet, "/v1/entities/user?name=ann&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterByURLBadReservedParam(t *testing.T) {
	h, mock := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/entities/user?limit=oops", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "invalid filter input", out.Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestIDPropagated(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/entities", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}
