package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"expense-api/internal/auth"
	"expense-api/internal/observability"
	"expense-api/internal/service"
	"expense-api/internal/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// HandlersTestSuite drives the HTTP API end to end against an in-memory store
type HandlersTestSuite struct {
	suite.Suite
	db      *storage.DB
	router  *mux.Router
	metrics *observability.Metrics
}

func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db

	tokens, err := auth.NewTokenIssuer("test-secret")
	require.NoError(suite.T(), err)

	suite.metrics = observability.NewMetrics(prometheus.NewRegistry())
	h := NewHandlers(db,
		service.NewAccounts(db, tokens),
		service.NewExpenses(db),
		observability.NewLogger("error", "text", io.Discard),
		suite.metrics,
	)
	suite.router = mux.NewRouter()
	h.RegisterRoutes(suite.router)
}

func (suite *HandlersTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *HandlersTestSuite) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) register(name, email string) string {
	w := suite.do(http.MethodPost, "/users", "",
		fmt.Sprintf(`{"name":%q,"email":%q,"password":"secret123"}`, name, email))
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(suite.T(), resp.Token)
	return resp.Token
}

func (suite *HandlersTestSuite) createExpense(token, body string) int64 {
	w := suite.do(http.MethodPost, "/expenses", token, body)
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID int64 `json:"id"`
	}
	require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func (suite *HandlersTestSuite) TestRegisterLoginFlow() {
	w := suite.do(http.MethodPost, "/users", "", `{"name":"Ann","email":"ann@x.com","password":"secret123"}`)
	require.Equal(suite.T(), http.StatusCreated, w.Code)
	body := w.Body.String()
	assert.NotContains(suite.T(), body, "password")
	assert.NotContains(suite.T(), body, "tokens")
	assert.NotContains(suite.T(), body, "$2a$")
	assert.Contains(suite.T(), body, `"email":"ann@x.com"`)

	w = suite.do(http.MethodPost, "/users/login", "", `{"email":"ann@x.com","password":"secret123"}`)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"token":"`)

	w = suite.do(http.MethodGet, "/expenses", "", "")
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlersTestSuite) TestRegisterValidation() {
	suite.register("Ann", "ann@x.com")

	bodies := []string{
		`{"name":"Ann","email":"ann@x.com","password":"secret123"}`,
		`{"name":"Ann","email":"nope","password":"secret123"}`,
		`{"name":"Ann","email":"ann2@x.com","password":"short"}`,
		`{"name":"Ann","email":"ann2@x.com","password":"PASSWORD123"}`,
		`not json`,
	}
	for _, body := range bodies {
		w := suite.do(http.MethodPost, "/users", "", body)
		assert.Equal(suite.T(), http.StatusBadRequest, w.Code, body)
	}
}

func (suite *HandlersTestSuite) TestLoginFailuresAreIdentical() {
	suite.register("Ann", "ann@x.com")

	wrong := suite.do(http.MethodPost, "/users/login", "", `{"email":"ann@x.com","password":"secret999"}`)
	unknown := suite.do(http.MethodPost, "/users/login", "", `{"email":"who@x.com","password":"secret123"}`)

	assert.Equal(suite.T(), http.StatusUnauthorized, wrong.Code)
	assert.Equal(suite.T(), wrong.Code, unknown.Code)
	assert.JSONEq(suite.T(), wrong.Body.String(), unknown.Body.String())
	assert.Equal(suite.T(), 2.0, testutil.ToFloat64(suite.metrics.AuthFailuresTotal.WithLabelValues("bad_credentials")))
}

func (suite *HandlersTestSuite) TestAuthGate() {
	token := suite.register("Ann", "ann@x.com")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + token},
		{"empty bearer", "Bearer "},
		{"bad signature", "Bearer " + token + "x"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/users/me", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			suite.router.ServeHTTP(w, req)
			assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
			assert.JSONEq(suite.T(), `{"error":"Please authenticate."}`, w.Body.String())
		})
	}

	w := suite.do(http.MethodGet, "/users/me", token, "")
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"name":"Ann"`)
}

func (suite *HandlersTestSuite) TestLogoutRevokesOnlyCurrentToken() {
	first := suite.register("Ann", "ann@x.com")
	w := suite.do(http.MethodPost, "/users/login", "", `{"email":"ann@x.com","password":"secret123"}`)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &login))

	w = suite.do(http.MethodPost, "/users/logout", first, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)

	assert.Equal(suite.T(), http.StatusUnauthorized, suite.do(http.MethodGet, "/users/me", first, "").Code)
	assert.Equal(suite.T(), http.StatusOK, suite.do(http.MethodGet, "/users/me", login.Token, "").Code)

	w = suite.do(http.MethodPost, "/users/logoutAll", login.Token, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), http.StatusUnauthorized, suite.do(http.MethodGet, "/users/me", login.Token, "").Code)
}

func (suite *HandlersTestSuite) TestUpdateProfile() {
	token := suite.register("Ann", "ann@x.com")

	w := suite.do(http.MethodPatch, "/users/me", token, `{"name":"Annie"}`)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"name":"Annie"`)

	w = suite.do(http.MethodPatch, "/users/me", token, `{"isAdmin":true}`)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.JSONEq(suite.T(), `{"error":"Invalid updates!"}`, w.Body.String())
}

func (suite *HandlersTestSuite) TestExpenseCRUD() {
	token := suite.register("Ann", "ann@x.com")

	id := suite.createExpense(token, `{"description":"Lunch","amount":12.5}`)
	suite.createExpense(token, `{"description":"Bus","amount":2}`)

	w := suite.do(http.MethodGet, fmt.Sprintf("/expenses/%d", id), token, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"description":"Lunch"`)

	w = suite.do(http.MethodGet, "/expenses?sortBy=amount:asc&limit=1", token, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), "Bus", list[0]["description"])

	w = suite.do(http.MethodPatch, fmt.Sprintf("/expenses/%d", id), token, `{"description":"Dinner"}`)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"description":"Dinner"`)

	w = suite.do(http.MethodGet, "/expenses/summary", token, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `{"count":2,"total":14.5,"withoutAmount":0}`, w.Body.String())

	w = suite.do(http.MethodDelete, fmt.Sprintf("/expenses/%d", id), token, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, fmt.Sprintf("/expenses/%d", id), token, "").Code)
}

func (suite *HandlersTestSuite) TestExpenseValidation() {
	token := suite.register("Ann", "ann@x.com")
	id := suite.createExpense(token, `{"description":"Lunch"}`)

	assert.Equal(suite.T(), http.StatusBadRequest, suite.do(http.MethodPost, "/expenses", token, `{"amount":3}`).Code)
	assert.Equal(suite.T(), http.StatusBadRequest, suite.do(http.MethodGet, "/expenses?sortBy=password:desc", token, "").Code)
	assert.Equal(suite.T(), http.StatusBadRequest, suite.do(http.MethodGet, "/expenses?limit=abc", token, "").Code)

	for _, body := range []string{`{"completed":true}`, `{"owner":1}`, `{"description":"x","extra":1}`} {
		w := suite.do(http.MethodPatch, fmt.Sprintf("/expenses/%d", id), token, body)
		assert.Equal(suite.T(), http.StatusBadRequest, w.Code, body)
	}
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, "/expenses/abc", token, "").Code)
}

func (suite *HandlersTestSuite) TestCrossOwnerAccessIsNotFound() {
	ann := suite.register("Ann", "ann@x.com")
	bob := suite.register("Bob", "bob@x.com")
	id := suite.createExpense(ann, `{"description":"Lunch","amount":10}`)
	path := fmt.Sprintf("/expenses/%d", id)

	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, path, bob, "").Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodPatch, path, bob, `{"description":"mine"}`).Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodDelete, path, bob, "").Code)

	w := suite.do(http.MethodGet, "/expenses", bob, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `[]`, w.Body.String())

	w = suite.do(http.MethodGet, path, ann, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `"description":"Lunch"`)
}

func (suite *HandlersTestSuite) TestDeleteAccountCascades() {
	token := suite.register("Ann", "ann@x.com")
	suite.createExpense(token, `{"description":"Lunch","amount":10}`)
	suite.createExpense(token, `{"description":"Bus","amount":2}`)

	w := suite.do(http.MethodDelete, "/users/me", token, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.NotContains(suite.T(), w.Body.String(), "tokens")

	assert.Equal(suite.T(), http.StatusUnauthorized, suite.do(http.MethodGet, "/expenses", token, "").Code)

	// Re-registering the same email yields a fresh, empty account.
	token = suite.register("Ann", "ann@x.com")
	w = suite.do(http.MethodGet, "/expenses", token, "")
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `[]`, w.Body.String())
}

func (suite *HandlersTestSuite) TestHealth() {
	w := suite.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.JSONEq(suite.T(), `{"status":"ok"}`, w.Body.String())
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
