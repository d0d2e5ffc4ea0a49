package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"expense-api/internal/apperrors"
	"expense-api/internal/models"
	"expense-api/internal/observability"
	"expense-api/internal/service"
	"expense-api/internal/storage"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	accounts *service.Accounts
	expenses *service.Expenses
	db       *storage.DB
	log      logrus.FieldLogger
	metrics  *observability.Metrics
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, accounts *service.Accounts, expenses *service.Expenses, log logrus.FieldLogger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		accounts: accounts,
		expenses: expenses,
		db:       db,
		log:      log,
		metrics:  metrics,
	}
}

// RegisterRoutes registers every route on router. Routes touching per-user
// data sit behind AuthMiddleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.Register).Methods(http.MethodPost)
	router.HandleFunc("/users/login", h.Login).Methods(http.MethodPost)
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	protected := router.NewRoute().Subrouter()
	protected.Use(h.AuthMiddleware)

	protected.HandleFunc("/users/logout", h.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/users/logoutAll", h.LogoutAll).Methods(http.MethodPost)
	protected.HandleFunc("/users/me", h.GetProfile).Methods(http.MethodGet)
	protected.HandleFunc("/users/me", h.UpdateProfile).Methods(http.MethodPatch)
	protected.HandleFunc("/users/me", h.DeleteProfile).Methods(http.MethodDelete)

	protected.HandleFunc("/expenses", h.CreateExpense).Methods(http.MethodPost)
	protected.HandleFunc("/expenses", h.ListExpenses).Methods(http.MethodGet)
	protected.HandleFunc("/expenses/summary", h.Statistics).Methods(http.MethodGet)
	protected.HandleFunc("/expenses/{id}", h.GetExpense).Methods(http.MethodGet)
	protected.HandleFunc("/expenses/{id}", h.UpdateExpense).Methods(http.MethodPatch)
	protected.HandleFunc("/expenses/{id}", h.DeleteExpense).Methods(http.MethodDelete)
}

// authResponse is returned by registration and login.
type authResponse struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /users.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: user.Public(), Token: token})
}

// Login handles POST /users/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrAuthentication) {
			h.metrics.AuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user.Public(), Token: token})
}

// Logout handles POST /users/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), GetUserFromContext(r), GetTokenFromContext(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// LogoutAll handles POST /users/logoutAll.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.LogoutAll(r.Context(), GetUserFromContext(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetProfile handles GET /users/me.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetUserFromContext(r).Public())
}

// UpdateProfile handles PATCH /users/me.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var fields service.Fields
	if !h.decode(w, r, &fields) {
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), GetUserFromContext(r), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// DeleteProfile handles DELETE /users/me.
func (h *Handlers) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	if err := h.accounts.DeleteAccount(r.Context(), user); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger(r).WithField("user_id", user.ID).Info("account deleted")
	writeJSON(w, http.StatusOK, user.Public())
}

// CreateExpense handles POST /expenses.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var fields service.Fields
	if !h.decode(w, r, &fields) {
		return
	}

	expense, err := h.expenses.Create(r.Context(), GetUserFromContext(r).ID, fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// ListExpenses handles GET /expenses?limit=10&skip=10&sortBy=createdAt:desc.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := service.ParseListOptions(q.Get("limit"), q.Get("skip"), q.Get("sortBy"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	expenses, err := h.expenses.List(r.Context(), GetUserFromContext(r).ID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// GetExpense handles GET /expenses/{id}.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	expense, err := h.expenses.Get(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// UpdateExpense handles PATCH /expenses/{id}.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	var fields service.Fields
	if !h.decode(w, r, &fields) {
		return
	}
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	expense, err := h.expenses.Update(r.Context(), GetUserFromContext(r).ID, id, fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// DeleteExpense handles DELETE /expenses/{id}.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	expense, err := h.expenses.Delete(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger(r).WithError(err).Error("health check failed")
		writeErrorMessage(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// expenseID parses the {id} path variable. Ids that cannot exist answer 404,
// the same as ids owned by someone else.
func expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, http.StatusNotFound, "expense not found")
		return 0, false
	}
	return id, true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func (h *Handlers) logger(r *http.Request) logrus.FieldLogger {
	return h.log.WithField("request_id", observability.RequestID(r.Context()))
}

// writeError maps err onto a status code. Store errors are logged and their
// cause is never sent to the client.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger(r).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeErrorMessage(w, status, apperrors.PublicMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
