package handlers

import (
	"net/http"
)

// Statistics handles GET /expenses/summary: the count and total of the
// caller's expenses.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.expenses.Summary(r.Context(), GetUserFromContext(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
