package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medstock/m/domain"
	"medstock/m/internal/inventory"
)

const dbErrorMessage = "a database error occurred"

type medicineRequest struct {
	Name      string `json:"name"`
	Quantity  *int64 `json:"quantity"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Notes     string `json:"notes"`
}

type addStockRequest struct {
	Quantity *int64 `json:"quantity"`
	Notes    string `json:"notes"`
}

type updateRequest struct {
	Action string `json:"action"`
}

// medicineID parses the {id} path segment. Anything unparseable is reported as not found,
// the same as an id owned by someone else.
func medicineID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) listMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.ledger.List(r.Context(), ownerID(r))
	if err != nil {
		h.fail(w, r, err, dbErrorMessage)
		return
	}
	respondData(w, http.StatusOK, medicines)
}

func (h *Handler) addMedicine(w http.ResponseWriter, r *http.Request) {
	var req medicineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	med, err := h.ledger.Add(r.Context(), ownerID(r), inventory.NewMedicine{
		Name:      req.Name,
		Quantity:  req.Quantity,
		Dosage:    req.Dosage,
		Frequency: req.Frequency,
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, r, err, dbErrorMessage)
		return
	}
	respondData(w, http.StatusCreated, med)
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	id, ok := medicineID(r)
	if !ok {
		h.fail(w, r, domain.ErrNotFound, dbErrorMessage)
		return
	}
	var req addStockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "quantity to add is required")
		return
	}
	med, err := h.ledger.Restock(r.Context(), ownerID(r), id, *req.Quantity, req.Notes)
	if err != nil {
		h.fail(w, r, err, dbErrorMessage)
		return
	}
	respondData(w, http.StatusOK, med)
}

func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action != "take" {
		respondError(w, http.StatusBadRequest, "invalid action")
		return
	}
	id, ok := medicineID(r)
	if !ok {
		h.fail(w, r, domain.ErrNotFound, dbErrorMessage)
		return
	}
	med, err := h.ledger.Consume(r.Context(), ownerID(r), id)
	if err != nil {
		h.fail(w, r, err, dbErrorMessage)
		return
	}
	respondData(w, http.StatusOK, med)
}

func (h *Handler) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	id, ok := medicineID(r)
	if !ok {
		h.fail(w, r, domain.ErrNotFound, dbErrorMessage)
		return
	}
	name, err := h.ledger.Remove(r.Context(), ownerID(r), id)
	if err != nil {
		h.fail(w, r, err, dbErrorMessage)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: fmt.Sprintf("Deleted %s", name)})
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.history.List(r.Context(), ownerID(r))
	if err != nil {
		h.fail(w, r, err, dbErrorMessage)
		return
	}
	respondData(w, http.StatusOK, entries)
}
