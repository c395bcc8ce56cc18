package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront-engine/internal/storefront"
)

// HeaderIdempotencyKey makes POST /checkout safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

type Handler struct {
	svc *storefront.Service
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, r, http.StatusBadRequest, "invalid_input", "id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Product(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Cart(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) addCartLine(w http.ResponseWriter, r *http.Request) {
	var req storefront.AddToCartRequest
	if !decode(w, r, &req) {
		return
	}
	req.UserID = userID(r.Context())

	line, err := h.svc.AddToCart(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

func (h *Handler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req storefront.UpdateCartLineRequest
	if !decode(w, r, &req) {
		return
	}
	req.UserID, req.LineID = userID(r.Context()), id

	if err := h.svc.UpdateCartLine(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := h.svc.UpdateCartLine(r.Context(), storefront.UpdateCartLineRequest{
		UserID: userID(r.Context()),
		LineID: id,
		Action: storefront.ActionRemove,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req storefront.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	req.UserID = userID(r.Context())
	req.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)

	order, err := h.svc.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	var req storefront.BookRequest
	if !decode(w, r, &req) {
		return
	}
	req.UserID = userID(r.Context())

	booking, err := h.svc.Book(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Orders(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Bookings(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.AllOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) listAllBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.AllBookings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req storefront.SetOrderStatusRequest
	if !decode(w, r, &req) {
		return
	}
	req.OrderID = id

	order, err := h.svc.SetOrderStatus(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
