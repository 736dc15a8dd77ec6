package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xeipuuv/gojsonschema"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout"
	"github.com/nazeru/quickmart-checkout-go/pkg/idempotency"
)

type cartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// decode validates the body against schema before unmarshalling it into v.
func decode(r *http.Request, schema gojsonschema.JSONLoader, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if err := validateJSON(schema, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.carts.Get(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err, "An error occurred while retrieving the cart")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decode(r, cartItemLoader, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProductID <= 0 {
		writeMessage(w, http.StatusBadRequest, "product_id is required")
		return
	}
	view, err := s.carts.AddItem(r.Context(), userID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err, "An error occurred while adding item to cart")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid cart item id")
		return
	}
	var req cartItemRequest
	if err := decode(r, cartItemLoader, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.carts.UpdateItem(r.Context(), userID(r.Context()), itemID, req.Quantity)
	if err != nil {
		writeError(w, r, err, "An error occurred while updating cart item")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid cart item id")
		return
	}
	view, err := s.carts.RemoveItem(r.Context(), userID(r.Context()), itemID)
	if err != nil {
		writeError(w, r, err, "An error occurred while removing cart item")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), userID(r.Context())); err != nil {
		writeError(w, r, err, "An error occurred while clearing cart")
		return
	}
	writeMessage(w, http.StatusOK, "Cart cleared successfully")
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req checkout.CreateOrderRequest
	if err := decode(r, createOrderLoader, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	key, err := idempotency.Key(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	req.IdempotencyKey = key

	order, err := s.checkout.CreateOrder(r.Context(), userID(r.Context()), req)
	if err != nil {
		writeError(w, r, err, "An error occurred while creating the order")
		return
	}
	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(order.ID, 10))
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.checkout.ListOrders(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err, "An error occurred while retrieving orders")
		return
	}
	if orders == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := s.checkout.GetOrder(r.Context(), userID(r.Context()), orderID)
	if err != nil {
		writeError(w, r, err, "An error occurred while retrieving the order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}
