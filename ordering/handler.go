package ordering

import (
	"net/http"

	"go.uber.org/zap"

	"orderdesk/httpx"
)

// PlaceOrderHandler accepts an Intake as JSON and answers 201 with the Result.
func PlaceOrderHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Intake
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		res, err := svc.PlaceOrder(r.Context(), in)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, res)
	}
}

func DeleteOrderHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		if err := svc.DeleteOrder(r.Context(), id); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteAllOrdersHandler requires ?confirm=yes.
func DeleteAllOrdersHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "yes" {
			httpx.WriteMessage(w, http.StatusBadRequest, "deleting all orders requires confirm=yes")
			return
		}
		n, err := svc.DeleteAllOrders(r.Context())
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}

func PeekReceiptNumberHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next, err := svc.PeekReceiptNumber(r.Context())
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"receiptNumber": next})
	}
}

func RenumberReceiptsHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.RenumberReceipts(r.Context())
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]int{"renumbered": n})
	}
}

func PurgeCustomerHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		n, err := svc.PurgeCustomer(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]int{"ordersDeleted": n})
	}
}
