package order

import (
	"net/http"

	"go.uber.org/zap"

	"orderdesk/httpx"
)

func GetOrderHandler(wr *Writer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		o, err := wr.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, o)
	}
}

// ListOrdersHandler lists the orders of ?date=YYYY-MM-DD, today when omitted.
func ListOrdersHandler(wr *Writer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = wr.clock().Format(dateLayout)
		}
		orders, err := wr.ListByDate(r.Context(), date)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, orders)
	}
}

func ListCustomerOrdersHandler(wr *Writer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		orders, err := wr.ListByCustomer(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, orders)
	}
}

// AssignCourierHandler takes {"courierId": n}; null clears the courier.
func AssignCourierHandler(wr *Writer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		var body struct {
			CourierID *int64 `json:"courierId"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		if err := wr.AssignCourier(r.Context(), id, body.CourierID); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SetStatusHandler(wr *Writer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		if err := wr.SetStatus(r.Context(), id, body.Status); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListCouriersHandler(wr *Writer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		couriers, err := wr.ListCouriers(r.Context())
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, couriers)
	}
}

func CreateCourierHandler(wr *Writer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		id, err := wr.CreateCourier(r.Context(), body.Name)
		if err != nil {
			httpx.WriteError(w, r, logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}
