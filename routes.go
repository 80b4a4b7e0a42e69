package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"orderdesk/customer"
	"orderdesk/inventoryadjustment"
	"orderdesk/loader"
	"orderdesk/order"
	"orderdesk/ordering"
	"orderdesk/stock"
)

const requestTimeout = 60 * time.Second

// app holds the wired components the routes call into.
type app struct {
	db        *sqlx.DB
	customers *customer.Ledger
	orders    *order.Writer
	stock     *stock.Engine
	ordering  *ordering.Service
	clock     func() time.Time
	logger    *zap.Logger
}

func SetupRoutes(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	log := a.logger.Named("http")
	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordering.PlaceOrderHandler(a.ordering, log))
			r.Get("/", order.ListOrdersHandler(a.orders, log))
			r.Delete("/", ordering.DeleteAllOrdersHandler(a.ordering, log))
			r.Get("/{id}", order.GetOrderHandler(a.orders, log))
			r.Delete("/{id}", ordering.DeleteOrderHandler(a.ordering, log))
			r.Put("/{id}/courier", order.AssignCourierHandler(a.orders, log))
			r.Put("/{id}/status", order.SetStatusHandler(a.orders, log))
		})
		r.Get("/receipt-numbers/next", ordering.PeekReceiptNumberHandler(a.ordering, log))
		r.Post("/admin/renumber", ordering.RenumberReceiptsHandler(a.ordering, log))

		r.Get("/couriers", order.ListCouriersHandler(a.orders, log))
		r.Post("/couriers", order.CreateCourierHandler(a.orders, log))

		r.Route("/customers", func(r chi.Router) {
			r.Get("/", customer.SearchHandler(a.customers, log))
			r.Get("/by-phone/{phone}", customer.GetByPhoneHandler(a.customers, log))
			r.Get("/{id}", customer.GetHandler(a.customers, log))
			r.Put("/{id}/notes", customer.UpdateNotesHandler(a.customers, log))
			r.Get("/{id}/orders", order.ListCustomerOrdersHandler(a.orders, log))
			r.Delete("/{id}", ordering.PurgeCustomerHandler(a.ordering, log))
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", stock.ListIngredientsHandler(a.stock, log))
			r.Post("/", stock.CreateIngredientHandler(a.stock, log))
			r.Get("/low", stock.LowStockHandler(a.stock, log))
			r.Post("/count", inventoryadjustment.ImportStockCountHandler(a.db, a.clock, log))
			r.Post("/{id}/adjust", stock.AdjustHandler(a.stock, log))
			r.Get("/{id}/mutations", stock.MutationsHandler(a.stock, log))
			r.Get("/{id}/verify", stock.VerifyHandler(a.stock, log))
		})

		r.Route("/recipes", func(r chi.Router) {
			r.Post("/import", loader.ImportRecipesHandler(a.db, a.stock, log))
			r.Get("/{category}/{product}", stock.GetRecipeHandler(a.stock, log))
			r.Put("/{category}/{product}", stock.PutRecipeHandler(a.stock, log))
		})

		r.Get("/config", GetConfigHandler())
		r.Put("/config", SaveConfigHandler(log))
	})
	return r
}

// accessLog writes one line per request.
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("access")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
