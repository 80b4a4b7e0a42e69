package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderdesk/customer"
	"orderdesk/order"
	"orderdesk/ordering"
	"orderdesk/receipt"
	"orderdesk/stock"
	"orderdesk/testutil"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := testutil.OpenDB(t)
	clock := testutil.NewClock(time.Date(2025, 6, 20, 19, 30, 0, 0, time.UTC))

	receipts, err := receipt.NewAllocator(receipt.Deps{DB: db, Clock: clock.Now})
	require.NoError(t, err)
	customers, err := customer.NewLedger(customer.Deps{DB: db, Clock: clock.Now, CountryCode: "32", NameLocale: "nl"})
	require.NoError(t, err)
	orders, err := order.NewWriter(order.Deps{DB: db, Receipts: receipts, Clock: clock.Now})
	require.NoError(t, err)
	engine, err := stock.NewEngine(stock.Deps{DB: db, Clock: clock.Now})
	require.NoError(t, err)
	svc, err := ordering.NewService(ordering.Deps{
		DB:             db,
		Customers:      customers,
		Orders:         orders,
		Stock:          engine,
		Receipts:       receipts,
		Clock:          clock.Now,
		PickupDiscount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(SetupRoutes(&app{
		db:        db,
		customers: customers,
		orders:    orders,
		stock:     engine,
		ordering:  svc,
		clock:     clock.Now,
		logger:    zap.NewNop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestPlaceAndReadOrderOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/receipt-numbers/next", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "20250001", body["receiptNumber"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/orders", `{
		"phone": "0477 12 34 56",
		"name": "an de smet",
		"isPickup": true,
		"lines": [{"category": "Pizza", "product": "Margherita", "quantity": 2, "unitPrice": "12.50"}]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "20250001", body["receiptNumber"])
	totals := body["totals"].(map[string]any)
	assert.Equal(t, "22.5", totals["total"])

	id := int64(body["orderId"].(float64))
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/orders/"+strconv.FormatInt(id, 10), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "20250001", body["receiptNumber"])
	assert.Len(t, body["lines"], 1)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/customers/by-phone/+32477123456", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "An De Smet", body["name"])
	assert.Equal(t, float64(1), body["orderCount"])
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orders", `{"phone": "12", "isPickup": true, "lines": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body["error"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/orders", `{"phone": `)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/orders/999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/orders", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStockCountUpload(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/stock/", `{"name": "Mozzarella", "unit": "kg", "minStock": "2", "openingStock": "5"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "count.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("ingredient,counted\nMozzarella,1.5\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/stock/count", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/stock/low", nil)
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var low []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&low))
	require.Len(t, low, 1)
	assert.Equal(t, "Mozzarella", low[0]["name"])
	assert.Equal(t, "1.5", low[0]["currentStock"])
}
