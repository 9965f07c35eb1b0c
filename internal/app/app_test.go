package app_test

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/go-grocery/internal/app"
	"github.com/sakashimaa/go-grocery/internal/metrics"
	"github.com/sakashimaa/go-grocery/internal/realtime"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type liveConn struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (c *liveConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, v.(realtime.Message))
	return nil
}

func (c *liveConn) Close() error { return nil }

func (c *liveConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		names = append(names, m.Event)
	}
	return names
}

type StorefrontSuite struct {
	suite.Suite
	storefront *app.App
	server     *fiber.App
	customer   string
	admin      string
	courier    string
}

func (s *StorefrontSuite) SetupTest() {
	reg := prometheus.NewRegistry()
	s.storefront = app.New(app.MemoryStores(100), app.Options{
		DeliveryWindow: 30 * time.Minute,
		PaymentTimeout: time.Second,
	}, metrics.New(reg), zap.NewNop())

	tokens, err := auth.NewTokenManager("e2e-secret", time.Hour)
	s.Require().NoError(err)

	s.server = fiber.New()
	s.storefront.Mount(s.server, tokens, reg)

	s.customer, err = tokens.Issue("c-1", auth.RoleCustomer)
	s.Require().NoError(err)
	s.admin, err = tokens.Issue("a-1", auth.RoleAdmin)
	s.Require().NoError(err)
	s.courier, err = tokens.Issue("d-1", auth.RoleDelivery)
	s.Require().NoError(err)
}

func (s *StorefrontSuite) call(method, path, token string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	out := map[string]any{}
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *StorefrontSuite) stock(productID string, stock int, price string) {
	status, _ := s.call(http.MethodPost, "/api/inventory", s.admin, map[string]any{
		"product_id": productID,
		"name":       "Product " + productID,
		"price":      price,
		"stock":      stock,
	})
	s.Require().Equal(http.StatusCreated, status)
}

func (s *StorefrontSuite) fillCart() {
	status, _ := s.call(http.MethodPut, "/api/cart", s.customer, map[string]any{
		"items": []map[string]any{
			{"product_id": "A", "quantity": 2},
			{"product_id": "B", "quantity": 1},
		},
	})
	s.Require().Equal(http.StatusOK, status)
}

func (s *StorefrontSuite) checkout() (int, map[string]any) {
	return s.call(http.MethodPost, "/api/orders", s.customer, map[string]any{
		"shipping_address": map[string]string{
			"street": "1 Main St", "city": "Springfield", "state": "IL", "zip": "62701", "country": "US",
		},
		"payment_method": "credit_card",
	})
}

func (s *StorefrontSuite) stockOf(productID string) float64 {
	status, body := s.call(http.MethodGet, "/api/inventory/"+productID, s.customer, nil)
	s.Require().Equal(http.StatusOK, status)
	return body["stock"].(float64)
}

func (s *StorefrontSuite) TestCheckoutFailsWhenAnyItemIsShort() {
	s.stock("A", 5, "3.00")
	s.stock("B", 1, "5.00")
	s.fillCart()

	_, err := s.storefront.Inventory.Restock(s.T().Context(), "B", -1)
	s.Require().NoError(err)

	status, body := s.checkout()
	s.Equal(http.StatusUnprocessableEntity, status)
	s.Equal("INSUFFICIENT_STOCK", body["code"])
	s.Equal("B", body["product_id"])
	s.Equal(float64(5), s.stockOf("A"))

	_, list := s.call(http.MethodGet, "/api/orders/my-orders", s.customer, nil)
	s.Empty(list["orders"])
}

func (s *StorefrontSuite) TestFulfillmentPipeline() {
	s.stock("A", 5, "3.00")
	s.stock("B", 3, "5.00")
	s.fillCart()

	customerConn := &liveConn{}
	s.storefront.Hub.Register(auth.Identity{UserID: "c-1", Role: auth.RoleCustomer}, customerConn)
	adminConn := &liveConn{}
	s.storefront.Hub.Register(auth.Identity{UserID: "a-1", Role: auth.RoleAdmin}, adminConn)

	status, order := s.checkout()
	s.Require().Equal(http.StatusCreated, status, order)
	s.Equal("placed", order["status"])
	s.True(decimal.RequireFromString("11.00").Equal(decimal.RequireFromString(order["total"].(string))))
	s.Equal(float64(3), s.stockOf("A"))
	s.Equal(float64(2), s.stockOf("B"))

	s.Eventually(func() bool {
		return contains(customerConn.events(), "newNotification") && contains(adminConn.events(), "orderStatusUpdate")
	}, time.Second, 5*time.Millisecond)

	_, cart := s.call(http.MethodGet, "/api/cart", s.customer, nil)
	s.Empty(cart["items"])

	orderID := order["id"].(string)
	status, payment := s.call(http.MethodPost, "/api/payments", s.customer, map[string]any{
		"order_id":       orderID,
		"payment_method": "credit_card",
	})
	s.Require().Equal(http.StatusCreated, status, payment)
	s.Equal("completed", payment["status"])
	s.NotEmpty(payment["transaction_id"])

	_, order = s.call(http.MethodGet, "/api/orders/"+orderID, s.customer, nil)
	s.Equal("processing", order["status"])

	status, dup := s.call(http.MethodPost, "/api/payments", s.customer, map[string]any{
		"order_id":       orderID,
		"payment_method": "credit_card",
	})
	s.Equal(http.StatusConflict, status)
	s.Equal("DUPLICATE_PAYMENT", dup["code"])

	paymentID := payment["id"].(string)
	status, refunded := s.call(http.MethodPost, "/api/payments/"+paymentID+"/refund", s.admin, map[string]any{"reason": "damaged goods"})
	s.Require().Equal(http.StatusOK, status, refunded)
	s.Equal("refunded", refunded["status"])

	_, order = s.call(http.MethodGet, "/api/orders/"+orderID, s.customer, nil)
	s.Equal("cancelled", order["status"])
	s.Equal(float64(5), s.stockOf("A"))

	status, again := s.call(http.MethodPost, "/api/payments/"+paymentID+"/refund", s.admin, map[string]any{"reason": "twice"})
	s.Equal(http.StatusConflict, status)
	s.Equal("INVALID_STATE", again["code"])

	_, feed := s.call(http.MethodGet, "/api/notifications", s.customer, nil)
	messages := messagesOf(feed)
	s.Contains(messages, "Payment has been refunded")
	s.Contains(messages, "Payment successful")
	s.Contains(messages, "Your order has been successfully placed")
	s.Equal("Payment has been refunded", messages[0])

	_, adminFeed := s.call(http.MethodGet, "/api/notifications?scope=role", s.admin, nil)
	s.NotEmpty(adminFeed["notifications"])
}

func (s *StorefrontSuite) TestDeliveryFlow() {
	s.stock("A", 5, "3.00")
	s.stock("B", 3, "5.00")
	s.fillCart()

	_, order := s.checkout()
	orderID := order["id"].(string)

	courierConn := &liveConn{}
	s.storefront.Hub.Register(auth.Identity{UserID: "d-1", Role: auth.RoleDelivery}, courierConn)

	status, body := s.call(http.MethodPatch, "/api/orders/"+orderID+"/status", s.customer, map[string]string{"status": "processing"})
	s.Equal(http.StatusForbidden, status, body)

	status, body = s.call(http.MethodPatch, "/api/orders/"+orderID+"/status", s.courier, map[string]string{"status": "delivered"})
	s.Equal(http.StatusConflict, status)
	s.Equal("INVALID_TRANSITION", body["code"])

	for _, next := range []string{"processing", "out_for_delivery"} {
		status, body = s.call(http.MethodPatch, "/api/orders/"+orderID+"/status", s.courier, map[string]string{"status": next})
		s.Require().Equal(http.StatusOK, status, body)
	}
	s.Equal("d-1", body["delivery_agent_id"])
	s.NotEmpty(body["estimated_delivery"])

	s.Eventually(func() bool { return contains(courierConn.events(), "assignedOrderUpdate") }, time.Second, 5*time.Millisecond)

	status, body = s.call(http.MethodPatch, "/api/orders/"+orderID+"/location", s.courier, map[string]string{"location": "Elm St"})
	s.Require().Equal(http.StatusOK, status, body)
	s.Equal("Elm St", body["current_location"])

	_, feed := s.call(http.MethodGet, "/api/notifications", s.customer, nil)
	s.Contains(messagesOf(feed), "Your delivery person is on the way")

	status, _ = s.call(http.MethodDelete, "/api/notifications", s.customer, nil)
	s.Equal(http.StatusNoContent, status)
	_, feed = s.call(http.MethodGet, "/api/notifications", s.customer, nil)
	s.Empty(feed["notifications"])
}

func (s *StorefrontSuite) TestAuthAndValidation() {
	status, body := s.call(http.MethodGet, "/api/orders/my-orders", "", nil)
	s.Equal(http.StatusUnauthorized, status)
	s.Equal("AUTHENTICATION_ERROR", body["code"])

	status, _ = s.call(http.MethodPost, "/api/inventory", s.customer, map[string]any{"product_id": "A", "name": "Apples", "stock": 1})
	s.Equal(http.StatusForbidden, status)

	status, body = s.call(http.MethodPost, "/api/orders", s.customer, map[string]any{"payment_method": "barter"})
	s.Equal(http.StatusBadRequest, status)
	s.Equal("INVALID_INPUT", body["code"])

	status, body = s.checkout()
	s.Equal(http.StatusBadRequest, status)
	s.Equal("EMPTY_CART", body["code"])

	status, body = s.call(http.MethodGet, "/api/orders/missing", s.customer, nil)
	s.Equal(http.StatusNotFound, status)
	s.Equal("NOT_FOUND", body["code"])

	s.stock("A", 5, "3.00")
	status, body = s.call(http.MethodPatch, "/api/inventory/A/stock", s.admin, map[string]any{"delta": int64(math.MaxInt64)})
	s.Equal(http.StatusBadRequest, status)
	s.Equal("INVALID_INPUT", body["code"])
	s.Equal(float64(5), s.stockOf("A"))
}

func (s *StorefrontSuite) TestHealthAndMetrics() {
	status, body := s.call(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, status)
	s.Equal("ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.server.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func contains(events []string, name string) bool {
	for _, e := range events {
		if e == name {
			return true
		}
	}
	return false
}

func messagesOf(feed map[string]any) []string {
	items, _ := feed["notifications"].([]any)
	messages := make([]string, 0, len(items))
	for _, item := range items {
		messages = append(messages, item.(map[string]any)["message"].(string))
	}
	return messages
}

func TestStorefrontSuite(t *testing.T) {
	suite.Run(t, new(StorefrontSuite))
}
