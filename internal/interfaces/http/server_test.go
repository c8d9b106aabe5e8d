package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/quickcart-backend/internal/config"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
	"github.com/your-org/quickcart-backend/internal/domain/catalog"
	"github.com/your-org/quickcart-backend/internal/domain/user"
	"github.com/your-org/quickcart-backend/internal/interfaces/http/handlers"
	"github.com/your-org/quickcart-backend/internal/interfaces/http/routes"
	"github.com/your-org/quickcart-backend/internal/pkg/auth"
	"github.com/your-org/quickcart-backend/internal/pkg/logger"
	"github.com/your-org/quickcart-backend/internal/testutil"
)

type apiFixture struct {
	handler http.Handler
	catalog *catalog.Service
	jwt     *auth.JWTManager
}

type staticCheck struct{ err error }

func (s staticCheck) Health() error { return s.err }

func newFixture(t *testing.T, checks map[string]HealthChecker) *apiFixture {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		App:    config.AppConfig{Name: "quickcart-test", Environment: "test", Version: "test"},
		Server: config.ServerConfig{Port: "0", RequestTimeout: 5 * time.Second},
		JWT: config.JWTConfig{
			Secret:             "0123456789abcdef0123456789abcdef",
			AccessTokenExpiry:  time.Minute,
			RefreshTokenExpiry: time.Hour,
		},
		Security: config.SecurityConfig{BcryptCost: 4},
		Catalog:  config.CatalogConfig{BreakerFailures: 5, BreakerTimeout: time.Minute},
	}
	log := logger.Discard()

	db := testutil.NewSQLiteDB(t, &user.User{}, &catalog.Product{})
	jwt := auth.NewJWTManager(cfg)
	catalogService := catalog.NewService(db)
	stock := catalog.NewResilientStockReader(catalogService, cfg, log)
	cartService := cart.NewService(cart.NewMemoryStore(time.Second), stock, log)
	userService := user.NewService(db, auth.NewPasswordManager(cfg), jwt, log)

	server := NewServer(cfg, log, Dependencies{
		Handlers: routes.Handlers{
			Auth:    handlers.NewAuthHandler(userService),
			Product: handlers.NewProductHandler(catalogService),
			Cart:    handlers.NewCartHandler(cartService),
		},
		JWTManager: jwt,
		Checks:     checks,
		Catalog:    stock,
	})

	return &apiFixture{handler: server.Handler(), catalog: catalogService, jwt: jwt}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w.Code, decoded
}

func (f *apiFixture) register(t *testing.T, email string) string {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": email, "password": "Engine42x", "name": "Shopper",
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["data"].(map[string]interface{})["access_token"].(string)
}

func (f *apiFixture) product(t *testing.T, stock int, price string) uint {
	t.Helper()
	p, err := f.catalog.CreateProduct(context.Background(), &catalog.CreateProductRequest{
		Title: "Thing", Category: "misc", Price: decimal.RequireFromString(price), Stock: stock,
	})
	require.NoError(t, err)
	return p.ID
}

func lineID(body map[string]interface{}) string {
	return body["data"].(map[string]interface{})["id"].(string)
}

func TestCartRoutes_RequireAuthentication(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := f.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/items", "bogus", gin.H{"product_id": 1})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCartFlow_SingleUnitProduct(t *testing.T) {
	f := newFixture(t, nil)
	token := f.register(t, "shopper@example.com")
	productID := f.product(t, 1, "5.00")

	code, body := f.do(t, http.MethodPost, "/api/v1/cart/items", token, gin.H{"product_id": productID})
	require.Equal(t, http.StatusOK, code, body)
	id := lineID(body)

	code, body = f.do(t, http.MethodPost, "/api/v1/cart/items", token, gin.H{"product_id": productID})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, cart.ErrOutOfStock.Error(), body["error"])

	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/items/"+id+"/increment", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/api/v1/cart/update?action=dec", token, gin.H{"id": id})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, cart.ErrMinimumQuantity.Error(), body["error"])

	code, _ = f.do(t, http.MethodDelete, "/api/v1/cart/items/"+id, token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodDelete, "/api/v1/cart/items/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodGet, "/api/v1/cart/count", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["count"])
}

func TestCartFlow_ViewTotals(t *testing.T) {
	f := newFixture(t, nil)
	token := f.register(t, "viewer@example.com")
	a := f.product(t, 10, "2.50")
	b := f.product(t, 10, "4.00")

	code, body := f.do(t, http.MethodPost, "/api/v1/cart/items", token, gin.H{"product_id": a})
	require.Equal(t, http.StatusOK, code)
	id := lineID(body)

	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/update?action=inc", token, gin.H{"id": id})
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/items", token, gin.H{"product_id": b})
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, code)
	view := body["data"].(map[string]interface{})
	assert.Equal(t, float64(3), view["total_quantity"])
	assert.Equal(t, float64(2), view["item_count"])
	assert.Equal(t, "9", view["sub_total"])

	code, _ = f.do(t, http.MethodDelete, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["total_quantity"])
}

func TestCartFlow_OtherUsersLineIsForbidden(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.register(t, "owner@example.com")
	other := f.register(t, "other@example.com")
	productID := f.product(t, 3, "1.00")

	code, body := f.do(t, http.MethodPost, "/api/v1/cart/items", owner, gin.H{"product_id": productID})
	require.Equal(t, http.StatusOK, code)
	id := lineID(body)

	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/items/"+id+"/increment", other, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = f.do(t, http.MethodDelete, "/api/v1/cart/items/"+id, other, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/items/missing/decrement", owner, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCartFlow_UnknownProductAndBadInput(t *testing.T) {
	f := newFixture(t, nil)
	token := f.register(t, "input@example.com")

	code, _ := f.do(t, http.MethodPost, "/api/v1/cart/items", token, gin.H{"product_id": 4242})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/items", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/cart/update?action=zap", token, gin.H{"id": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, nil)
	token := f.register(t, "plain@example.com")

	payload := gin.H{"title": "Lamp", "category": "home", "price": "19.99", "stock": 2}
	code, _ := f.do(t, http.MethodPost, "/api/v1/admin/products", token, payload)
	assert.Equal(t, http.StatusForbidden, code)

	admin, err := f.jwt.IssuePair(999, "admin@example.com", true)
	require.NoError(t, err)
	code, body := f.do(t, http.MethodPost, "/api/v1/admin/products", admin.AccessToken, payload)
	require.Equal(t, http.StatusCreated, code, body)

	id := body["data"].(map[string]interface{})["id"]
	code, body = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%v", id), "", nil)
	require.Equal(t, http.StatusOK, code)
	product := body["data"].(map[string]interface{})["product"].(map[string]interface{})
	assert.Equal(t, "Lamp", product["title"])

	code, _ = f.do(t, http.MethodGet, "/api/v1/products?sortByPrice=sideways", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, map[string]HealthChecker{"database": staticCheck{}})

	code, body := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "closed", checks["catalog_breaker"])

	code, body = f.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	down := newFixture(t, map[string]HealthChecker{"redis": staticCheck{err: errors.New("connection refused")}})
	code, body = down.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
}
