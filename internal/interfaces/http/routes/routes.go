// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/quickcart-backend/internal/interfaces/http/handlers"
	"github.com/your-org/quickcart-backend/internal/interfaces/http/middleware"
	"github.com/your-org/quickcart-backend/internal/pkg/auth"
)

// Handlers groups the route handlers
type Handlers struct {
	Auth    *handlers.AuthHandler
	Product *handlers.ProductHandler
	Cart    *handlers.CartHandler
}

// SetupRoutes registers every API route on rg
func SetupRoutes(rg *gin.RouterGroup, h Handlers, jwtManager *auth.JWTManager) {
	requireAuth := middleware.AuthMiddleware(jwtManager)

	SetupAuthRoutes(rg, h.Auth, requireAuth)
	SetupProductRoutes(rg, h.Product)
	SetupCartRoutes(rg, h.Cart, requireAuth)
	SetupAdminRoutes(rg, h.Product, requireAuth)
}

// SetupAuthRoutes sets up authentication related routes
func SetupAuthRoutes(rg *gin.RouterGroup, h *handlers.AuthHandler, requireAuth gin.HandlerFunc) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.RefreshToken)
		authGroup.GET("/profile", requireAuth, h.GetProfile)
	}
}

// SetupProductRoutes sets up public catalog routes
func SetupProductRoutes(rg *gin.RouterGroup, h *handlers.ProductHandler) {
	products := rg.Group("/products")
	{
		products.GET("", h.GetProducts)
		products.GET("/:id", h.GetProduct)
	}
}

// SetupCartRoutes sets up cart routes; all of them require authentication
func SetupCartRoutes(rg *gin.RouterGroup, h *handlers.CartHandler, requireAuth gin.HandlerFunc) {
	cartGroup := rg.Group("/cart")
	cartGroup.Use(requireAuth)
	{
		cartGroup.GET("", h.GetCart)
		cartGroup.GET("/count", h.GetCount)
		cartGroup.DELETE("", h.ClearCart)
		cartGroup.POST("/items", h.AddToCart)
		cartGroup.POST("/items/:id/increment", h.Increment)
		cartGroup.POST("/items/:id/decrement", h.Decrement)
		cartGroup.DELETE("/items/:id", h.RemoveItem)
		cartGroup.POST("/update", h.UpdateCart)
	}
}

// SetupAdminRoutes sets up admin-only catalog management
func SetupAdminRoutes(rg *gin.RouterGroup, h *handlers.ProductHandler, requireAuth gin.HandlerFunc) {
	admin := rg.Group("/admin")
	admin.Use(requireAuth, middleware.AdminMiddleware())
	{
		admin.POST("/products", h.CreateProduct)
		admin.PUT("/products/:id", h.UpdateProduct)
	}
}
