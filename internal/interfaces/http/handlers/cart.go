// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
	"github.com/your-org/quickcart-backend/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	cartService *cart.Service
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *cart.Service) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.cartService.ViewCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    view,
	})
}

// GetCount handles GET /cart/count
func (h *CartHandler) GetCount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	count, err := h.cartService.CountItems(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart count retrieved successfully",
		"data":    gin.H{"count": count},
	})
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req cart.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	line, err := h.cartService.AddToCart(c.Request.Context(), userID, req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart successfully",
		"data":    line,
	})
}

// Increment handles POST /cart/items/:id/increment
func (h *CartHandler) Increment(c *gin.Context) {
	h.changeQuantity(c, c.Param("id"), true)
}

// Decrement handles POST /cart/items/:id/decrement
func (h *CartHandler) Decrement(c *gin.Context) {
	h.changeQuantity(c, c.Param("id"), false)
}

// UpdateCart handles POST /cart/update?action=inc|dec with the line id in the body
func (h *CartHandler) UpdateCart(c *gin.Context) {
	var req cart.UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	switch c.Query("action") {
	case "inc":
		h.changeQuantity(c, req.ID, true)
	case "dec":
		h.changeQuantity(c, req.ID, false)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be inc or dec"})
	}
}

// RemoveItem handles DELETE /cart/items/:id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.cartService.RemoveFromCart(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from cart successfully",
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.cartService.ClearCart(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
	})
}

func (h *CartHandler) changeQuantity(c *gin.Context, lineID string, increment bool) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var (
		line *cart.CartLine
		err  error
	)
	if increment {
		line, err = h.cartService.IncrementLine(c.Request.Context(), userID, lineID)
	} else {
		line, err = h.cartService.DecrementLine(c.Request.Context(), userID, lineID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart updated successfully",
		"data":    line,
	})
}

func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return 0, false
	}
	return userID, true
}
