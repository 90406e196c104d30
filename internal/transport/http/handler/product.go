package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/transport/http/middleware"
	"github.com/bridgezone/market-api/internal/usecase"
	"github.com/gin-gonic/gin"
)

type productUsecaser interface {
	Create(ctx context.Context, input usecase.CreateProductInput) (*domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, input usecase.ListProductsInput) (*usecase.ProductPage, error)
}

type ProductHandler struct {
	products productUsecaser
	logger   *slog.Logger
}

func NewProductHandler(products productUsecaser, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		logger:   logger.With("component", "product_handler"),
	}
}

type productResponse struct {
	ID          string `json:"id"`
	SellerID    string `json:"seller_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func toProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		SellerID:    p.SellerID,
		Title:       p.Title,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

type createProductRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"max=5000"`
	PriceCents  int64  `json:"price_cents" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"omitempty,len=3"`
}

// POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.products.Create(c.Request.Context(), usecase.CreateProductInput{
		SellerID:    middleware.UserID(c),
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCeilingExceeded) {
			c.JSON(http.StatusForbidden, gin.H{"error": errCeilingExceeded})
			return
		}
		h.logger.Error("create product", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusCreated, toProductResponse(product))
}

// GET /products/:id
func (h *ProductHandler) GetByID(c *gin.Context) {
	product, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errProductNotFound})
			return
		}
		h.logger.Error("get product", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, toProductResponse(product))
}

// GET /products?seller_id=&cursor=&limit=
func (h *ProductHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := h.products.List(c.Request.Context(), usecase.ListProductsInput{
		SellerID: c.Query("seller_id"),
		Cursor:   c.Query("cursor"),
		Limit:    limit,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("list products", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]productResponse, 0, len(page.Products))
	for _, p := range page.Products {
		out = append(out, toProductResponse(p))
	}

	resp := gin.H{"products": out}
	if page.NextCursor != "" {
		resp["next_cursor"] = page.NextCursor
	}
	c.JSON(http.StatusOK, resp)
}
