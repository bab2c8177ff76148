package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"catalog/internal/products/models"
	dErrors "catalog/pkg/domain-errors"
	"catalog/pkg/platform/httputil"
	authmw "catalog/pkg/platform/middleware/auth"
	request "catalog/pkg/platform/middleware/request"
)

// Service defines the product operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req *models.CreateProductRequest, actorID string) (*models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	ListAll(ctx context.Context) ([]*models.Product, error)
	Update(ctx context.Context, id string, req *models.UpdateProductRequest) (*models.Product, error)
	Delete(ctx context.Context, id string) (*models.DeleteResult, error)
}

// Handler handles product endpoints.
type Handler struct {
	logger       *slog.Logger
	products     Service
	jwtValidator authmw.JWTValidator
}

// New creates a new products Handler.
func New(products Service, logger *slog.Logger, jwtValidator authmw.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		products:     products,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the product routes under /products.
func (h *Handler) Register(r chi.Router) {
	productsRouter := chi.NewRouter()
	productsRouter.Use(request.ContentTypeJSON)
	productsRouter.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
	productsRouter.Post("/", h.handleCreate)
	productsRouter.Get("/", h.handleList)
	productsRouter.Get("/{id}", h.handleGet)
	productsRouter.Patch("/{id}", h.handleUpdate)
	productsRouter.Delete("/{id}", h.handleDelete)

	r.Mount("/products", productsRouter)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	actorID := authmw.GetUserID(ctx)
	if actorID == "" {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req models.CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.products.Create(ctx, &req, actorID)
	if err != nil {
		h.logFailure(ctx, "failed to create product", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "product created",
		"request_id", requestID,
		"product_id", product.ID,
		"user_id", actorID,
	)
	httputil.WriteJSON(w, http.StatusCreated, product)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.products.ListAll(ctx)
	if err != nil {
		h.logFailure(ctx, "failed to list products", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.products.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(ctx, "failed to get product", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.UpdateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.products.Update(ctx, chi.URLParam(r, "id"), &req)
	if err != nil {
		h.logFailure(ctx, "failed to update product", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.products.Delete(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(ctx, "failed to delete product", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid product request",
			"request_id", request.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	requestID := request.GetRequestID(ctx)
	switch {
	case dErrors.HasCode(err, dErrors.CodeValidation),
		dErrors.HasCode(err, dErrors.CodeBadRequest),
		dErrors.HasCode(err, dErrors.CodeNotFound),
		dErrors.HasCode(err, dErrors.CodeConflict):
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
	default:
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	}
}
