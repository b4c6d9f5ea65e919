package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"product-catalog/internal/forecast"
	"product-catalog/internal/products"
	"product-catalog/internal/products/importer"

	"github.com/gin-gonic/gin"
)

const (
	defaultPage           = 1
	defaultMaxUploadBytes = 10 << 20
	csvExtension          = ".csv"
	uploadField           = "file"
)

type ProductService interface {
	CreateProduct(ctx context.Context, draft products.Draft) (products.Product, error)
	GetProduct(ctx context.Context, id int64) (products.Product, error)
	UpdateProduct(ctx context.Context, id int64, draft products.Draft) (products.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	SearchProducts(ctx context.Context, term string, page int) (products.Page, error)
	Categories(ctx context.Context) ([]string, error)
	Names(ctx context.Context) ([]string, error)
	History(ctx context.Context, key products.Key) ([]products.MonthlyQuantity, error)
	DashboardSummary(ctx context.Context) (products.Summary, error)
}

type Importer interface {
	Import(ctx context.Context, r io.Reader) (importer.Report, error)
}

type ForecastService interface {
	View(ctx context.Context, key products.Key) (forecast.View, error)
	Refresh(ctx context.Context, key products.Key) error
}

type Options struct {
	// Location is used to render registration dates.
	Location       *time.Location
	MaxUploadBytes int64
}

type Handler struct {
	service   ProductService
	importer  Importer
	forecasts ForecastService
	logger    *slog.Logger
	loc       *time.Location
	maxUpload int64
}

// NewHandler builds the HTTP handlers. forecasts may be nil, in which case
// the forecast routes answer 503.
func NewHandler(svc ProductService, imp Importer, forecasts ForecastService, logger *slog.Logger, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		service:   svc,
		importer:  imp,
		forecasts: forecasts,
		logger:    logger,
		loc:       opts.Location,
		maxUpload: opts.MaxUploadBytes,
	}
}

// GetProducts godoc
// @Summary      Get one product by id, or search products by name
// @Tags         products
// @Produce      json
// @Param        id      query     int     false  "Product ID"
// @Param        page    query     int     false  "Page number"  default(1)
// @Param        search  query     string  false  "Case-insensitive name filter"
// @Success      200     {object}  listProductsResponse
// @Failure      400     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Failure      500     {object}  errorResponse
// @Router       /products [get]
func (h *Handler) GetProducts(c *gin.Context) {
	if _, ok := c.GetQuery("id"); ok {
		h.getProduct(c)
		return
	}

	page := parseQueryInt(c.Query("page"), defaultPage)
	result, err := h.service.SearchProducts(c.Request.Context(), c.Query("search"), page)
	if err != nil {
		h.writeError(c, err, "failed to get products")
		return
	}

	items := make([]productResponse, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, newProductResponse(p, h.loc))
	}

	c.JSON(http.StatusOK, listProductsResponse{
		Products:   items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	product, err := h.service.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "failed to get product")
		return
	}

	c.JSON(http.StatusOK, newProductResponse(product, h.loc))
}

// CreateProduct godoc
// @Summary      Create a new product
// @Description  Prices are locale text for their currency ("5,00" for BRL) or JSON numbers.
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        body  body      products.Draft  true  "Product data"
// @Success      201   {object}  savedProductResponse
// @Failure      400   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /products [post]
func (h *Handler) CreateProduct(c *gin.Context) {
	var draft products.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.service.CreateProduct(c.Request.Context(), draft)
	if err != nil {
		h.writeError(c, err, "failed to create product")
		return
	}

	c.JSON(http.StatusCreated, savedProductResponse{ID: product.ID, CreatedAt: product.CreatedAt})
}

// UpdateProduct godoc
// @Summary      Replace every field of a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id    query     int             true  "Product ID"
// @Param        body  body      products.Draft  true  "Product data"
// @Success      200   {object}  savedProductResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /products [put]
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var draft products.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.service.UpdateProduct(c.Request.Context(), id, draft)
	if err != nil {
		h.writeError(c, err, "failed to update product")
		return
	}

	c.JSON(http.StatusOK, savedProductResponse{ID: product.ID, CreatedAt: product.CreatedAt})
}

// DeleteProduct godoc
// @Summary      Delete a product by ID
// @Tags         products
// @Produce      json
// @Param        id   query     int  true  "Product ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products [delete]
func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(c.Request.Context(), id); err != nil {
		h.writeError(c, err, "failed to delete product")
		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "product deleted"})
}

// ImportProducts godoc
// @Summary      Bulk-create products from a CSV file
// @Description  Rows that fail are reported and skipped. Columns: name, category, quantity, purchase_price, purchase_currency, sale_price, sale_currency, expiration_date.
// @Tags         products
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "CSV file"
// @Success      200   {object}  importer.Report
// @Failure      400   {object}  errorResponse
// @Failure      413   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /products/import [post]
func (h *Handler) ImportProducts(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	header, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "a csv file is required in the \"file\" field"})
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), csvExtension) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "file must have a .csv extension"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("open uploaded file", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to read file"})
		return
	}
	defer file.Close()

	report, err := h.importer.Import(c.Request.Context(), file)
	if err != nil {
		if errors.Is(err, importer.ErrEmptyFile) || errors.Is(err, importer.ErrMissingColumns) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.writeError(c, err, "failed to import products")
		return
	}

	c.JSON(http.StatusOK, report)
}

// ListCategories godoc
// @Summary      Distinct product categories
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  categoriesResponse
// @Failure      500  {object}  errorResponse
// @Router       /catalog/categories [get]
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.service.Categories(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to get categories")
		return
	}
	c.JSON(http.StatusOK, categoriesResponse{Categories: categories})
}

// ListNames godoc
// @Summary      Distinct product names
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  namesResponse
// @Failure      500  {object}  errorResponse
// @Router       /catalog/names [get]
func (h *Handler) ListNames(c *gin.Context) {
	names, err := h.service.Names(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to get names")
		return
	}
	c.JSON(http.StatusOK, namesResponse{Names: names})
}

// GetHistory godoc
// @Summary      Monthly registered quantity for a category or a product name
// @Tags         catalog
// @Produce      json
// @Param        category  query     string  false  "Category"
// @Param        name      query     string  false  "Product name"
// @Success      200       {object}  historyResponse
// @Failure      400       {object}  errorResponse
// @Failure      500       {object}  errorResponse
// @Router       /catalog/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	key, err := products.NewKey(c.Query("category"), c.Query("name"))
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	data, err := h.service.History(c.Request.Context(), key)
	if err != nil {
		h.writeError(c, err, "failed to get history")
		return
	}
	c.JSON(http.StatusOK, historyResponse{KeyType: key.Type, Key: key.Value, Data: data})
}

// GetDashboard godoc
// @Summary      Stock summary
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  dashboardResponse
// @Failure      500  {object}  errorResponse
// @Router       /dashboard/summary [get]
func (h *Handler) GetDashboard(c *gin.Context) {
	summary, err := h.service.DashboardSummary(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to get dashboard")
		return
	}
	c.JSON(http.StatusOK, dashboardResponse{Metrics: summary})
}

// GetForecast godoc
// @Summary      Sales history next to the forecast for a category or a product name
// @Tags         forecast
// @Produce      json
// @Param        category  query     string  false  "Category"
// @Param        name      query     string  false  "Product name"
// @Success      200       {object}  forecast.View
// @Failure      400       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Failure      502       {object}  errorResponse
// @Failure      503       {object}  errorResponse
// @Router       /forecast [get]
func (h *Handler) GetForecast(c *gin.Context) {
	if !h.forecastEnabled(c) {
		return
	}

	key, err := products.NewKey(c.Query("category"), c.Query("name"))
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	view, err := h.forecasts.View(c.Request.Context(), key)
	if err != nil {
		h.writeForecastError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// RefreshForecast godoc
// @Summary      Ask the forecasting engine to recompute a forecast
// @Tags         forecast
// @Accept       json
// @Produce      json
// @Param        body  body      forecastRefreshRequest  true  "Category or product name"
// @Success      202   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      502   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /forecast [post]
func (h *Handler) RefreshForecast(c *gin.Context) {
	if !h.forecastEnabled(c) {
		return
	}

	var req forecastRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	key, err := products.NewKey(strings.TrimSpace(req.Category), strings.TrimSpace(req.Name))
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	if err := h.forecasts.Refresh(c.Request.Context(), key); err != nil {
		h.writeForecastError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, messageResponse{Message: "forecast refresh requested"})
}

func (h *Handler) forecastEnabled(c *gin.Context) bool {
	if h.forecasts == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "forecasting is not configured"})
		return false
	}
	return true
}

func (h *Handler) writeForecastError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, forecast.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: forecast.ErrNotFound.Error()})
	case errors.Is(err, forecast.ErrNoHistory):
		c.JSON(http.StatusNotFound, errorResponse{Error: forecast.ErrNoHistory.Error()})
	case errors.Is(err, forecast.ErrEngine):
		h.logger.Error("forecast engine failed", "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Error: forecast.ErrEngine.Error()})
	default:
		h.writeError(c, err, "failed to get forecast")
	}
}

// writeError maps domain errors to statuses. Anything unknown is logged and
// answered with internalMsg.
func (h *Handler) writeError(c *gin.Context, err error, internalMsg string) {
	var verr *products.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, products.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: products.ErrNotFound.Error()})
	case errors.Is(err, products.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, errorResponse{Error: products.ErrInvalidKey.Error()})
	default:
		h.logger.Error(internalMsg, "error", err, "request_id", requestID(c))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: internalMsg})
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid product id"})
		return 0, false
	}
	return id, true
}

func parseQueryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
