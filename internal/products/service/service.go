package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"product-catalog/internal/products"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultExpiringSoonWindow = 30 * 24 * time.Hour

type Repository interface {
	Create(ctx context.Context, attrs products.Attributes) (products.Product, error)
	GetByID(ctx context.Context, id int64) (products.Product, error)
	Update(ctx context.Context, id int64, attrs products.Attributes) (products.Product, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, q products.SearchQuery) (products.SearchResult, error)
	Categories(ctx context.Context) ([]string, error)
	Names(ctx context.Context) ([]string, error)
	History(ctx context.Context, key products.Key) ([]products.MonthlyQuantity, error)
	Summary(ctx context.Context, today, soonUntil time.Time) (products.Summary, error)
}

type Publisher interface {
	Publish(ctx context.Context, event products.ProductEvent) error
}

type Metrics struct {
	Created prometheus.Counter
	Updated prometheus.Counter
	Deleted prometheus.Counter
}

type Config struct {
	// ExpirationCutoff is the date every expiration date must be after.
	ExpirationCutoff   time.Time
	ExpiringSoonWindow time.Duration
	// Location decides which calendar day "today" is for the dashboard.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	repo      Repository
	publisher Publisher
	logger    *slog.Logger
	metrics   Metrics
	cfg       Config
}

func New(repo Repository, publisher Publisher, logger *slog.Logger, metrics Metrics, cfg Config) *Service {
	if cfg.ExpiringSoonWindow <= 0 {
		cfg.ExpiringSoonWindow = defaultExpiringSoonWindow
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}
}

func (s *Service) CreateProduct(ctx context.Context, draft products.Draft) (products.Product, error) {
	attrs, err := Validate(draft, s.cfg.ExpirationCutoff)
	if err != nil {
		return products.Product{}, err
	}

	product, err := s.repo.Create(ctx, attrs)
	if err != nil {
		return products.Product{}, fmt.Errorf("repo create: %w", err)
	}

	s.publish(ctx, productEvent(products.EventCreated, product, s.cfg.Now()))
	s.metrics.Created.Inc()
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (products.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return products.Product{}, fmt.Errorf("repo get: %w", err)
	}
	return product, nil
}

// UpdateProduct replaces every mutable field of the product. The id and the
// creation time never change.
func (s *Service) UpdateProduct(ctx context.Context, id int64, draft products.Draft) (products.Product, error) {
	attrs, err := Validate(draft, s.cfg.ExpirationCutoff)
	if err != nil {
		return products.Product{}, err
	}

	product, err := s.repo.Update(ctx, id, attrs)
	if err != nil {
		return products.Product{}, fmt.Errorf("repo update: %w", err)
	}

	s.publish(ctx, productEvent(products.EventUpdated, product, s.cfg.Now()))
	s.metrics.Updated.Inc()
	return product, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("repo delete: %w", err)
	}

	s.publish(ctx, products.ProductEvent{
		EventType: products.EventDeleted,
		ProductID: id,
		Timestamp: s.cfg.Now().UTC(),
	})
	s.metrics.Deleted.Inc()
	return nil
}

// SearchProducts returns one fixed-size page of products whose name contains
// term. Pages start at 1; smaller values are treated as 1.
func (s *Service) SearchProducts(ctx context.Context, term string, page int) (products.Page, error) {
	if page < 1 {
		page = 1
	}

	q := products.SearchQuery{
		Term:     strings.TrimSpace(term),
		Page:     page,
		PageSize: products.PageSize,
	}

	res, err := s.repo.Search(ctx, q)
	if err != nil {
		return products.Page{}, fmt.Errorf("repo search: %w", err)
	}

	return products.Page{
		Items:      res.Items,
		Total:      res.Total,
		Page:       page,
		PageSize:   q.PageSize,
		TotalPages: totalPages(res.Total, q.PageSize),
	}, nil
}

func totalPages(total int64, pageSize int) int {
	if total <= 0 {
		return 0
	}
	size := int64(pageSize)
	return int((total + size - 1) / size)
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo categories: %w", err)
	}
	return categories, nil
}

func (s *Service) Names(ctx context.Context) ([]string, error) {
	names, err := s.repo.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo names: %w", err)
	}
	return names, nil
}

func (s *Service) History(ctx context.Context, key products.Key) ([]products.MonthlyQuantity, error) {
	history, err := s.repo.History(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("repo history: %w", err)
	}
	return history, nil
}

func (s *Service) DashboardSummary(ctx context.Context) (products.Summary, error) {
	today := products.DateOnly(s.cfg.Now().In(s.cfg.Location))
	soonUntil := today.Add(s.cfg.ExpiringSoonWindow)

	summary, err := s.repo.Summary(ctx, today, soonUntil)
	if err != nil {
		return products.Summary{}, fmt.Errorf("repo summary: %w", err)
	}
	return summary, nil
}

func (s *Service) publish(ctx context.Context, event products.ProductEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publish "+event.EventType+" event failed",
			"product_id", event.ProductID,
			"error", err,
		)
	}
}

func productEvent(eventType string, p products.Product, now time.Time) products.ProductEvent {
	return products.ProductEvent{
		EventType:      eventType,
		ProductID:      p.ID,
		Name:           p.Name,
		Category:       p.Category,
		Quantity:       p.Quantity,
		ExpirationDate: p.ExpirationDate,
		Timestamp:      now.UTC(),
	}
}
