package forecast

import (
	"context"
	"errors"
	"fmt"

	"product-catalog/internal/products"
)

type HistorySource interface {
	History(ctx context.Context, key products.Key) ([]products.MonthlyQuantity, error)
}

type Engine interface {
	Predictions(ctx context.Context, key products.Key) ([]products.MonthlyQuantity, error)
	Refresh(ctx context.Context, key products.Key, history []products.MonthlyQuantity) error
}

// View is the local history of a series next to its forecast.
type View struct {
	KeyType  string                     `json:"key_type"`
	Key      string                     `json:"key"`
	History  []products.MonthlyQuantity `json:"history"`
	Forecast []products.MonthlyQuantity `json:"forecast"`
}

type Service struct {
	history HistorySource
	engine  Engine
}

func NewService(history HistorySource, engine Engine) *Service {
	return &Service{history: history, engine: engine}
}

func (s *Service) View(ctx context.Context, key products.Key) (View, error) {
	history, err := s.history.History(ctx, key)
	if err != nil {
		return View{}, fmt.Errorf("load history: %w", err)
	}

	predictions, err := s.engine.Predictions(ctx, key)
	if err != nil {
		return View{}, engineError("load forecast", err)
	}

	return View{
		KeyType:  key.Type,
		Key:      key.Value,
		History:  history,
		Forecast: predictions,
	}, nil
}

// Refresh sends the current history to the engine. A key without history
// cannot be forecast.
func (s *Service) Refresh(ctx context.Context, key products.Key) error {
	history, err := s.history.History(ctx, key)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return ErrNoHistory
	}

	if err := s.engine.Refresh(ctx, key, history); err != nil {
		return engineError("refresh forecast", err)
	}
	return nil
}

func engineError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrEngine, err)
}
