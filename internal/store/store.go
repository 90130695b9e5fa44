package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPayment = errors.New("insufficient payment")
)

// StockError reports which product blocked a sale or adjustment and by how
// much. It unwraps to ErrInsufficientStock so callers can match with
// errors.Is.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Repository is the single owner of durable ledger state. ReceiveStock,
// AdjustStock and CreateSale are atomic units: every write inside them
// commits together or not at all.
type Repository interface {
	ListProducts(ctx context.Context, filter string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	RemoveProduct(ctx context.Context, id string) error

	ReceiveStock(ctx context.Context, productID string, qty int, unitCost decimal.Decimal, comment string, at time.Time) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int, comment string, at time.Time) (*domain.Product, error)
	ListStockMoves(ctx context.Context, productID string, limit int) ([]domain.StockMove, error)
	ReconcileStock(ctx context.Context, productID string) (domain.StockReconciliation, error)

	CreateSale(ctx context.Context, cart []domain.CartLine, cashReceived decimal.Decimal, at time.Time) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error)

	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key string, value string) error
}
