package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/store"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/xid"
)

// Store keeps the whole ledger in process memory behind one mutex. The
// single lock is what makes ReceiveStock, AdjustStock and CreateSale atomic
// units here: no partially applied state is ever observable.
type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	sales      map[string]domain.Sale
	saleItems  map[string][]domain.SaleItem
	stockMoves []domain.StockMove
	config     map[string]string
}

func New() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		sales:      make(map[string]domain.Sale),
		saleItems:  make(map[string][]domain.SaleItem),
		stockMoves: make([]domain.StockMove, 0, 256),
		config:     make(map[string]string),
	}
}

// NewSeeded returns a store preloaded with demo catalog rows for dev mode.
// Opening stock is loaded through ReceiveStock so the ledger reconciles from
// day one.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	seeds := []struct {
		product domain.Product
		stock   int
		cost    string
	}{
		{domain.Product{ID: xid.New("prod"), Name: "Espresso Beans 1kg", SKU: "SKU-001", Price: dec("199.99"), Category: "coffee"}, 10, "120.00"},
		{domain.Product{ID: xid.New("prod"), Name: "Ceramic Mug", SKU: "SKU-002", Price: dec("349.00"), Category: "tableware"}, 5, "180.50"},
		{domain.Product{ID: xid.New("prod"), Name: "Filter Paper 100pcs", SKU: "SKU-003", Price: dec("24.90"), Category: "coffee"}, 40, "11.20"},
	}
	for _, seed := range seeds {
		created, err := s.CreateProduct(ctx, seed.product)
		if err != nil {
			continue
		}
		_, _ = s.ReceiveStock(ctx, created.ID, seed.stock, dec(seed.cost), "opening stock", now)
	}
	return s
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (s *Store) ListProducts(_ context.Context, filter string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.SKU), needle) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if product.SKU != "" && s.skuTakenLocked(product.SKU, product.ID) {
		return nil, store.ErrInvalidInput
	}

	product.Stock = 0
	product.AvgCost = decimal.Zero
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.SKU != "" && s.skuTakenLocked(product.SKU, product.ID) {
		return nil, store.ErrInvalidInput
	}

	// Stock and avg cost are owned by the accounting operations, never by a
	// catalog update.
	product.Stock = existing.Stock
	product.AvgCost = existing.AvgCost
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) RemoveProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) skuTakenLocked(sku string, exceptID string) bool {
	for _, p := range s.products {
		if p.ID != exceptID && p.SKU != "" && p.SKU == sku {
			return true
		}
	}
	return false
}

func (s *Store) ReceiveStock(_ context.Context, productID string, qty int, unitCost decimal.Decimal, comment string, at time.Time) (*domain.Product, error) {
	if qty < 1 || unitCost.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.AvgCost = domain.WeightedAverageCost(product.Stock, product.AvgCost, qty, unitCost)
	product.Stock += qty
	s.products[productID] = product

	cost := unitCost
	s.stockMoves = append(s.stockMoves, domain.StockMove{
		ID:        xid.New("mv"),
		ProductID: productID,
		Delta:     qty,
		Reason:    domain.MoveReasonPurchase,
		UnitCost:  &cost,
		CreatedAt: at.UTC(),
		Comment:   comment,
	})

	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int, comment string, at time.Time) (*domain.Product, error) {
	if delta == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Stock+delta < 0 {
		return nil, &store.StockError{ProductID: productID, Requested: -delta, Available: product.Stock}
	}

	product.Stock += delta
	s.products[productID] = product

	s.stockMoves = append(s.stockMoves, domain.StockMove{
		ID:        xid.New("mv"),
		ProductID: productID,
		Delta:     delta,
		Reason:    domain.MoveReasonAdjust,
		CreatedAt: at.UTC(),
		Comment:   comment,
	})

	updated := product
	return &updated, nil
}

func (s *Store) ListStockMoves(_ context.Context, productID string, limit int) ([]domain.StockMove, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	moves := make([]domain.StockMove, 0, limit)
	for i := len(s.stockMoves) - 1; i >= 0; i-- {
		move := s.stockMoves[i]
		if productID != "" && move.ProductID != productID {
			continue
		}
		moves = append(moves, move)
		if limit > 0 && len(moves) >= limit {
			break
		}
	}
	return moves, nil
}

func (s *Store) ReconcileStock(_ context.Context, productID string) (domain.StockReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return domain.StockReconciliation{}, store.ErrNotFound
	}

	sum := 0
	for _, move := range s.stockMoves {
		if move.ProductID == productID {
			sum += move.Delta
		}
	}

	return domain.StockReconciliation{
		ProductID:  productID,
		Stock:      product.Stock,
		LedgerSum:  sum,
		Consistent: product.Stock == sum,
	}, nil
}

func (s *Store) CreateSale(_ context.Context, cart []domain.CartLine, cashReceived decimal.Decimal, at time.Time) (*domain.Sale, error) {
	if len(cart) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subtotal := decimal.Zero
	for _, line := range cart {
		if line.Qty < 1 || line.Price.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	if cashReceived.LessThan(subtotal) {
		return nil, store.ErrInsufficientPayment
	}

	// Validate every line before the first write so a late failure can
	// never leave a half-applied sale. Demand is aggregated per product;
	// duplicate lines must not each pass against the same stock.
	needed := make(map[string]int, len(cart))
	for _, line := range cart {
		if _, exists := s.products[line.ProductID]; !exists {
			return nil, store.ErrNotFound
		}
		needed[line.ProductID] += line.Qty
	}
	for _, line := range cart {
		product := s.products[line.ProductID]
		if product.Stock < needed[line.ProductID] {
			return nil, &store.StockError{ProductID: line.ProductID, Requested: needed[line.ProductID], Available: product.Stock}
		}
	}

	sale := domain.Sale{
		ID:           xid.New("sale"),
		CreatedAt:    at.UTC(),
		Subtotal:     subtotal,
		CashReceived: cashReceived,
		Change:       cashReceived.Sub(subtotal),
	}

	items := make([]domain.SaleItem, 0, len(cart))
	for _, line := range cart {
		product := s.products[line.ProductID]
		frozenCost := product.AvgCost

		item := domain.SaleItem{
			ID:        xid.New("item"),
			SaleID:    sale.ID,
			ProductID: line.ProductID,
			Qty:       line.Qty,
			Price:     line.Price,
			Cost:      frozenCost,
		}
		items = append(items, item)

		product.Stock -= line.Qty
		s.products[line.ProductID] = product

		s.stockMoves = append(s.stockMoves, domain.StockMove{
			ID:        xid.New("mv"),
			ProductID: line.ProductID,
			Delta:     -line.Qty,
			Reason:    domain.MoveReasonSale,
			UnitCost:  &frozenCost,
			CreatedAt: at.UTC(),
			Comment:   "sale " + sale.ID,
		})
	}

	s.sales[sale.ID] = sale
	s.saleItems[sale.ID] = items

	created := sale
	created.Items = slices.Clone(items)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale.Items = slices.Clone(s.saleItems[id])
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return sales, nil
}

func (s *Store) GetDailyReport(_ context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{Revenue: decimal.Zero, Profit: decimal.Zero}
	for id, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.Checks++
		report.Revenue = report.Revenue.Add(sale.Subtotal)
		for _, item := range s.saleItems[id] {
			margin := item.Price.Sub(item.Cost).Mul(decimal.NewFromInt(int64(item.Qty)))
			report.Profit = report.Profit.Add(margin)
		}
	}
	return report, nil
}

func (s *Store) GetConfig(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.config[key]
	return value, ok, nil
}

func (s *Store) SetConfig(_ context.Context, key string, value string) error {
	if key == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config[key] = value
	return nil
}
