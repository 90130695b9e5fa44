package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/store"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sku TEXT UNIQUE,
			price NUMERIC(14,4) NOT NULL DEFAULT 0,
			avg_cost NUMERIC(14,4) NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			category TEXT,
			image TEXT,
			notes TEXT
		);
		CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			subtotal NUMERIC(14,4) NOT NULL,
			cash_received NUMERIC(14,4) NOT NULL,
			change NUMERIC(14,4) NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sale_items (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id),
			product_id TEXT NOT NULL,
			qty INTEGER NOT NULL,
			price NUMERIC(14,4) NOT NULL,
			cost NUMERIC(14,4) NOT NULL
		);
		CREATE TABLE IF NOT EXISTS stock_moves (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			delta INTEGER NOT NULL,
			reason TEXT NOT NULL,
			unit_cost NUMERIC(14,4),
			created_at TIMESTAMPTZ NOT NULL,
			comment TEXT
		);
		CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at);
		CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items (sale_id);
		CREATE INDEX IF NOT EXISTS idx_stock_moves_product_id ON stock_moves (product_id, created_at);
	`)
	return err
}

func (s *Store) ListProducts(ctx context.Context, filter string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(sku,''), price, avg_cost, stock,
			COALESCE(category,''), COALESCE(image,''), COALESCE(notes,'')
		FROM products
		WHERE $1 = '' OR name ILIKE '%'||$1||'%' OR sku ILIKE '%'||$1||'%'
		ORDER BY category, name
	`, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.AvgCost, &p.Stock, &p.Category, &p.Image, &p.Notes); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, false)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProduct(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Product, error) {
	query := `
		SELECT id, name, COALESCE(sku,''), price, avg_cost, stock,
			COALESCE(category,''), COALESCE(image,''), COALESCE(notes,'')
		FROM products
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p domain.Product
	err := q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.AvgCost, &p.Stock, &p.Category, &p.Image, &p.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Stock = 0
	product.AvgCost = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, price, avg_cost, stock, category, image, notes)
		VALUES ($1,$2,$3,$4,0,0,$5,$6,$7)
	`, product.ID, product.Name, nullIfEmpty(product.SKU), product.Price, nullIfEmpty(product.Category), nullIfEmpty(product.Image), nullIfEmpty(product.Notes))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	// stock and avg_cost are deliberately absent: only the accounting
	// operations may touch them.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, price = $4, category = $5, image = $6, notes = $7
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.SKU), product.Price, nullIfEmpty(product.Category), nullIfEmpty(product.Image), nullIfEmpty(product.Notes))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return getProduct(ctx, s.db, product.ID, false)
}

func (s *Store) RemoveProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReceiveStock(ctx context.Context, productID string, qty int, unitCost decimal.Decimal, comment string, at time.Time) (*domain.Product, error) {
	if qty < 1 || unitCost.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, productID, true)
	if err != nil {
		return nil, err
	}

	newAvg := domain.WeightedAverageCost(product.Stock, product.AvgCost, qty, unitCost)
	newStock := product.Stock + qty

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = $2, avg_cost = $3 WHERE id = $1
	`, productID, newStock, newAvg); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_moves (id, product_id, delta, reason, unit_cost, created_at, comment)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, xid.New("mv"), productID, qty, domain.MoveReasonPurchase, unitCost, at.UTC(), nullIfEmpty(comment)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	product.Stock = newStock
	product.AvgCost = newAvg
	return product, nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int, comment string, at time.Time) (*domain.Product, error) {
	if delta == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, productID, true)
	if err != nil {
		return nil, err
	}
	if product.Stock+delta < 0 {
		return nil, &store.StockError{ProductID: productID, Requested: -delta, Available: product.Stock}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id = $1
	`, productID, delta); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_moves (id, product_id, delta, reason, created_at, comment)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("mv"), productID, delta, domain.MoveReasonAdjust, at.UTC(), nullIfEmpty(comment)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	product.Stock += delta
	return product, nil
}

func (s *Store) ListStockMoves(ctx context.Context, productID string, limit int) ([]domain.StockMove, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, delta, reason, unit_cost, created_at, COALESCE(comment,'')
		FROM stock_moves
		WHERE $1 = '' OR product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moves := make([]domain.StockMove, 0, limit)
	for rows.Next() {
		var move domain.StockMove
		var unitCost decimal.NullDecimal
		if err := rows.Scan(&move.ID, &move.ProductID, &move.Delta, &move.Reason, &unitCost, &move.CreatedAt, &move.Comment); err != nil {
			return nil, err
		}
		move.CreatedAt = move.CreatedAt.UTC()
		if unitCost.Valid {
			cost := unitCost.Decimal
			move.UnitCost = &cost
		}
		moves = append(moves, move)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return moves, nil
}

func (s *Store) ReconcileStock(ctx context.Context, productID string) (domain.StockReconciliation, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockReconciliation{}, err
	}

	var sum int
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta),0)::int FROM stock_moves WHERE product_id = $1
	`, productID).Scan(&sum)
	if err != nil {
		return domain.StockReconciliation{}, err
	}

	return domain.StockReconciliation{
		ProductID:  productID,
		Stock:      product.Stock,
		LedgerSum:  sum,
		Consistent: product.Stock == sum,
	}, nil
}

func (s *Store) CreateSale(ctx context.Context, cart []domain.CartLine, cashReceived decimal.Decimal, at time.Time) (*domain.Sale, error) {
	if len(cart) == 0 {
		return nil, store.ErrInvalidInput
	}

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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock and validate every cart line before the first insert; the
	// rollback in the deferred call guarantees no partial sale survives a
	// failure past this point.
	products := make(map[string]*domain.Product, len(cart))
	for _, line := range cart {
		if _, seen := products[line.ProductID]; seen {
			continue
		}
		product, err := getProduct(ctx, tx, line.ProductID, true)
		if err != nil {
			return nil, err
		}
		products[line.ProductID] = product
	}
	needed := make(map[string]int, len(cart))
	for _, line := range cart {
		needed[line.ProductID] += line.Qty
	}
	for _, line := range cart {
		product := products[line.ProductID]
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

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, created_at, subtotal, cash_received, change)
		VALUES ($1,$2,$3,$4,$5)
	`, sale.ID, sale.CreatedAt, sale.Subtotal, sale.CashReceived, sale.Change); err != nil {
		return nil, err
	}

	items := make([]domain.SaleItem, 0, len(cart))
	for _, line := range cart {
		frozenCost := products[line.ProductID].AvgCost
		item := domain.SaleItem{
			ID:        xid.New("item"),
			SaleID:    sale.ID,
			ProductID: line.ProductID,
			Qty:       line.Qty,
			Price:     line.Price,
			Cost:      frozenCost,
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, qty, price, cost)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, item.SaleID, item.ProductID, item.Qty, item.Price, item.Cost); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1
		`, line.ProductID, line.Qty); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_moves (id, product_id, delta, reason, unit_cost, created_at, comment)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("mv"), line.ProductID, -line.Qty, domain.MoveReasonSale, frozenCost, sale.CreatedAt, "sale "+sale.ID); err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sale.Items = items
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, subtotal, cash_received, change
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.CreatedAt, &sale.Subtotal, &sale.CashReceived, &sale.Change)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, qty, price, cost
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Qty, &item.Price, &item.Cost); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, subtotal, cash_received, change
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.CreatedAt, &sale.Subtotal, &sale.CashReceived, &sale.Change); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{Revenue: decimal.Zero, Profit: decimal.Zero}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(subtotal),0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.Checks, &report.Revenue)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.qty * (si.price - si.cost)),0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2
	`, from, to).Scan(&report.Profit)
	if err != nil {
		return report, err
	}

	return report, nil
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetConfig(ctx context.Context, key string, value string) error {
	if key == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value)
		VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
