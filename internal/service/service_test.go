package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/cache"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/scheduler"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/store"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/store/memory"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

type capturingNotifier struct {
	sent []string
	err  error
}

func (n *capturingNotifier) Send(_ context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

type recordingCache struct {
	entries map[string]domain.DailyReport
	gets    int
	hits    int
	sets    int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string]domain.DailyReport)}
}

func (c *recordingCache) Get(_ context.Context, date string) (*domain.DailyReport, bool, error) {
	c.gets++
	report, ok := c.entries[date]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	copied := report
	return &copied, true, nil
}

func (c *recordingCache) Set(_ context.Context, date string, report *domain.DailyReport, _ time.Duration) error {
	c.sets++
	c.entries[date] = *report
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *capturingNotifier) {
	t.Helper()
	repo := memory.New()
	notifier := &capturingNotifier{}
	sched := scheduler.New(zerolog.Nop())
	t.Cleanup(sched.Stop)

	svc := New(repo, cache.NoopReportCache{}, time.Minute, notifier, sched, zerolog.Nop(), "PLN", time.Second)
	return svc, repo, notifier
}

func seedProduct(t *testing.T, svc *Service, name, price string, stock int, unitCost string) *domain.Product {
	t.Helper()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: name, Price: dec(t, price)})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if stock > 0 {
		product, err = svc.ReceiveStock(ctx, product.ID, domain.ReceiveStockRequest{Qty: stock, UnitCost: dec(t, unitCost)})
		if err != nil {
			t.Fatalf("receive opening stock: %v", err)
		}
	}
	return product
}

func TestCreateProductRejectsMissingName(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{Price: dec(t, "10")})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateProductPreservesAccountingFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 8, "55")

	newPrice := dec(t, "120")
	updated, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{Price: &newPrice})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if !updated.Price.Equal(newPrice) {
		t.Fatalf("price not updated: %s", updated.Price)
	}
	if updated.Stock != 8 || !updated.AvgCost.Equal(dec(t, "55")) {
		t.Fatalf("catalog update touched accounting fields: stock=%d avg=%s", updated.Stock, updated.AvgCost)
	}
}

func TestReceiveStockAveragesCost(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "200", 10, "120")

	updated, err := svc.ReceiveStock(ctx, product.ID, domain.ReceiveStockRequest{Qty: 10, UnitCost: dec(t, "180")})
	if err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	if updated.Stock != 20 {
		t.Fatalf("stock = %d, want 20", updated.Stock)
	}
	if !updated.AvgCost.Equal(dec(t, "150")) {
		t.Fatalf("avg cost = %s, want 150", updated.AvgCost)
	}

	rec, err := svc.ReconcileStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Consistent {
		t.Fatalf("ledger out of sync: stock=%d sum=%d", rec.Stock, rec.LedgerSum)
	}
}

func TestAdjustStockCannotGoNegative(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Mug", "50", 5, "20")

	_, err := svc.AdjustStock(ctx, product.ID, domain.AdjustStockRequest{Delta: -7, Comment: "breakage"})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	current, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if current.Stock != 5 {
		t.Fatalf("failed adjust must not move stock, got %d", current.Stock)
	}
}

func TestFinalizeSalePaymentGuard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	_, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 2, Price: dec(t, "100")}},
		CashReceived: dec(t, "199.99"),
	})
	if !errors.Is(err, store.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}

	current, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if current.Stock != 10 {
		t.Fatalf("rejected sale must not move stock, got %d", current.Stock)
	}
	moves, err := svc.ListStockMoves(ctx, product.ID, 100)
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("rejected sale must not append ledger rows, got %d moves", len(moves))
	}
}

func TestFinalizeSaleInsufficientStockLeavesLedgerUntouched(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	plenty := seedProduct(t, svc, "Beans", "100", 10, "60")
	scarce := seedProduct(t, svc, "Mug", "50", 1, "20")

	_, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart: []domain.CartLine{
			{ProductID: plenty.ID, Qty: 2, Price: dec(t, "100")},
			{ProductID: scarce.ID, Qty: 3, Price: dec(t, "50")},
		},
		CashReceived: dec(t, "1000"),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *store.StockError, got %T", err)
	}
	if stockErr.ProductID != scarce.ID || stockErr.Requested != 3 || stockErr.Available != 1 {
		t.Fatalf("unexpected stock error detail: %+v", stockErr)
	}

	for _, p := range []*domain.Product{plenty, scarce} {
		current, err := svc.GetProduct(ctx, p.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		if current.Stock != p.Stock {
			t.Fatalf("failed sale moved stock of %s: %d -> %d", p.ID, p.Stock, current.Stock)
		}
		rec, err := svc.ReconcileStock(ctx, p.ID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if !rec.Consistent {
			t.Fatalf("ledger out of sync for %s", p.ID)
		}
	}
}

func TestFinalizeSaleHappyPath(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	resp, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 2, Price: dec(t, "100")}},
		CashReceived: dec(t, "250"),
	})
	if err != nil {
		t.Fatalf("finalize sale: %v", err)
	}
	if !resp.Subtotal.Equal(dec(t, "200")) {
		t.Fatalf("subtotal = %s, want 200", resp.Subtotal)
	}
	if !resp.Change.Equal(dec(t, "50")) {
		t.Fatalf("change = %s, want 50", resp.Change)
	}

	current, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if current.Stock != 8 {
		t.Fatalf("stock = %d, want 8", current.Stock)
	}

	sale, err := svc.GetSale(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("sale has %d items, want 1", len(sale.Items))
	}
	if !sale.Items[0].Cost.Equal(dec(t, "60")) {
		t.Fatalf("frozen cost = %s, want 60", sale.Items[0].Cost)
	}

	rec, err := svc.ReconcileStock(ctx, product.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Consistent {
		t.Fatalf("ledger out of sync: stock=%d sum=%d", rec.Stock, rec.LedgerSum)
	}
}

// Sales never move the average cost; only receipts do.
func TestSaleDoesNotChangeAvgCost(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	_, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 5, Price: dec(t, "100")}},
		CashReceived: dec(t, "500"),
	})
	if err != nil {
		t.Fatalf("finalize sale: %v", err)
	}

	current, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !current.AvgCost.Equal(dec(t, "60")) {
		t.Fatalf("sale changed avg cost to %s", current.AvgCost)
	}
}

func TestDailyReportComputesRevenueAndProfit(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	svc.nowFn = func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }
	_, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 2, Price: dec(t, "100")}},
		CashReceived: dec(t, "200"),
	})
	if err != nil {
		t.Fatalf("finalize sale: %v", err)
	}

	report, err := svc.DailyReport(ctx, "2024-01-05")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if report.Checks != 1 {
		t.Fatalf("checks = %d, want 1", report.Checks)
	}
	if !report.Revenue.Equal(dec(t, "200")) {
		t.Fatalf("revenue = %s, want 200", report.Revenue)
	}
	if !report.Profit.Equal(dec(t, "80")) {
		t.Fatalf("profit = %s, want 80 (2 x (100 - 60))", report.Profit)
	}
}

func TestDailyReportExcludesOutOfWindowSales(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	// One millisecond past midnight belongs to the next day.
	svc.nowFn = func() time.Time { return time.Date(2024, 1, 6, 0, 0, 0, int(time.Millisecond), time.UTC) }
	if _, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 1, Price: dec(t, "100")}},
		CashReceived: dec(t, "100"),
	}); err != nil {
		t.Fatalf("finalize sale: %v", err)
	}

	before, err := svc.DailyReport(ctx, "2024-01-05")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if before.Checks != 0 || !before.Revenue.IsZero() {
		t.Fatalf("sale leaked into previous day: %+v", before)
	}

	after, err := svc.DailyReport(ctx, "2024-01-06")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if after.Checks != 1 {
		t.Fatalf("sale missing from its own day: %+v", after)
	}
}

func TestDailyReportEmptyDayReturnsZeros(t *testing.T) {
	svc, _, _ := newTestService(t)

	report, err := svc.DailyReport(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if report.Date != "2024-03-01" || report.Checks != 0 || !report.Revenue.IsZero() || !report.Profit.IsZero() {
		t.Fatalf("empty day must report zeros, got %+v", report)
	}
}

func TestEmptyDateResolvesThroughServiceClock(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	svc.nowFn = func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }
	if _, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 1, Price: dec(t, "100")}},
		CashReceived: dec(t, "100"),
	}); err != nil {
		t.Fatalf("finalize sale: %v", err)
	}

	report, err := svc.DailyReport(ctx, "")
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if report.Date != "2024-01-05" || report.Checks != 1 {
		t.Fatalf("empty date did not resolve to the clock's day: %+v", report)
	}

	sales, err := svc.ListSales(ctx, "")
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("empty date list returned %d sales, want 1", len(sales))
	}
}

func TestDailyReportRejectsMalformedDate(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.DailyReport(context.Background(), "05-01-2024")
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDailyReportCachesClosedDaysOnly(t *testing.T) {
	repo := memory.New()
	reports := newRecordingCache()
	sched := scheduler.New(zerolog.Nop())
	t.Cleanup(sched.Stop)
	svc := New(repo, reports, time.Minute, &capturingNotifier{}, sched, zerolog.Nop(), "PLN", time.Second)
	svc.nowFn = func() time.Time { return time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if _, err := svc.DailyReport(ctx, "2024-01-05"); err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if reports.sets != 1 {
		t.Fatalf("closed day not cached, sets = %d", reports.sets)
	}
	if _, err := svc.DailyReport(ctx, "2024-01-05"); err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if reports.hits != 1 {
		t.Fatalf("second read not served from cache, hits = %d", reports.hits)
	}

	if _, err := svc.DailyReport(ctx, "2024-02-01"); err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if reports.sets != 1 {
		t.Fatalf("today must never be cached, sets = %d", reports.sets)
	}
}

func TestListSalesReturnsOnlyRequestedDay(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	svc.nowFn = func() time.Time { return time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC) }
	first, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 1, Price: dec(t, "100")}},
		CashReceived: dec(t, "100"),
	})
	if err != nil {
		t.Fatalf("finalize sale: %v", err)
	}

	svc.nowFn = func() time.Time { return time.Date(2024, 1, 6, 9, 30, 0, 0, time.UTC) }
	if _, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 1, Price: dec(t, "100")}},
		CashReceived: dec(t, "100"),
	}); err != nil {
		t.Fatalf("finalize sale: %v", err)
	}

	sales, err := svc.ListSales(ctx, "2024-01-05")
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != first.SaleID {
		t.Fatalf("expected only the 2024-01-05 sale, got %d sales", len(sales))
	}
}

func TestSetScheduleReplacesPreviousTimer(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SetSchedule(ctx, domain.ScheduleRequest{Hour: 9, Minute: 0, Timezone: "UTC"}); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
	if _, err := svc.SetSchedule(ctx, domain.ScheduleRequest{Hour: 18, Minute: 30, Timezone: "UTC"}); err != nil {
		t.Fatalf("set schedule: %v", err)
	}

	state := svc.GetSchedule(ctx)
	if !state.Armed || state.Hour != 18 || state.Minute != 30 {
		t.Fatalf("scheduler not armed to most recent call: %+v", state)
	}

	hour, _, err := repo.GetConfig(ctx, domain.ConfigKeyScheduleHour)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if hour != "18" {
		t.Fatalf("persisted hour = %q, want 18", hour)
	}
}

func TestSetScheduleRejectsUnknownTimezone(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SetSchedule(context.Background(), domain.ScheduleRequest{Hour: 9, Minute: 0, Timezone: "Atlantis/Sunken"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRestoreScheduleArmsFromConfig(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	for key, value := range map[string]string{
		domain.ConfigKeyScheduleHour:   "21",
		domain.ConfigKeyScheduleMinute: "15",
		domain.ConfigKeyScheduleTZ:     "UTC",
	} {
		if err := repo.SetConfig(ctx, key, value); err != nil {
			t.Fatalf("set config: %v", err)
		}
	}

	svc.RestoreSchedule(ctx)

	state := svc.GetSchedule(ctx)
	if !state.Armed || state.Hour != 21 || state.Minute != 15 {
		t.Fatalf("schedule not restored: %+v", state)
	}
}

func TestRestoreScheduleIgnoresInvalidConfig(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	for key, value := range map[string]string{
		domain.ConfigKeyScheduleHour:   "25",
		domain.ConfigKeyScheduleMinute: "0",
		domain.ConfigKeyScheduleTZ:     "UTC",
	} {
		if err := repo.SetConfig(ctx, key, value); err != nil {
			t.Fatalf("set config: %v", err)
		}
	}

	svc.RestoreSchedule(ctx)

	if state := svc.GetSchedule(ctx); state.Armed {
		t.Fatalf("invalid persisted schedule must leave scheduler idle: %+v", state)
	}
}

func TestSendReportNowFormatsSummary(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Beans", "100", 10, "60")

	if err := repo.SetConfig(ctx, domain.ConfigKeyCurrency, "USD"); err != nil {
		t.Fatalf("set config: %v", err)
	}

	svc.nowFn = func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }
	if _, err := svc.FinalizeSale(ctx, domain.SaleRequest{
		Cart:         []domain.CartLine{{ProductID: product.ID, Qty: 2, Price: dec(t, "100")}},
		CashReceived: dec(t, "200"),
	}); err != nil {
		t.Fatalf("finalize sale: %v", err)
	}

	report, err := svc.SendReportNow(ctx)
	if err != nil {
		t.Fatalf("send report now: %v", err)
	}
	if report.Checks != 1 {
		t.Fatalf("checks = %d, want 1", report.Checks)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(notifier.sent))
	}

	text := notifier.sent[0]
	for _, want := range []string{"2024-01-05", "Checks: <b>1</b>", "200.00 USD", "80.00 USD"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestSendReportNowSurfacesNotifierError(t *testing.T) {
	svc, _, notifier := newTestService(t)
	notifier.err = errors.New("telegram unreachable")

	_, err := svc.SendReportNow(context.Background())
	if err == nil || !strings.Contains(err.Error(), "telegram unreachable") {
		t.Fatalf("notifier failure must surface, got %v", err)
	}
}

func TestUpdateSettingsRoundTrips(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	currency := "EUR"
	token := "123:abc"
	chatID := "42"
	settings, err := svc.UpdateSettings(ctx, domain.SettingsRequest{
		Currency:       &currency,
		TelegramToken:  &token,
		TelegramChatID: &chatID,
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if settings.Currency != "EUR" {
		t.Fatalf("currency = %q, want EUR", settings.Currency)
	}
	if !settings.TelegramConfigured {
		t.Fatalf("telegram should be marked configured")
	}
}
