package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/cache"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/domain"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/notify"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/scheduler"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/store"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/validate"
)

const dateLayout = "2006-01-02"

type Service struct {
	repo            store.Repository
	reports         cache.ReportCache
	reportCacheTTL  time.Duration
	notifier        notify.Notifier
	sched           *scheduler.Scheduler
	log             zerolog.Logger
	defaultCurrency string
	notifyTimeout   time.Duration
	nowFn           func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, reportCacheTTL time.Duration, notifier notify.Notifier, sched *scheduler.Scheduler, log zerolog.Logger, defaultCurrency string, notifyTimeout time.Duration) *Service {
	if reportCacheTTL <= 0 {
		reportCacheTTL = 5 * time.Minute
	}
	if notifyTimeout <= 0 {
		notifyTimeout = 15 * time.Second
	}
	if defaultCurrency == "" {
		defaultCurrency = "PLN"
	}

	return &Service{
		repo:            repo,
		reports:         reports,
		reportCacheTTL:  reportCacheTTL,
		notifier:        notifier,
		sched:           sched,
		log:             log,
		defaultCurrency: defaultCurrency,
		notifyTimeout:   notifyTimeout,
		nowFn:           time.Now,
	}
}

func (s *Service) ListProducts(ctx context.Context, filter string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", store.ErrInvalidInput)
	}

	return s.repo.CreateProduct(ctx, domain.Product{
		Name:     req.Name,
		SKU:      req.SKU,
		Price:    req.Price,
		Category: req.Category,
		Image:    req.Image,
		Notes:    req.Notes,
	})
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", store.ErrInvalidInput)
		}
		updated.Name = *req.Name
	}
	if req.SKU != nil {
		updated.SKU = *req.SKU
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price must not be negative", store.ErrInvalidInput)
		}
		updated.Price = *req.Price
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}
	if req.Image != nil {
		updated.Image = *req.Image
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}

	return s.repo.UpdateProduct(ctx, updated)
}

func (s *Service) RemoveProduct(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.RemoveProduct(ctx, id)
}

// ReceiveStock books a stock receipt: the product's weighted-average cost
// absorbs the incoming units and a purchase move lands in the ledger, both
// inside one atomic unit in the repository.
func (s *Service) ReceiveStock(ctx context.Context, productID string, req domain.ReceiveStockRequest) (*domain.Product, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if req.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must not be negative", store.ErrInvalidInput)
	}

	return s.repo.ReceiveStock(ctx, productID, req.Qty, req.UnitCost, req.Comment, s.nowFn())
}

// AdjustStock corrects the stock counter without touching the cost basis.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.AdjustStockRequest) (*domain.Product, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	return s.repo.AdjustStock(ctx, productID, req.Delta, req.Comment, s.nowFn())
}

func (s *Service) ListStockMoves(ctx context.Context, productID string, limit int) ([]domain.StockMove, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListStockMoves(ctx, productID, limit)
}

func (s *Service) ReconcileStock(ctx context.Context, productID string) (domain.StockReconciliation, error) {
	if productID == "" {
		return domain.StockReconciliation{}, store.ErrInvalidInput
	}
	return s.repo.ReconcileStock(ctx, productID)
}

// FinalizeSale validates the cart and payment before any I/O, then hands
// the cart to the repository's atomic unit. Validation failures leave the
// ledger untouched by construction.
func (s *Service) FinalizeSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	subtotal := decimal.Zero
	for _, line := range req.Cart {
		if line.Price.IsNegative() {
			return nil, fmt.Errorf("%w: line price must not be negative", store.ErrInvalidInput)
		}
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	if req.CashReceived.LessThan(subtotal) {
		return nil, store.ErrInsufficientPayment
	}

	sale, err := s.repo.CreateSale(ctx, req.Cart, req.CashReceived, s.nowFn())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("sale_id", sale.ID).
		Str("subtotal", sale.Subtotal.String()).
		Int("lines", len(sale.Items)).
		Msg("sale finalized")

	return &domain.SaleResponse{
		SaleID:   sale.ID,
		Subtotal: sale.Subtotal,
		Change:   sale.Change,
	}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if id == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetSale(ctx, id)
}

// ListSales returns the sales of one calendar day, newest first. An empty
// date means today.
func (s *Service) ListSales(ctx context.Context, date string) ([]domain.Sale, error) {
	from, to, err := dayWindow(s.resolveDate(date))
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, from, to)
}

// DailyReport aggregates one day of the ledger. An empty date means today.
// Closed days are served from the report cache when one is configured;
// today's numbers always hit the store.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	date = s.resolveDate(date)
	from, to, err := dayWindow(date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	today := s.nowFn().UTC().Format(dateLayout)
	closedDay := date < today

	if closedDay {
		if cached, ok, err := s.reports.Get(ctx, date); err == nil && ok {
			return *cached, nil
		} else if err != nil {
			s.log.Warn().Err(err).Str("date", date).Msg("report cache read failed")
		}
	}

	report, err := s.repo.GetDailyReport(ctx, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.Date = date

	if closedDay {
		if err := s.reports.Set(ctx, date, &report, s.reportCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("date", date).Msg("report cache write failed")
		}
	}

	return report, nil
}

// resolveDate fills an empty date with today, read from the service clock
// so HTTP callers and tests agree on what "today" is.
func (s *Service) resolveDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.nowFn().UTC().Format(dateLayout)
	}
	return date
}

func dayWindow(date string) (time.Time, time.Time, error) {
	parsed, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	return parsed, parsed.AddDate(0, 0, 1), nil
}

// SetSchedule persists the daily report schedule and re-arms the timer.
// Calling it again replaces the previous schedule outright.
func (s *Service) SetSchedule(ctx context.Context, req domain.ScheduleRequest) (domain.Schedule, error) {
	if err := validate.Struct(req); err != nil {
		return domain.Schedule{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("%w: unknown timezone %q", store.ErrInvalidInput, req.Timezone)
	}

	if err := s.repo.SetConfig(ctx, domain.ConfigKeyScheduleHour, strconv.Itoa(req.Hour)); err != nil {
		return domain.Schedule{}, err
	}
	if err := s.repo.SetConfig(ctx, domain.ConfigKeyScheduleMinute, strconv.Itoa(req.Minute)); err != nil {
		return domain.Schedule{}, err
	}
	if err := s.repo.SetConfig(ctx, domain.ConfigKeyScheduleTZ, req.Timezone); err != nil {
		return domain.Schedule{}, err
	}

	s.sched.Arm(req.Hour, req.Minute, loc, s.fireScheduledReport)

	return domain.Schedule{Hour: req.Hour, Minute: req.Minute, Timezone: req.Timezone, Armed: true}, nil
}

func (s *Service) GetSchedule(_ context.Context) domain.Schedule {
	hour, minute, tz, armed := s.sched.State()
	return domain.Schedule{Hour: hour, Minute: minute, Timezone: tz, Armed: armed}
}

// RestoreSchedule re-arms the timer from persisted config at startup. A
// missing or unparsable schedule leaves the scheduler idle.
func (s *Service) RestoreSchedule(ctx context.Context) {
	hourStr, ok, err := s.repo.GetConfig(ctx, domain.ConfigKeyScheduleHour)
	if err != nil || !ok {
		return
	}
	minuteStr, ok, err := s.repo.GetConfig(ctx, domain.ConfigKeyScheduleMinute)
	if err != nil || !ok {
		return
	}
	tz, ok, err := s.repo.GetConfig(ctx, domain.ConfigKeyScheduleTZ)
	if err != nil || !ok {
		return
	}

	hour, errH := strconv.Atoi(hourStr)
	minute, errM := strconv.Atoi(minuteStr)
	loc, errTZ := time.LoadLocation(tz)
	if errH != nil || errM != nil || errTZ != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		s.log.Warn().Str("hour", hourStr).Str("minute", minuteStr).Str("tz", tz).Msg("persisted schedule is invalid, leaving scheduler idle")
		return
	}

	s.sched.Arm(hour, minute, loc, s.fireScheduledReport)
	s.log.Info().Int("hour", hour).Int("minute", minute).Str("tz", tz).Msg("report schedule restored")
}

// fireScheduledReport is the scheduler callback: a notifier failure is
// logged and swallowed so the next firing still happens.
func (s *Service) fireScheduledReport(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()

	date := now.UTC().Format(dateLayout)
	if err := s.sendReport(ctx, date); err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("scheduled report dispatch failed")
		return
	}
	s.log.Info().Str("date", date).Msg("daily report sent")
}

// SendReportNow builds and dispatches today's report synchronously; unlike a
// scheduled firing, the notifier error is surfaced to the caller.
func (s *Service) SendReportNow(ctx context.Context) (domain.DailyReport, error) {
	date := s.nowFn().UTC().Format(dateLayout)

	report, err := s.DailyReport(ctx, date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Send(sendCtx, s.formatReport(ctx, report)); err != nil {
		return report, fmt.Errorf("send report: %w", err)
	}
	return report, nil
}

func (s *Service) sendReport(ctx context.Context, date string) error {
	report, err := s.DailyReport(ctx, date)
	if err != nil {
		return err
	}
	return s.notifier.Send(ctx, s.formatReport(ctx, report))
}

func (s *Service) formatReport(ctx context.Context, report domain.DailyReport) string {
	currency := s.currency(ctx)
	return fmt.Sprintf(
		"📊 <b>Daily summary for %s</b>\nChecks: <b>%d</b>\nRevenue: <b>%s %s</b>\nProfit: <b>%s %s</b>",
		report.Date,
		report.Checks,
		report.Revenue.StringFixed(2), currency,
		report.Profit.StringFixed(2), currency,
	)
}

func (s *Service) currency(ctx context.Context) string {
	value, ok, err := s.repo.GetConfig(ctx, domain.ConfigKeyCurrency)
	if err != nil || !ok || value == "" {
		return s.defaultCurrency
	}
	return value
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	token, _, err := s.repo.GetConfig(ctx, domain.ConfigKeyTelegramToken)
	if err != nil {
		return domain.Settings{}, err
	}
	chatID, _, err := s.repo.GetConfig(ctx, domain.ConfigKeyTelegramChatID)
	if err != nil {
		return domain.Settings{}, err
	}

	return domain.Settings{
		Currency:           s.currency(ctx),
		TelegramConfigured: token != "" && chatID != "",
	}, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsRequest) (domain.Settings, error) {
	if req.Currency != nil {
		if *req.Currency == "" {
			return domain.Settings{}, fmt.Errorf("%w: currency must not be empty", store.ErrInvalidInput)
		}
		if err := s.repo.SetConfig(ctx, domain.ConfigKeyCurrency, *req.Currency); err != nil {
			return domain.Settings{}, err
		}
	}
	if req.TelegramToken != nil {
		if err := s.repo.SetConfig(ctx, domain.ConfigKeyTelegramToken, *req.TelegramToken); err != nil {
			return domain.Settings{}, err
		}
	}
	if req.TelegramChatID != nil {
		if err := s.repo.SetConfig(ctx, domain.ConfigKeyTelegramChatID, *req.TelegramChatID); err != nil {
			return domain.Settings{}, err
		}
	}

	return s.GetSettings(ctx)
}
