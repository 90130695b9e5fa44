package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock move reason codes. The stock_moves table is the append-only audit
// trail: current stock for a product must always equal the sum of its deltas.
const (
	MoveReasonPurchase = "purchase"
	MoveReasonSale     = "sale"
	MoveReasonAdjust   = "adjust"
)

// Config keys persisted in the key/value store.
const (
	ConfigKeyCurrency       = "currency"
	ConfigKeyTelegramToken  = "telegram_token"
	ConfigKeyTelegramChatID = "telegram_chat_id"
	ConfigKeyScheduleHour   = "schedule_hour"
	ConfigKeyScheduleMinute = "schedule_minute"
	ConfigKeyScheduleTZ     = "schedule_tz"
)

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku,omitempty"`
	Price    decimal.Decimal `json:"price"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
	Stock    int             `json:"stock"`
	Category string          `json:"category,omitempty"`
	Image    string          `json:"image,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

type ProductCreateRequest struct {
	Name     string          `json:"name" validate:"required"`
	SKU      string          `json:"sku,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category,omitempty"`
	Image    string          `json:"image,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	SKU      *string          `json:"sku,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Category *string          `json:"category,omitempty"`
	Image    *string          `json:"image,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}

// StockMove is immutable once written. UnitCost is set for purchase moves
// (the acquisition cost) and for sale moves (the cost frozen into the sale
// line); adjustments carry no cost.
type StockMove struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	Delta     int              `json:"delta"`
	Reason    string           `json:"reason"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Comment   string           `json:"comment,omitempty"`
}

type ReceiveStockRequest struct {
	Qty      int             `json:"qty" validate:"gt=0"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Comment  string          `json:"comment,omitempty"`
}

type AdjustStockRequest struct {
	Delta   int    `json:"delta" validate:"ne=0"`
	Comment string `json:"comment,omitempty"`
}

type CartLine struct {
	ProductID string          `json:"product_id" validate:"required"`
	Qty       int             `json:"qty" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
}

type SaleRequest struct {
	Cart         []CartLine      `json:"cart" validate:"min=1,dive"`
	CashReceived decimal.Decimal `json:"cash_received"`
}

type Sale struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	CashReceived decimal.Decimal `json:"cash_received"`
	Change       decimal.Decimal `json:"change"`
	Items        []SaleItem      `json:"items,omitempty"`
}

// SaleItem freezes price and cost at the moment of sale; later changes to
// the product's live price or average cost never touch it.
type SaleItem struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
}

type SaleResponse struct {
	SaleID   string          `json:"sale_id"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Change   decimal.Decimal `json:"change"`
}

type DailyReport struct {
	Date    string          `json:"date"`
	Checks  int64           `json:"checks"`
	Revenue decimal.Decimal `json:"revenue"`
	Profit  decimal.Decimal `json:"profit"`
}

// StockReconciliation compares a product's stored stock counter against the
// sum of its ledger deltas.
type StockReconciliation struct {
	ProductID  string `json:"product_id"`
	Stock      int    `json:"stock"`
	LedgerSum  int    `json:"ledger_sum"`
	Consistent bool   `json:"consistent"`
}

type ScheduleRequest struct {
	Hour     int    `json:"hour" validate:"gte=0,lte=23"`
	Minute   int    `json:"minute" validate:"gte=0,lte=59"`
	Timezone string `json:"timezone" validate:"required"`
}

type Schedule struct {
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Timezone string `json:"timezone"`
	Armed    bool   `json:"armed"`
}

type SettingsRequest struct {
	Currency       *string `json:"currency,omitempty"`
	TelegramToken  *string `json:"telegram_token,omitempty"`
	TelegramChatID *string `json:"telegram_chat_id,omitempty"`
}

type Settings struct {
	Currency           string `json:"currency"`
	TelegramConfigured bool   `json:"telegram_configured"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
}
