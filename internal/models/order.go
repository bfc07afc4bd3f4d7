package models

import "time"

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

type EntryType string

const (
	EntryLimit  EntryType = "limit"
	EntryMarket EntryType = "market"
)

// OrderStatus — статус единственного активного ордера сессии.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusNone      OrderStatus = "NONE"
)

// OrderIntent — намерение на вход, собирается из SessionParameters +
// текущего тика через сайзер. Живёт до ответа шлюза.
type OrderIntent struct {
	ClientID   string // uuid для идемпотентности на стороне брокера
	Symbol     string
	Type       EntryType
	Direction  Direction
	Units      int
	Price      float64 // только для limit
	StopLoss   float64
	TakeProfit float64
}

// ActiveOrder — единственный живой ордер/позиция сессии.
// Инвариант: не более одного на сессию.
type ActiveOrder struct {
	OrderID    string
	ClientID   string
	Symbol     string
	Type       EntryType
	Direction  Direction
	Units      int
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Status     OrderStatus
	Filled     bool
	PlacedAt   time.Time
}

// SubmitResult — ответ шлюза на размещение.
// Маркет исполняется сразу, лимит остаётся висеть.
type SubmitResult struct {
	OrderID   string
	Filled    bool
	FillPrice float64
}

// CancelResult — ответ шлюза на отмену. Если ордер успел исполниться
// до обработки отмены, брокер сообщает об этом здесь — гонку решает он.
type CancelResult struct {
	Cancelled     bool
	AlreadyFilled bool
	FillPrice     float64
}

// OrderDetails — состояние ордера на стороне брокера (поллинг лимиток).
type OrderDetails struct {
	OrderID   string
	State     OrderStatus
	FillPrice float64
}
