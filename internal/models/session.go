package models

import "time"

// SessionParameters — параметры сессии. Меняются только через команды
// контроллера (single-writer), между командами read-only.
type SessionParameters struct {
	AccountID    string
	Instrument   Instrument
	RiskPct      float64
	StopLossPips float64
}

// EventKind — виды событий сессионного журнала.
type EventKind string

const (
	EventSessionStart  EventKind = "session_start"
	EventSessionEnd    EventKind = "session_end"
	EventEntryPlaced   EventKind = "entry_placed"
	EventOrderFilled   EventKind = "order_filled"
	EventOrderCancel   EventKind = "order_cancelled"
	EventStopAdjusted  EventKind = "stop_adjusted"
	EventReconciled    EventKind = "order_reconciled"
	EventOrderRejected EventKind = "order_rejected"
	EventFeedDegraded  EventKind = "feed_degraded"
	EventFeedRestored  EventKind = "feed_restored"
	EventError         EventKind = "error"
)

// SessionEvent — запись журнала: только добавление, ядро журнал не читает.
type SessionEvent struct {
	Kind    EventKind
	Time    time.Time
	Payload map[string]any
}

func NewEvent(kind EventKind, payload map[string]any) SessionEvent {
	return SessionEvent{Kind: kind, Time: time.Now(), Payload: payload}
}
