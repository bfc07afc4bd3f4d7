package journal

import (
	"context"

	"trade_terminal/internal/models"
	"trade_terminal/pkg/db"
	"trade_terminal/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Journal — сессионный журнал: каждое событие в zap-лог и в postgres.
// Append-only, ядро журнал не читает; ошибка записи не валит команду.
type Journal struct {
	txm       db.TxManager
	sessionID string
}

func New(txm db.TxManager) *Journal {
	return &Journal{
		txm:       txm,
		sessionID: uuid.NewString(),
	}
}

func (j *Journal) SessionID() string { return j.sessionID }

func (j *Journal) Append(ctx context.Context, ev models.SessionEvent) {
	payload, err := sonic.Marshal(ev.Payload)
	if err != nil {
		logger.Error("journal: marshal payload: %v", err)
		payload = []byte("{}")
	}

	logger.Info("[EVENT] %s %s", ev.Kind, string(payload))

	if j.txm == nil {
		return
	}
	if err := j.insert(ctx, ev, payload); err != nil {
		// журнал не должен ронять торговую команду
		logger.Error("journal: %v", err)
	}
}

func (j *Journal) insert(ctx context.Context, ev models.SessionEvent, payload []byte) error {
	err := j.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO session_events (session_id, kind, payload, created_at)
			 VALUES ($1, $2, $3, $4)`,
			j.sessionID, string(ev.Kind), payload, ev.Time,
		)
		return err
	})
	return errors.Wrap(err, "insert session event")
}
