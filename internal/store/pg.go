package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	perrors "github.com/pkg/errors"

	"zone_bot/internal/models"
	"zone_bot/pkg/db"
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS instrument_state (
	symbol     TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	upsertSQL = `INSERT INTO instrument_state (symbol, payload, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (symbol) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	getSQL = `SELECT payload FROM instrument_state WHERE symbol = $1`
	allSQL = `SELECT payload FROM instrument_state ORDER BY symbol`
)

// Postgres — состояние инструментов в одной jsonb-колонке на символ.
type Postgres struct {
	tx db.TxManager
}

func NewPostgres(tx db.TxManager) *Postgres {
	return &Postgres{tx: tx}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.tx.Conn().Exec(ctx, schemaSQL)
	return perrors.Wrap(err, "instrument_state schema")
}

func (p *Postgres) Save(ctx context.Context, st *models.InstrumentState) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Postgres.Save %s: %w", st.Symbol, err)
		}
	}()

	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	data, err := Encode(st)
	if err != nil {
		return err
	}
	return p.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, upsertSQL, st.Symbol, data, st.UpdatedAt)
		return err
	})
}

func (p *Postgres) Get(ctx context.Context, symbol string) (_ *models.InstrumentState, _ bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Postgres.Get %s: %w", symbol, err)
		}
	}()

	var data []byte
	if err := p.tx.Conn().QueryRow(ctx, getSQL, symbol).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	st, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}

func (p *Postgres) All(ctx context.Context) (_ []*models.InstrumentState, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Postgres.All: %w", err)
		}
	}()

	rows, err := p.tx.Conn().Query(ctx, allSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.InstrumentState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		st, err := Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func Encode(st *models.InstrumentState) ([]byte, error) {
	data, err := sonic.Marshal(st)
	return data, perrors.Wrap(err, "encode state")
}

func Decode(data []byte) (*models.InstrumentState, error) {
	var st models.InstrumentState
	if err := sonic.Unmarshal(data, &st); err != nil {
		return nil, perrors.Wrap(err, "decode state")
	}
	if len(st.Timestamps) != len(st.Prices) {
		return nil, fmt.Errorf("decode state %s: %d prices vs %d timestamps", st.Symbol, len(st.Prices), len(st.Timestamps))
	}
	return &st, nil
}
