// Package bun is a Postgres-backed checkpoint.Store using uptrace/bun, for
// deployments that pick a database-backed persistence alternative over the
// filesystem layout.
package bun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/uptrace/bun"

	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/model"
)

// Row is the bun model backing both the latest and historical checkpoint
// rows; Kind distinguishes "latest" from a step id.
type Row struct {
	bun.BaseModel `bun:"table:checkpoints,alias:cp"`

	RunID   string `bun:"run_id,pk"`
	Kind    string `bun:"kind,pk"` // "latest" or a step_NNNN id
	AgentID string `bun:"agent_id"`
	Step    int    `bun:"step_number"`
	Data    []byte `bun:"data"` // JSON-encoded Checkpoint
}

// Store is a checkpoint.Store backed by a single "checkpoints" table.
type Store struct {
	db *bun.DB
}

// New constructs a Store over db. Schema migration (CREATE TABLE
// checkpoints ...) is expected to run out of band via a migration script.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func encode(cp checkpoint.Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func decode(data []byte) (checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint.Checkpoint{}, checkpoint.ErrCorrupt
	}
	return cp, nil
}

func (s *Store) upsert(ctx context.Context, cp checkpoint.Checkpoint, kind string) error {
	data, err := encode(cp)
	if err != nil {
		return &checkpoint.StoreError{Op: "marshal", Err: err}
	}
	row := &Row{RunID: cp.RunID, Kind: kind, AgentID: cp.AgentID, Step: cp.StepNumber, Data: data}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (run_id, kind) DO UPDATE").
		Set("agent_id = EXCLUDED.agent_id").
		Set("step_number = EXCLUDED.step_number").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return &checkpoint.StoreError{Op: "upsert-" + kind, Err: err}
	}
	return nil
}

// SaveLatest implements checkpoint.Store. Postgres's row-level UPSERT gives
// the same "atomic overwrite" guarantee the filesystem store gets from
// write-to-temp-then-rename.
func (s *Store) SaveLatest(ctx context.Context, cp checkpoint.Checkpoint) error {
	return s.upsert(ctx, cp, "latest")
}

func (s *Store) load(ctx context.Context, runID, kind string) (checkpoint.Checkpoint, error) {
	row := new(Row)
	err := s.db.NewSelect().
		Model(row).
		Where("run_id = ? AND kind = ?", runID, kind).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StoreError{Op: "load-" + kind, Err: err}
	}
	return decode(row.Data)
}

// LoadLatest implements checkpoint.Store.
func (s *Store) LoadLatest(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	return s.load(ctx, runID, "latest")
}

// SaveHistorical implements checkpoint.Store.
func (s *Store) SaveHistorical(ctx context.Context, cp checkpoint.Checkpoint, stepID string) error {
	if !checkpoint.ValidStepID(stepID) {
		return &checkpoint.StoreError{Op: "save-historical", Err: errors.New("invalid step id " + stepID)}
	}
	return s.upsert(ctx, cp, stepID)
}

// LoadHistorical implements checkpoint.Store.
func (s *Store) LoadHistorical(ctx context.Context, runID, stepID string) (checkpoint.Checkpoint, error) {
	return s.load(ctx, runID, stepID)
}

// ListHistorical implements checkpoint.Store.
func (s *Store) ListHistorical(ctx context.Context, runID string) ([]string, error) {
	var kinds []string
	err := s.db.NewSelect().
		Model((*Row)(nil)).
		Column("kind").
		Where("run_id = ? AND kind != 'latest'", runID).
		Order("kind ASC").
		Scan(ctx, &kinds)
	if err != nil {
		return nil, &checkpoint.StoreError{Op: "list-historical", Err: err}
	}
	return kinds, nil
}

// DeleteLatest implements checkpoint.Store.
func (s *Store) DeleteLatest(ctx context.Context, runID string) error {
	_, err := s.db.NewDelete().
		Model((*Row)(nil)).
		Where("run_id = ? AND kind = 'latest'", runID).
		Exec(ctx)
	if err != nil {
		return &checkpoint.StoreError{Op: "delete-latest", Err: err}
	}
	return nil
}

// AppendToolResults implements checkpoint.Store inside a transaction so the
// load-modify-store cycle is atomic under concurrent writers.
func (s *Store) AppendToolResults(ctx context.Context, runID, agentID string, messages []model.Message) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(Row)
		err := tx.NewSelect().Model(row).Where("run_id = ? AND kind = 'latest'", runID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return checkpoint.ErrNotFound
		}
		if err != nil {
			return &checkpoint.StoreError{Op: "load-for-append", Err: err}
		}
		cp, err := decode(row.Data)
		if err != nil {
			return err
		}
		cp.Messages = append(cp.Messages, messages...)
		data, err := encode(cp)
		if err != nil {
			return &checkpoint.StoreError{Op: "marshal", Err: err}
		}
		_, err = tx.NewUpdate().
			Model((*Row)(nil)).
			Set("data = ?", data).
			Where("run_id = ? AND kind = 'latest'", runID).
			Exec(ctx)
		if err != nil {
			return &checkpoint.StoreError{Op: "append-tool-results", Err: err}
		}
		return nil
	})
}
