// Package sqlstore is the gorm-backed memory.Store for sqlite and postgres.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/memory"
)

// Store implements memory.Store on a SQL database. Every method is one
// independently committed statement or transaction.
type Store struct {
	db *gorm.DB
}

var _ memory.Store = (*Store)(nil)

// Open connects with the named driver (sqlite or postgres) and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dial gorm.Dialector
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." && dir != "" && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dial = sqlite.Open(dsn)
	case "postgres":
		dial = postgres.Open(dsn)
	default:
		return nil, model.Invalidf("unknown store driver %q", driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite allows a single writer.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&threadRow{}, &messageRow{}, &runRow{}, &actionRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, memory.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}

// exists reports whether a row with the given column value exists.
func exists(tx *gorm.DB, row any, column, value string) (bool, error) {
	var n int64
	if err := tx.Model(row).Where(column+" = ?", value).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CreateThread(ctx context.Context, th model.Thread) error {
	row, err := toThreadRow(th)
	if err != nil {
		return fmt.Errorf("encode thread %s: %w", th.ID, err)
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("create thread %s: %w", th.ID, err)
	}
	return nil
}

func (s *Store) GetThread(ctx context.Context, id string) (model.Thread, error) {
	var row threadRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.Thread{}, notFound(err, "thread", id)
	}
	return row.toModel()
}

func (s *Store) AppendMessage(ctx context.Context, m model.Message) error {
	row := toMessageRow(m)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &threadRow{}, "id", m.ThreadID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("thread %s: %w", m.ThreadID, memory.ErrNotFound)
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("append message %s: %w", m.ID, err)
		}
		return nil
	})
}

func (s *Store) GetMessage(ctx context.Context, id string) (model.Message, error) {
	var row messageRow
	if err := s.db.WithContext(ctx).Where("message_id = ?", id).First(&row).Error; err != nil {
		return model.Message{}, notFound(err, "message", id)
	}
	return row.toModel(), nil
}

func (s *Store) ListMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	db := s.db.WithContext(ctx)
	ok, err := exists(db, &threadRow{}, "id", threadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, memory.ErrNotFound)
	}
	var rows []messageRow
	if err := db.Where("thread_id = ?", threadID).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) FinalizeMessage(ctx context.Context, id, content string) (model.Message, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&messageRow{}).Where("message_id = ?", id).Updates(map[string]any{
		"content":       content,
		"is_last_chunk": true,
		"completed_at":  now,
	})
	if res.Error != nil {
		return model.Message{}, fmt.Errorf("finalize message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Message{}, fmt.Errorf("message %s: %w", id, memory.ErrNotFound)
	}
	return s.GetMessage(ctx, id)
}

func (s *Store) CreateRun(ctx context.Context, r model.Run) error {
	row, err := toRunRow(r)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.ID, err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &threadRow{}, "id", r.ThreadID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("thread %s: %w", r.ThreadID, memory.ErrNotFound)
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("create run %s: %w", r.ID, err)
		}
		return nil
	})
}

func (s *Store) GetRun(ctx context.Context, id string) (model.Run, error) {
	var row runRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.Run{}, notFound(err, "run", id)
	}
	return row.toModel()
}

// UpdateRun is a conditional UPDATE on (id, status); zero affected rows means
// another writer changed the status first.
func (s *Store) UpdateRun(ctx context.Context, id string, from model.RunStatus, mutate func(*model.Run)) (model.Run, error) {
	cur, err := s.GetRun(ctx, id)
	if err != nil {
		return model.Run{}, err
	}
	if cur.Status != from {
		return cur, fmt.Errorf("run %s is %s, not %s: %w", id, cur.Status, from, memory.ErrStatusConflict)
	}
	next := cur
	mutate(&next)
	row, err := toRunRow(next)
	if err != nil {
		return model.Run{}, fmt.Errorf("encode run %s: %w", id, err)
	}
	res := s.db.WithContext(ctx).Model(&runRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(row.columns())
	if res.Error != nil {
		return model.Run{}, fmt.Errorf("update run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		latest, err := s.GetRun(ctx, id)
		if err != nil {
			return model.Run{}, err
		}
		return latest, fmt.Errorf("run %s is %s, not %s: %w", id, latest.Status, from, memory.ErrStatusConflict)
	}
	return next, nil
}

func (s *Store) CreateAction(ctx context.Context, a model.Action) error {
	row, err := toActionRow(a)
	if err != nil {
		return fmt.Errorf("encode action %s: %w", a.ID, err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &runRow{}, "id", a.RunID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run %s: %w", a.RunID, memory.ErrNotFound)
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("create action %s: %w", a.ID, err)
		}
		return nil
	})
}

func (s *Store) GetAction(ctx context.Context, id string) (model.Action, error) {
	var row actionRow
	if err := s.db.WithContext(ctx).Where("action_id = ?", id).First(&row).Error; err != nil {
		return model.Action{}, notFound(err, "action", id)
	}
	return row.toModel()
}

func (s *Store) ListActions(ctx context.Context, runID string) ([]model.Action, error) {
	var rows []actionRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]model.Action, 0, len(rows))
	for _, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) PendingAction(ctx context.Context, runID string) (model.Action, error) {
	var row actionRow
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND status = ?", runID, string(model.ActionPending)).
		Order("seq").First(&row).Error
	if err != nil {
		return model.Action{}, notFound(err, "pending action for run", runID)
	}
	return row.toModel()
}

var resolvedActionStatuses = []string{
	string(model.ActionCompleted),
	string(model.ActionFailed),
	string(model.ActionExpired),
	string(model.ActionCancelled),
}

func (s *Store) UnresolvedAction(ctx context.Context, runID string) (model.Action, error) {
	var row actionRow
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND status NOT IN ?", runID, resolvedActionStatuses).
		Order("seq").First(&row).Error
	if err != nil {
		return model.Action{}, notFound(err, "unresolved action for run", runID)
	}
	return row.toModel()
}

func (s *Store) UpdateAction(ctx context.Context, id string, from model.ActionStatus, mutate func(*model.Action)) (model.Action, error) {
	cur, err := s.GetAction(ctx, id)
	if err != nil {
		return model.Action{}, err
	}
	if cur.Status != from {
		return cur, fmt.Errorf("action %s is %s, not %s: %w", id, cur.Status, from, memory.ErrStatusConflict)
	}
	next := cur
	mutate(&next)
	row, err := toActionRow(next)
	if err != nil {
		return model.Action{}, fmt.Errorf("encode action %s: %w", id, err)
	}
	res := s.db.WithContext(ctx).Model(&actionRow{}).
		Where("action_id = ? AND status = ?", id, string(from)).
		Updates(row.columns())
	if res.Error != nil {
		return model.Action{}, fmt.Errorf("update action %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		latest, err := s.GetAction(ctx, id)
		if err != nil {
			return model.Action{}, err
		}
		return latest, fmt.Errorf("action %s is %s, not %s: %w", id, latest.Status, from, memory.ErrStatusConflict)
	}
	return next, nil
}
