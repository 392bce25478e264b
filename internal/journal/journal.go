package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xueqianLu/payfi/internal/action"
)

var (
	// ErrPathRequired is returned when the journal path is missing.
	ErrPathRequired = errors.New("journal path must be configured")
	// ErrNotFound is returned when no run matches.
	ErrNotFound = errors.New("run not found")
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

// RunRecord is the persisted form of an action.Run.
type RunRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	Action       string `gorm:"index;size:16"`
	Phase        string `gorm:"index;size:16"`
	Status       string
	OrderID      string `gorm:"index;size:64"`
	TxHash       string `gorm:"size:66"`
	ErrorMessage string
	ErrorKind    string `gorm:"size:32"`
	Caveat       string
	Snapshot     []byte
	StartedAt    time.Time
	UpdatedAt    time.Time `gorm:"index;autoUpdateTime:false"`
}

// TableName keeps the table name stable across struct renames.
func (RunRecord) TableName() string { return "action_runs" }

// Journal persists every run snapshot. It is an action.Observer.
type Journal struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the sqlite journal at path.
func Open(path string, log zerolog.Logger) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrPathRequired
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, log: log}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database handle.
func (j *Journal) Ping(ctx context.Context) error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// OnTransition implements action.Observer.
func (j *Journal) OnTransition(_, next action.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Save(ctx, next); err != nil {
		j.log.Error().Err(err).Str("run_id", next.ID).Msg("failed to journal run")
	}
}

// Save upserts run.
func (j *Journal) Save(ctx context.Context, run action.Run) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	rec := RunRecord{
		ID:           run.ID,
		Action:       string(run.Action),
		Phase:        string(run.Phase),
		Status:       run.Status,
		OrderID:      run.OrderID,
		ErrorMessage: run.ErrorMessage,
		ErrorKind:    string(run.ErrorKind),
		Caveat:       run.Caveat,
		Snapshot:     snapshot,
		StartedAt:    run.StartedAt,
		UpdatedAt:    run.UpdatedAt,
	}
	if run.TxHash != nil {
		rec.TxHash = run.TxHash.Hex()
	}
	err = j.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Get returns the last journaled snapshot of a run.
func (j *Journal) Get(ctx context.Context, id string) (action.Run, error) {
	var rec RunRecord
	err := j.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return action.Run{}, ErrNotFound
	}
	if err != nil {
		return action.Run{}, fmt.Errorf("query run: %w", err)
	}
	return decode(rec)
}

// List returns the most recently updated runs, optionally of one action only.
func (j *Journal) List(ctx context.Context, kind action.Kind, limit int) ([]action.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := j.db.WithContext(ctx).Order("updated_at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("action = ?", string(kind))
	}
	var recs []RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]action.Run, 0, len(recs))
	for _, rec := range recs {
		run, err := decode(rec)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// LatestOpenWithdraw returns the newest withdrawal order whose claim failed and
// was never completed by a later run, so it can be resumed.
func (j *Journal) LatestOpenWithdraw(ctx context.Context) (int64, action.Run, error) {
	withdraw := string(action.KindWithdraw)
	claimed := j.db.Model(&RunRecord{}).Select("order_id").
		Where("action = ? AND phase = ?", withdraw, string(action.PhaseSuccess))

	var rec RunRecord
	err := j.db.WithContext(ctx).
		Where("action = ? AND phase = ? AND order_id <> ''", withdraw, string(action.PhaseError)).
		Where("order_id NOT IN (?)", claimed).
		Order("updated_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, action.Run{}, ErrNotFound
	}
	if err != nil {
		return 0, action.Run{}, fmt.Errorf("query open withdrawal: %w", err)
	}
	orderID, err := strconv.ParseInt(rec.OrderID, 10, 64)
	if err != nil {
		return 0, action.Run{}, fmt.Errorf("journaled order id %q: %w", rec.OrderID, err)
	}
	run, err := decode(rec)
	return orderID, run, err
}

func decode(rec RunRecord) (action.Run, error) {
	var run action.Run
	if err := json.Unmarshal(rec.Snapshot, &run); err != nil {
		return action.Run{}, fmt.Errorf("decode run %s: %w", rec.ID, err)
	}
	return run, nil
}
