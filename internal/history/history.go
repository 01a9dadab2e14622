package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/reconcile"
)

// Transition kinds.
const (
	KindInstall   = "install"
	KindUninstall = "uninstall"
)

// PassRecord is one reconciliation pass.
type PassRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PassID       string    `gorm:"size:36;uniqueIndex;not null" json:"pass_id"`
	Environment  string    `gorm:"size:100" json:"environment"`
	Status       string    `gorm:"size:16;index" json:"status"`
	Error        string    `gorm:"size:2000" json:"error,omitempty"`
	Discovered   int       `json:"discovered"`
	Active       int       `json:"active"`
	Installed    int       `json:"installed"`
	Uninstalled  int       `json:"uninstalled"`
	Instantiated int       `json:"instantiated"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// TableName returns the table name.
func (PassRecord) TableName() string { return "bundlekit_passes" }

// Transition is one staged lifecycle action.
type Transition struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PassID      string    `gorm:"size:36;index;not null" json:"pass_id"`
	Package     string    `gorm:"size:200;index;not null" json:"package"`
	Kind        string    `gorm:"size:16;not null" json:"kind"`
	ActionClass string    `gorm:"size:500" json:"action_class"`
	SourcePath  string    `gorm:"size:2000" json:"source_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name.
func (Transition) TableName() string { return "bundlekit_transitions" }

// Recorder writes passes to the ledger.
type Recorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ reconcile.Observer = (*Recorder)(nil)

// Open opens (or creates) the sqlite ledger at path, creating its parent
// directory.
func Open(path string, log *zap.Logger) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return New(db, log)
}

// New creates a Recorder on db and migrates its tables.
func New(db *gorm.DB, log *zap.Logger) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&PassRecord{}, &Transition{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history tables: %w", err)
	}
	return &Recorder{
		db:     db,
		logger: log.With(zap.String("component", "history")),
	}, nil
}

// PassCompleted records a finished pass. Failures are logged only.
func (r *Recorder) PassCompleted(ctx context.Context, passID string, res *reconcile.Result, passErr error) {
	if err := r.Record(ctx, passID, res, passErr); err != nil {
		r.logger.Warn("failed to record pass", zap.String("pass_id", passID), zap.Error(err))
	}
}

// Record writes the pass and its transitions in one transaction.
func (r *Recorder) Record(ctx context.Context, passID string, res *reconcile.Result, passErr error) error {
	rec := PassRecord{PassID: passID, Status: reconcile.StatusSuccess}
	var transitions []Transition

	if passErr != nil {
		rec.Status = reconcile.StatusFailed
		rec.Error = truncate(passErr.Error(), 2000)
	}
	if res != nil {
		rec.Environment = res.Environment
		rec.Discovered = len(res.Discovered)
		rec.Active = res.Active.Len()
		rec.Installed = len(res.Installed)
		rec.Uninstalled = len(res.Uninstalled)
		rec.Instantiated = res.Instantiated
		rec.DurationMS = res.Duration.Milliseconds()
		transitions = append(transitions, toTransitions(passID, KindInstall, res.Installed)...)
		transitions = append(transitions, toTransitions(passID, KindUninstall, res.Uninstalled)...)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if len(transitions) == 0 {
			return nil
		}
		return tx.Create(&transitions).Error
	})
}

func toTransitions(passID, kind string, actions map[string]manifest.LifecycleAction) []Transition {
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Transition, 0, len(ids))
	for _, id := range ids {
		a := actions[id]
		out = append(out, Transition{
			PassID:      passID,
			Package:     id,
			Kind:        kind,
			ActionClass: a.ClassName,
			SourcePath:  a.SourcePath,
		})
	}
	return out
}

// Recent returns the latest n passes, newest first.
func (r *Recorder) Recent(ctx context.Context, n int) ([]PassRecord, error) {
	var passes []PassRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(n).
		Find(&passes).Error
	return passes, err
}

// Transitions returns the transitions of a pass.
func (r *Recorder) Transitions(ctx context.Context, passID string) ([]Transition, error) {
	var out []Transition
	err := r.db.WithContext(ctx).
		Where("pass_id = ?", passID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// PackageHistory returns every transition of a package, oldest first.
func (r *Recorder) PackageHistory(ctx context.Context, pkg string) ([]Transition, error) {
	var out []Transition
	err := r.db.WithContext(ctx).
		Where("package = ?", pkg).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
