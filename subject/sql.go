package subject

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/syntax"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database row for one subject.
type Subject struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Email     string `gorm:"uniqueIndex;not null"`
	DID       string `gorm:"column:did;index;not null"`
	Name      string
}

// Subject directory in a SQL database (sqlite or postgres, via gorm).
type SQLOracle struct {
	db *gorm.DB
}

var _ Oracle = (*SQLOracle)(nil)
var _ Profiler = (*SQLOracle)(nil)

// Wraps an open database, creating the subjects table if needed.
func NewSQLOracle(db *gorm.DB) (*SQLOracle, error) {
	if err := db.AutoMigrate(&Subject{}); err != nil {
		return nil, fmt.Errorf("migrating subject table: %w", err)
	}
	return &SQLOracle{db: db}, nil
}

func (o *SQLOracle) Resolve(ctx context.Context, hint string) (syntax.DID, error) {
	var row Subject
	err := o.db.WithContext(ctx).Where("email = ?", hint).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			subjectLookups.WithLabelValues("sql", metrics.StatusNotFound).Inc()
			return "", ErrNotFound
		}
		subjectLookups.WithLabelValues("sql", "unavailable").Inc()
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	did, err := syntax.ParseDID(row.DID)
	if err != nil {
		// a row without a usable DID is as good as no row
		subjectLookups.WithLabelValues("sql", metrics.StatusNotFound).Inc()
		return "", fmt.Errorf("%w: stored DID for %s: %w", ErrNotFound, hint, err)
	}
	subjectLookups.WithLabelValues("sql", metrics.StatusOK).Inc()
	return did, nil
}

func (o *SQLOracle) Profile(ctx context.Context, did syntax.DID) (*Profile, error) {
	var row Subject
	err := o.db.WithContext(ctx).Where("did = ?", did.String()).Order("id").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Profile{Email: row.Email, Name: row.Name}, nil
}

// Inserts or updates the subject for an e-mail address.
func (o *SQLOracle) Upsert(ctx context.Context, e Entry) error {
	email, err := NormalizeHint(e.Email)
	if err != nil {
		return err
	}
	if _, err := syntax.ParseDID(e.DID.String()); err != nil {
		return err
	}
	row := Subject{Email: email, DID: e.DID.String(), Name: e.Name}
	return o.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"did", "name", "updated_at"}),
	}).Create(&row).Error
}
