package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows batch listings for operator screens.
type ListFilter struct {
	Variety string
	State   LifecycleState
	Limit   int
}

// Repository persists batches, their grade allocations, and disposal
// entries. The db handle is passed per call so services can run
// several writes inside one transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, batch *Batch) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Batch, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Batch, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Batch, error)

	// UpdateGuarded writes the batch only if the stored version still
	// equals expectedVersion, bumping the version on success. Returns
	// ErrStateConflict otherwise.
	UpdateGuarded(ctx context.Context, db *gorm.DB, batch *Batch, expectedVersion int64) error

	InsertAllocations(ctx context.Context, db *gorm.DB, allocations []GradeAllocation) error
	// UpdateAllocationGuarded is the allocation counterpart of
	// UpdateGuarded.
	UpdateAllocationGuarded(ctx context.Context, db *gorm.DB, allocation *GradeAllocation, expectedVersion int64) error

	InsertDisposalEntries(ctx context.Context, db *gorm.DB, entries []DisposalEntry) error
	ListDisposalEntries(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]DisposalEntry, error)

	// ListEligible returns ready-for-packaging batches of the variety
	// whose allocation for the grade is pending with positive mass,
	// oldest first.
	ListEligible(ctx context.Context, db *gorm.DB, variety string, grade Grade) ([]Batch, error)
}
