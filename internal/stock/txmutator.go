package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

// TxMutator applies stock movements on a caller-supplied transaction so
// they commit or roll back with the order change that caused them.
type TxMutator struct{}

// NewTxMutator exposes the default transactional stock mutator.
func NewTxMutator() TxMutator {
	return TxMutator{}
}

// Release returns reserved quantities to availability on the given tx.
func (TxMutator) Release(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodePersistence, "transaction required for stock release")
	}
	merged, err := normalizeLines(storeID, lines)
	if err != nil {
		return err
	}
	repo := NewRepository(tx)
	var errs error
	for _, line := range merged {
		ok, err := repo.ReleaseQty(ctx, storeID, line.ProductID, line.VariantID, line.Qty)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("release guard failed for product %s qty %d", line.ProductID, line.Qty))
		}
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, errs, "release stock")
	}
	return nil
}

// Commit burns reserved quantities on the given tx.
func (TxMutator) Commit(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodePersistence, "transaction required for stock commit")
	}
	merged, err := normalizeLines(storeID, lines)
	if err != nil {
		return err
	}
	repo := NewRepository(tx)
	var errs error
	for _, line := range merged {
		ok, err := repo.CommitQty(ctx, storeID, line.ProductID, line.VariantID, line.Qty)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("commit guard failed for product %s qty %d", line.ProductID, line.Qty))
		}
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, errs, "commit stock")
	}
	return nil
}
