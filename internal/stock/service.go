package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
)

// Line identifies one product/variant quantity in a stock operation.
type Line struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Qty       int
}

// Shortfall reports why a reservation could not be honored.
type Shortfall struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
}

// Ledger defines the stock mutations the order lifecycle depends on.
// Reserve is all-or-nothing: a partial reservation is rolled back before
// the insufficient stock error is returned.
type Ledger interface {
	Reserve(ctx context.Context, storeID uuid.UUID, lines []Line) error
	Release(ctx context.Context, storeID uuid.UUID, lines []Line) error
	Commit(ctx context.Context, storeID uuid.UUID, lines []Line) error
	Availability(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) ([]models.StockItem, error)
	Restock(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, delta int) error
}

type ledger struct {
	repo Repository
	logg *logger.Logger
}

// NewLedger wires a stock ledger with the provided repository.
func NewLedger(repo Repository, logg *logger.Logger) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ledger{repo: repo, logg: logg}, nil
}

func (l *ledger) Reserve(ctx context.Context, storeID uuid.UUID, lines []Line) error {
	merged, err := normalizeLines(storeID, lines)
	if err != nil {
		return err
	}

	reserved := make([]Line, 0, len(merged))
	for _, line := range merged {
		ok, err := l.repo.ReserveQty(ctx, storeID, line.ProductID, line.VariantID, line.Qty)
		if err != nil {
			l.rollbackReserved(ctx, storeID, reserved)
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reserve stock")
		}
		if !ok {
			shortfalls := l.collectShortfalls(ctx, storeID, merged, line)
			l.rollbackReserved(ctx, storeID, reserved)
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{"items": shortfalls})
		}
		reserved = append(reserved, line)
	}
	return nil
}

func (l *ledger) Release(ctx context.Context, storeID uuid.UUID, lines []Line) error {
	merged, err := normalizeLines(storeID, lines)
	if err != nil {
		return err
	}

	var errs error
	for _, line := range merged {
		ok, err := l.repo.ReleaseQty(ctx, storeID, line.ProductID, line.VariantID, line.Qty)
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

func (l *ledger) Commit(ctx context.Context, storeID uuid.UUID, lines []Line) error {
	merged, err := normalizeLines(storeID, lines)
	if err != nil {
		return err
	}

	var errs error
	for _, line := range merged {
		ok, err := l.repo.CommitQty(ctx, storeID, line.ProductID, line.VariantID, line.Qty)
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

func (l *ledger) Availability(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) ([]models.StockItem, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	items, err := l.repo.ListByStore(ctx, storeID, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list stock")
	}
	return items, nil
}

func (l *ledger) Restock(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, delta int) error {
	if storeID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id and product id are required")
	}
	if delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "restock delta cannot be zero")
	}
	ok, err := l.repo.AdjustOnHand(ctx, storeID, productID, variantID, delta)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "adjust stock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would drop on-hand below reserved")
	}
	return nil
}

// rollbackReserved undoes a partial reservation. Failures here only get
// logged: the caller is already on an error path and the guarded release
// cannot corrupt counts.
func (l *ledger) rollbackReserved(ctx context.Context, storeID uuid.UUID, reserved []Line) {
	var errs error
	for _, line := range reserved {
		ok, err := l.repo.ReleaseQty(ctx, storeID, line.ProductID, line.VariantID, line.Qty)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("rollback guard failed for product %s", line.ProductID))
		}
	}
	if errs != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{"store_id": storeID.String()})
		l.logg.Error(logCtx, "rolling back partial reservation", errs)
	}
}

// collectShortfalls reads current availability for every requested line so
// the caller sees the full picture, not just the first line that failed.
func (l *ledger) collectShortfalls(ctx context.Context, storeID uuid.UUID, merged []Line, failed Line) []Shortfall {
	shortfalls := []Shortfall{}
	for _, line := range merged {
		item, err := l.repo.Find(ctx, storeID, line.ProductID, line.VariantID)
		if err != nil {
			if line.ProductID == failed.ProductID {
				shortfalls = append(shortfalls, Shortfall{
					ProductID: line.ProductID,
					VariantID: line.VariantID,
					Requested: line.Qty,
					Available: 0,
				})
			}
			continue
		}
		if item.AvailableQty() < line.Qty {
			shortfalls = append(shortfalls, Shortfall{
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Requested: line.Qty,
				Available: item.AvailableQty(),
			})
		}
	}
	return shortfalls
}

// normalizeLines validates input and merges duplicate product/variant
// pairs into a single quantity.
func normalizeLines(storeID uuid.UUID, lines []Line) ([]Line, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one stock line is required")
	}

	type key struct {
		product uuid.UUID
		variant uuid.UUID
		hasVar  bool
	}
	index := map[key]int{}
	merged := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		k := key{product: line.ProductID}
		if line.VariantID != nil {
			k.variant = *line.VariantID
			k.hasVar = true
		}
		if pos, ok := index[k]; ok {
			merged[pos].Qty += line.Qty
			continue
		}
		index[k] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}
