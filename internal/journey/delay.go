package journey

import (
	"fmt"
	"time"

	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/seed"
)

// DelayResolver resolves a declared timing rule into a concrete offset.
//
// Random delays draw from the supplied seed context's dedicated stream,
// never a shared generator, so identical seeds reproduce identical offsets
// regardless of resolution order.
type DelayResolver struct {
	// AllowPreAnchor permits negative resolved offsets for delay specs that
	// themselves set AllowNegative. When either side does not opt in,
	// negative offsets are clamped to zero.
	AllowPreAnchor bool
}

// Resolve returns the offset from the anchor for the given delay spec.
func (r *DelayResolver) Resolve(ds *DelaySpec, st *entity.State, sctx seed.Context) (time.Duration, error) {
	unit, err := ds.unitDuration()
	if err != nil {
		return 0, err
	}

	var amount float64
	switch ds.Kind {
	case DelayFixed:
		amount = ds.Value

	case DelayUniform:
		if ds.Max < ds.Min {
			return 0, fmt.Errorf("uniform delay: max %v is below min %v", ds.Max, ds.Min)
		}
		rng := sctx.Rand()
		amount = ds.Min + rng.Float64()*(ds.Max-ds.Min)

	case DelayNormal:
		rng := sctx.Rand()
		amount = rng.NormFloat64()*ds.StdDev + ds.Mean

	case DelayTable:
		row, err := r.selectRow(ds, st)
		if err != nil {
			return 0, err
		}
		return r.Resolve(&row.Delay, st, sctx.Derive("table"))

	default:
		return 0, fmt.Errorf("unknown delay kind %q", ds.Kind)
	}

	offset := time.Duration(amount * float64(unit))
	if offset < 0 && !(ds.AllowNegative && r.AllowPreAnchor) {
		offset = 0
	}
	return offset, nil
}

// selectRow picks the first table row whose condition holds for the entity.
// A row without a condition acts as the default.
func (r *DelayResolver) selectRow(ds *DelaySpec, st *entity.State) (*DelayTableRow, error) {
	for i := range ds.Table {
		row := &ds.Table[i]
		if row.When == nil {
			return row, nil
		}
		ok, err := row.When.Evaluate(st, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			return row, nil
		}
	}
	return nil, fmt.Errorf("conditional delay table has no matching row and no default")
}
