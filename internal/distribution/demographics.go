// Package distribution provides the attribute distributions the executor
// injects into entity generation. Distributions draw from a per-entity
// seeded faker, never a shared stream, so cohort output is reproducible.
package distribution

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/seed"
)

// Source populates an entity's attributes from a seeded distribution.
type Source interface {
	Populate(st *entity.State, sctx seed.Context) error
}

// Demographics samples person-level attributes plus vertical-specific
// fields. Attributes already present are kept: a spawned linked entity
// inherits its source demographics and only gains the fields its own
// vertical adds.
type Demographics struct {
	// Reference is the date ages are computed against.
	Reference time.Time
}

// NewDemographics creates a demographics source anchored at the given
// reference date.
func NewDemographics(reference time.Time) *Demographics {
	return &Demographics{Reference: reference}
}

// Populate fills missing attributes for the entity's vertical.
func (d *Demographics) Populate(st *entity.State, sctx seed.Context) error {
	f := gofakeit.New(sctx.Derive("attrs").Seed())

	d.setIfAbsent(st, "first_name", func() any { return f.FirstName() })
	d.setIfAbsent(st, "last_name", func() any { return f.LastName() })
	d.setIfAbsent(st, "gender", func() any { return f.RandomString([]string{"F", "M"}) })
	d.setIfAbsent(st, "age", func() any { return f.Number(0, 90) })
	if _, ok := st.Attr("birth_date"); !ok {
		// Inherited ages may arrive as other numeric types.
		years := 0
		age, _ := st.Attr("age")
		switch n := age.(type) {
		case int:
			years = n
		case int64:
			years = int(n)
		case float64:
			years = int(n)
		}
		birth := d.Reference.AddDate(-years, 0, -f.Number(0, 364))
		st.Set("birth_date", birth.Format("2006-01-02"))
	}

	switch st.Vertical {
	case entity.VerticalMember:
		d.setIfAbsent(st, "plan_type", func() any { return f.RandomString([]string{"HMO", "PPO", "EPO", "POS"}) })
		d.setIfAbsent(st, "group_id", func() any { return f.Numerify("GRP-######") })
	case entity.VerticalPatient:
		d.setIfAbsent(st, "mrn", func() any { return f.Numerify("MRN########") })
		d.setIfAbsent(st, "smoker", func() any { return f.Number(0, 99) < 14 })
	case entity.VerticalPharmacy:
		d.setIfAbsent(st, "pharmacy_id", func() any { return f.Numerify("PHM-#####") })
		d.setIfAbsent(st, "mail_order", func() any { return f.Number(0, 99) < 25 })
	case entity.VerticalTrial:
		d.setIfAbsent(st, "study_arm", func() any { return f.RandomString([]string{"treatment", "control"}) })
		d.setIfAbsent(st, "site_id", func() any { return f.Numerify("SITE-###") })
	}

	return nil
}

func (d *Demographics) setIfAbsent(st *entity.State, name string, sample func() any) {
	if _, ok := st.Attr(name); !ok {
		st.Set(name, sample())
	}
}
