package processor

import (
	"math"

	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Change detection against the last cached snapshot. A change is significant
// when any tracked field's absolute percent delta meets the configured
// threshold; the volume threshold is doubled since volume is noisier.
// -----------------------------------------------------------------------------

type trackedField struct {
	name      string
	oldValue  float64
	newValue  float64
	threshold float64
}

func detectChanges(fields []trackedField) []models.MFieldChange {
	var changes []models.MFieldChange

	for _, f := range fields {
		if f.oldValue == 0 {
			continue
		}
		delta := (f.newValue - f.oldValue) / f.oldValue * 100

		changes = append(changes, models.MFieldChange{
			Field:        f.name,
			OldValue:     f.oldValue,
			NewValue:     f.newValue,
			PercentDelta: delta,
			Significant:  math.Abs(delta) >= f.threshold,
		})
	}
	return changes
}

func anySignificant(changes []models.MFieldChange) bool {
	for _, c := range changes {
		if c.Significant {
			return true
		}
	}
	return false
}
