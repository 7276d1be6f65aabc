package stats

// Direction states which way a metric improves.
type Direction int

// Directions used by the record rule.
const (
	HigherIsBetter Direction = iota
	LowerIsBetter
)

func (d Direction) String() string {
	if d == LowerIsBetter {
		return "lower_is_better"
	}
	return "higher_is_better"
}

// IsRecord applies the record rule. A missing previous value is always a
// record. Ties count as records only for lower-is-better metrics.
func IsRecord(dir Direction, previous *float64, observed float64) bool {
	if previous == nil {
		return true
	}
	if dir == LowerIsBetter {
		return observed <= *previous
	}
	return observed > *previous
}

// Gap is how far observed trails the standing record. It is zero when
// observed is a record.
func Gap(dir Direction, previous *float64, observed float64) float64 {
	if IsRecord(dir, previous, observed) {
		return 0
	}
	if dir == LowerIsBetter {
		return observed - *previous
	}
	return *previous - observed
}
