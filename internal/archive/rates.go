package archive

// RateTable converts a retrieval's total byte count into a credit cost.
// Pluggable so pricing is not tied to any one storage vendor's tier names.
type RateTable interface {
	Credits(totalBytes int64) int64
}

// UnitRate charges CreditsPerUnit for every started UnitBytes.
// The defaults are 1 credit per 100MB.
type UnitRate struct {
	UnitBytes      int64
	CreditsPerUnit int64
}

// DefaultRate is 1 credit per 100MB.
func DefaultRate() UnitRate {
	return UnitRate{UnitBytes: 100 * 1000 * 1000, CreditsPerUnit: 1}
}

func (r UnitRate) Credits(totalBytes int64) int64 {
	unit := r.UnitBytes
	if unit <= 0 {
		unit = DefaultRate().UnitBytes
	}
	perUnit := r.CreditsPerUnit
	if perUnit <= 0 {
		perUnit = 1
	}
	units := (totalBytes + unit - 1) / unit // round up: a started unit is charged
	return units * perUnit
}
