package extract

import "github.com/Veraticus/spice-harvest/internal/model"

type dedupeKey struct {
	date, description, amount string
}

// Dedupe drops candidates repeated by overlapping strategies.
// Candidates sharing the exact (date, description, amount) strings collapse to the one
// with the lowest ordinal; survivors keep their input order, so Dedupe(Dedupe(x)) equals
// Dedupe(x).
func Dedupe(candidates []model.Candidate) []model.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	winner := make(map[dedupeKey]int, len(candidates))
	for i, c := range candidates {
		key := dedupeKey{c.Date, c.Description, c.Amount}
		if j, seen := winner[key]; !seen || c.Ordinal < candidates[j].Ordinal {
			winner[key] = i
		}
	}

	out := make([]model.Candidate, 0, len(winner))
	for i, c := range candidates {
		if winner[dedupeKey{c.Date, c.Description, c.Amount}] == i {
			out = append(out, c)
		}
	}
	return out
}
