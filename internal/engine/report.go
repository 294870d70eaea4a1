package engine

import (
	"github.com/roach88/tileconverge/internal/resource"
)

// Report is the outcome of one convergence pass.
//
// Records are in evaluation order (ascending Seq). A pass aborted by an
// error still returns the records it produced up to the failure.
type Report struct {
	PassID   string
	Records  []resource.ChangeRecord
	Warnings []error

	// Skipped lists notify-only resources that no fired edge reached.
	Skipped []resource.ID

	// Rounds is the number of delayed rounds the pass needed to settle.
	Rounds int
}

// Changed returns the records whose evaluation changed the host.
func (r *Report) Changed() []resource.ChangeRecord {
	var out []resource.ChangeRecord
	for _, rec := range r.Records {
		if rec.Changed {
			out = append(out, rec)
		}
	}
	return out
}

// ChangedCount returns len(r.Changed()) without allocating.
func (r *Report) ChangedCount() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Changed {
			n++
		}
	}
	return n
}

// RecordsFor returns the records of one resource, in evaluation order.
func (r *Report) RecordsFor(id resource.ID) []resource.ChangeRecord {
	var out []resource.ChangeRecord
	for _, rec := range r.Records {
		if rec.Resource == id {
			out = append(out, rec)
		}
	}
	return out
}

// Evaluated reports whether id was evaluated at least once.
func (r *Report) Evaluated(id resource.ID) bool {
	for _, rec := range r.Records {
		if rec.Resource == id {
			return true
		}
	}
	return false
}
