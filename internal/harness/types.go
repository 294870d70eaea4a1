package harness

// TraceEvent is one change record of a pass, with every path under the
// scenario root rewritten to RootPlaceholder.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
	Changed   bool   `json:"changed"`
	Triggered bool   `json:"triggered,omitempty"`
	Source    string `json:"source,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PassTrace is everything one pass did: the capability calls it made, in
// order, and the change records the executor produced.
type PassTrace struct {
	PassID   string       `json:"pass_id"`
	Calls    []string     `json:"calls,omitempty"`
	Records  []TraceEvent `json:"records"`
	Skipped  []string     `json:"skipped,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Error    string       `json:"error,omitempty"`

	changed int
}

// Changed returns the number of records that changed the host.
func (p PassTrace) Changed() int {
	return p.changed
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Passes holds one trace per executed pass, in order.
	Passes []PassTrace `json:"passes"`

	// Errors holds the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Passes: []PassTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddPass appends the trace of one pass.
func (r *Result) AddPass(p PassTrace) {
	r.Passes = append(r.Passes, p)
}

// Calls returns the calls of every pass, concatenated in order.
func (r *Result) Calls() []string {
	var out []string
	for _, p := range r.Passes {
		out = append(out, p.Calls...)
	}
	return out
}
