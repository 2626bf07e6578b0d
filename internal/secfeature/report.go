package secfeature

// Reason enumerates why a single feature check failed. The orchestrator's
// error report names the exact broken guarantee rather than an aggregate.
type Reason string

const (
	ReasonOK            Reason = ""
	ReasonMissing       Reason = "marker_missing"
	ReasonMismatch      Reason = "payload_mismatch"
	ReasonOutOfOrder    Reason = "marker_out_of_order"
	ReasonMalformed     Reason = "payload_malformed"
	ReasonUnknownMarker Reason = "unknown_marker"
)

// Check is the result for one feature.
type Check struct {
	Passed bool   `json:"passed"`
	Reason Reason `json:"reason,omitempty"`
}

// Report maps every catalogue feature to pass/fail plus an aggregate.
// Computed at issuance and independently re-derived at re-verification.
type Report struct {
	Features   map[Feature]Check `json:"features"`
	Unknown    []string          `json:"unknown,omitempty"` // blocks present in the document but not in the catalogue
	AllPresent bool              `json:"all_present"`
}

// Failing returns the features that did not pass, in catalogue order.
func (r *Report) Failing() []Feature {
	var failing []Feature
	for _, f := range Catalogue() {
		if check, ok := r.Features[f]; !ok || !check.Passed {
			failing = append(failing, f)
		}
	}
	return failing
}

func newReport() *Report {
	return &Report{Features: make(map[Feature]Check, len(Catalogue()))}
}

// finalize computes the aggregate flag: every catalogue feature passed and no
// unknown blocks were found.
func (r *Report) finalize() {
	r.AllPresent = len(r.Unknown) == 0
	for _, f := range Catalogue() {
		check, ok := r.Features[f]
		if !ok || !check.Passed {
			r.AllPresent = false
		}
	}
}
