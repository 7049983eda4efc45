package pulse

type (
	// Metrics are per-source counters for a single run. They are never persisted.
	Metrics struct {
		Inserted  int `json:"inserted"`
		Updated   int `json:"updated"`
		Skipped   int `json:"skipped"`
		Simulated int `json:"simulated"`
		Failed    int `json:"failed"`
		Fetched   int `json:"fetched"`
	}

	SourceResult struct {
		SourceID   string  `json:"sourceId"`
		SourceName string  `json:"sourceName"`
		HTTPStatus int     `json:"httpStatus,omitempty"`
		DurationMs int64   `json:"durationMs"`
		Metrics    Metrics `json:"metrics"`
		Error      string  `json:"error,omitempty"`
	}

	SeedSummary struct {
		RunID     string         `json:"runId"`
		DryRun    bool           `json:"dryRun"`
		Bootstrap *UpsertCounts  `json:"bootstrap,omitempty"`
		Results   []SourceResult `json:"results"`
		Totals    Metrics        `json:"totals"`
	}
)

// Record counts a single article outcome.
func (m *Metrics) Record(o Outcome) {
	switch o {
	case OutcomeInserted:
		m.Inserted++
	case OutcomeUpdated:
		m.Updated++
	case OutcomeSkipped:
		m.Skipped++
	case OutcomeSimulated:
		m.Simulated++
	}
}

func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		Inserted:  m.Inserted + o.Inserted,
		Updated:   m.Updated + o.Updated,
		Skipped:   m.Skipped + o.Skipped,
		Simulated: m.Simulated + o.Simulated,
		Failed:    m.Failed + o.Failed,
		Fetched:   m.Fetched + o.Fetched,
	}
}

// Totals sums the metrics of every result.
func Totals(results []SourceResult) Metrics {
	var t Metrics
	for _, r := range results {
		t = t.Add(r.Metrics)
	}

	return t
}
