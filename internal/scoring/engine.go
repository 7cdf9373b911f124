package scoring

import "fmt"

// Engine makes credit decisions against one immutable Config snapshot.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an engine bound to a private copy of
// it. An invalid configuration never produces an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cloneConfig(cfg)}, nil
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.cfg)
}

// Decide scores a transaction history against a requested amount.
func (e *Engine) Decide(req Request) (Decision, error) {
	if req.AmountRequestedCents < 0 {
		return Decision{}, &InputError{Field: "amount_requested_cents", Reason: "must not be negative"}
	}
	for i, t := range req.Transactions {
		if t.Date.IsZero() {
			return Decision{}, &InputError{Field: fmt.Sprintf("transactions[%d].date", i), Reason: "is required"}
		}
	}

	f := ExtractFactors(req.Transactions, req.OpeningBalanceCents, e.cfg.WindowDays)
	d, err := e.Evaluate(f, req.AmountRequestedCents)
	if err != nil {
		return Decision{}, err
	}
	d.UserID = req.UserID
	return d, nil
}

// Evaluate runs the decision flow on already extracted factors.
func (e *Engine) Evaluate(f RiskFactors, requestedCents int64) (Decision, error) {
	if requestedCents < 0 {
		return Decision{}, &InputError{Field: "amount_requested_cents", Reason: "must not be negative"}
	}
	if f.NSFCount < 0 || f.TransactionCount < 0 || f.HistoryDays < 0 {
		return Decision{}, &InputError{Field: "factors", Reason: "counts must not be negative"}
	}

	d := Decision{Factors: f}
	if f.TransactionCount == 0 && !e.cfg.ThinFile.ApproveEmptyHistory {
		d.Outcome = OutcomeNoHistory
		return d, nil
	}

	switch Classify(f, e.cfg.ThinFile) {
	case ThinFileNegative:
		// Score is kept for audit, the limit is not.
		d.Outcome = OutcomeThinFileNegative
		d.RiskScore, d.GigBonusApplied = e.Score(f)
		return d, nil
	case ThinFileClean:
		d.Outcome = OutcomeThinFileClean
		d.RiskScore = e.cfg.ApprovalThreshold
		d.CreditLimitCents = e.cfg.ThinFile.StarterLimitCents
	default:
		d.Outcome = OutcomeScored
		d.RiskScore, d.GigBonusApplied = e.Score(f)
		d.CreditLimitCents = e.cfg.Tiers.Limit(d.RiskScore)
	}

	d.Approved = d.CreditLimitCents > 0
	if d.Approved {
		d.AmountGrantedCents = min(requestedCents, d.CreditLimitCents)
	}
	return d, nil
}

// Score normalises f and returns the composite risk score and whether the
// gig-worker bonus was applied.
func (e *Engine) Score(f RiskFactors) (int, bool) {
	return Composite(Normalize(f, e.cfg), e.cfg.Weights, f, e.cfg.GigWorker)
}

// SubScores exposes the normalised factor scores for explanation.
func (e *Engine) SubScores(f RiskFactors) SubScores {
	return Normalize(f, e.cfg)
}

func cloneConfig(c Config) Config {
	c.ADBCurve = append(Curve(nil), c.ADBCurve...)
	c.RatioCurve = append(Curve(nil), c.RatioCurve...)
	c.NSFCurve = append(Curve(nil), c.NSFCurve...)
	c.Tiers = append(Tiers(nil), c.Tiers...)
	return c
}
