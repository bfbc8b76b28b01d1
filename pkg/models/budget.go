package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy caps spend per period, optionally for a single model.
type BudgetPolicy struct {
	Period      BudgetPeriod `json:"period" yaml:"period"`
	MaxCost     float64      `json:"max_cost" yaml:"max_cost"`
	Model       string       `json:"model,omitempty" yaml:"model,omitempty"`
	WarnPercent float64      `json:"warn_percent,omitempty" yaml:"warn_percent,omitempty"`
}

// BudgetStatus shows current spend against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	PeriodKey string       `json:"period_key"`
	Used      float64      `json:"used"`
	Remaining float64      `json:"remaining"`
	Percent   float64      `json:"percent"`
	Warning   bool         `json:"warning"`
	Exceeded  bool         `json:"exceeded"`
	Projected float64      `json:"projected"`
}
