package core

type (
	// RunningBalance is the derived balance snapshot: cash, every bank
	// account (or the synthetic bucket), and their sum. Values are signed
	// cents; overdrafts stay negative.
	RunningBalance struct {
		Cash       int64
		PerAccount map[string]int64
		Total      int64
	}

	// Warning flags a scheduled future transaction that would push an
	// account below zero. Keyed by transaction id; recomputed from
	// current state, never persisted.
	Warning struct {
		TransactionID    string
		AccountID        string
		ProjectedBalance int64
		Shortfall        int64
		Date             Date
	}

	// CategoryPacing is the per-category slice of a month's pacing.
	CategoryPacing struct {
		Category       string
		Allocated      int64
		Spent          int64
		Remaining      int64
		DailyAllowance int64
	}

	// Pacing is a month's spending outlook: how much budget is left and
	// what that leaves per remaining day.
	Pacing struct {
		Month           string
		DaysRemaining   int
		TargetIncome    int64
		Allocated       int64
		Spent           int64
		BudgetRemaining int64
		DailyAllowance  int64
		Categories      []CategoryPacing
	}
)

// ForAccount returns the balance tracked for an account id, cash
// included.
func (rb RunningBalance) ForAccount(accountID string) int64 {
	if accountID == CashAccountID {
		return rb.Cash
	}
	return rb.PerAccount[accountID]
}
