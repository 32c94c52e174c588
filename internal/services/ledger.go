package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

// LedgerService orchestrates ledger mutations across SQLite and AMQP.
// Every write lands locally first; the broker only carries a trigger
// asking the worker to reconcile, so a dead broker never loses data.
type LedgerService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewLedgerService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *LedgerService {
	return &LedgerService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// Snapshot loads the full local state.
func (s *LedgerService) Snapshot(ctx context.Context) (core.Snapshot, error) {
	return s.storage.LoadSnapshot(ctx)
}

// CreateExpense validates and saves an expense, then asks for a sync.
func (s *LedgerService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e = prepareNew(e)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.storage.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerCreate, core.KindExpense, e.ID)
	return e, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	updated, err := s.storage.UpdateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, core.KindExpense, e.ID)
	return updated, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id string) error {
	if err := s.storage.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerDelete, core.KindExpense, id)
	return nil
}

func (s *LedgerService) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	in = prepareNew(in)
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if err := s.storage.CreateIncome(ctx, in); err != nil {
		return core.Income{}, fmt.Errorf("save income: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerCreate, core.KindIncome, in.ID)
	return in, nil
}

func (s *LedgerService) UpdateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	updated, err := s.storage.UpdateIncome(ctx, in)
	if err != nil {
		return core.Income{}, fmt.Errorf("update income: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, core.KindIncome, in.ID)
	return updated, nil
}

func (s *LedgerService) DeleteIncome(ctx context.Context, id string) error {
	if err := s.storage.DeleteIncome(ctx, id); err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerDelete, core.KindIncome, id)
	return nil
}

func (s *LedgerService) CreateTransfer(ctx context.Context, tr core.Transfer) (core.Transfer, error) {
	tr = prepareNew(tr)
	if err := tr.Validate(); err != nil {
		return core.Transfer{}, err
	}
	if err := s.storage.CreateTransfer(ctx, tr); err != nil {
		return core.Transfer{}, fmt.Errorf("save transfer: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerCreate, core.KindTransfer, tr.ID)
	return tr, nil
}

func (s *LedgerService) UpdateTransfer(ctx context.Context, tr core.Transfer) (core.Transfer, error) {
	if err := tr.Validate(); err != nil {
		return core.Transfer{}, err
	}
	updated, err := s.storage.UpdateTransfer(ctx, tr)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("update transfer: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, core.KindTransfer, tr.ID)
	return updated, nil
}

func (s *LedgerService) DeleteTransfer(ctx context.Context, id string) error {
	if err := s.storage.DeleteTransfer(ctx, id); err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerDelete, core.KindTransfer, id)
	return nil
}

// Accounts lists the configured bank accounts. Cash is implicit and
// never part of the list.
func (s *LedgerService) Accounts(ctx context.Context) ([]core.Account, error) {
	return s.storage.ListAccounts(ctx)
}

// CreateAccount saves a bank account. The account id is chosen by the
// caller so it can double as the stable reference other rows use.
func (s *LedgerService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Synced = false
	a.Version = 1
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if err := s.storage.CreateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("save account: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerCreate, core.KindAccount, a.ID)
	return a, nil
}

func (s *LedgerService) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	updated, err := s.storage.UpdateAccount(ctx, a)
	if err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, core.KindAccount, a.ID)
	return updated, nil
}

// SetDefaultAccount moves the default flag to the given account. The
// repository clears the previous holder in the same critical section,
// keeping the exactly-one-default invariant.
func (s *LedgerService) SetDefaultAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := s.storage.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, fmt.Errorf("load account: %w", err)
	}
	if a.Default {
		return a, nil
	}
	a.Default = true
	updated, err := s.storage.UpdateAccount(ctx, a)
	if err != nil {
		return core.Account{}, fmt.Errorf("set default account: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, core.KindAccount, id)
	return updated, nil
}

func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.storage.DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerDelete, core.KindAccount, id)
	return nil
}

func (s *LedgerService) Settings(ctx context.Context) (core.Settings, error) {
	return s.storage.GetSettings(ctx)
}

func (s *LedgerService) SaveSettings(ctx context.Context, cfg core.Settings) error {
	if err := s.storage.SaveSettings(ctx, cfg); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, "", "settings")
	return nil
}

func (s *LedgerService) Budgets(ctx context.Context) (core.Budgets, error) {
	return s.storage.GetBudgets(ctx)
}

func (s *LedgerService) SaveBudgets(ctx context.Context, b core.Budgets) error {
	if err := s.storage.SaveBudgets(ctx, b); err != nil {
		return fmt.Errorf("save budgets: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, "", "budgets")
	return nil
}

func (s *LedgerService) Categories(ctx context.Context) ([]string, error) {
	return s.storage.GetCategories(ctx)
}

func (s *LedgerService) SaveCategories(ctx context.Context, cats []string) error {
	if err := s.storage.SaveCategories(ctx, cats); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	s.publishTrigger(ctx, amqp.TriggerUpdate, "", "categories")
	return nil
}

// publishTrigger is fire and forget. The mutation already committed
// locally, so a publish failure only delays sync until the next tick.
func (s *LedgerService) publishTrigger(ctx context.Context, reason string, kind core.Kind, id string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishSyncTrigger(ctx, reason, kind, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync trigger",
			"reason", reason,
			"kind", kind,
			"entity_id", id,
			"error", err)
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}

// transaction is satisfied by the three dated entity types so new rows
// get the same id, clock and sync bootstrap.
type transaction interface {
	core.Expense | core.Income | core.Transfer
}

func prepareNew[T transaction](v T) T {
	switch t := any(&v).(type) {
	case *core.Expense:
		bootstrapTransaction(&t.ID, &t.Timestamp, &t.Synced, &t.Version)
	case *core.Income:
		bootstrapTransaction(&t.ID, &t.Timestamp, &t.Synced, &t.Version)
	case *core.Transfer:
		bootstrapTransaction(&t.ID, &t.Timestamp, &t.Synced, &t.Version)
	}
	return v
}

func bootstrapTransaction(id *string, ts *time.Time, synced *bool, version *int64) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if ts.IsZero() {
		*ts = time.Now().UTC()
	}
	*synced = false
	*version = 1
}
