package backend

import (
	"context"
	"fmt"
	"log/slog"

	"conti/internal/remote"
	"conti/internal/remote/memory"
	"conti/internal/remote/relay"
	"conti/internal/remote/sheets"
)

// Type selects the remote transport. The local SQLite store is always
// present; this only decides how sync reaches the spreadsheet.
type Type string

const (
	// Direct talks to the Sheets API with local Google credentials.
	Direct Type = "direct"
	// Relay goes through the script relay endpoint.
	Relay Type = "relay"
	// Memory keeps the remote in process, for tests and offline use.
	Memory Type = "memory"
	// None disables sync entirely.
	None Type = "none"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case Direct, Relay, Memory, None:
		return true
	default:
		return false
	}
}

// Factory creates remote adapters based on configuration.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Create builds the remote adapter for the given transport. A nil
// adapter with a nil error means sync is disabled.
func (f *Factory) Create(ctx context.Context, t Type) (remote.Adapter, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid remote backend type: %s", t)
	}

	switch t {
	case Direct:
		cli, err := sheets.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Sheets client: %w", err)
		}
		f.logger.Info("Initialized direct Sheets backend")
		return cli, nil
	case Relay:
		f.logger.Info("Initialized relay backend")
		return relay.NewClient(), nil
	case Memory:
		f.logger.Info("Initialized in-memory remote backend")
		return memory.New(), nil
	default:
		f.logger.Info("Remote sync disabled")
		return nil, nil
	}
}
