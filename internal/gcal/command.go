package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"kmdcal/internal/model"
)

// Command types accepted from the UI.
const (
	CommandCreateEvents = "CREATE_EVENTS"
	CommandDeleteEvents = "DELETE_EVENTS"
)

// Command is an inbound sync request.
type Command struct {
	Type         string                `json:"type"`
	Events       []model.ResolvedEvent `json:"events,omitempty"`
	Fingerprints []string              `json:"fingerprints,omitempty"`
}

// DecodeCommand reads one JSON command.
func DecodeCommand(r io.Reader) (Command, error) {
	var cmd Command
	if err := json.NewDecoder(r).Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// Syncer is the batch surface of Client.
type Syncer interface {
	CreateBatch(ctx context.Context, events []model.ResolvedEvent) model.SyncBatchResult
	DeleteBatch(ctx context.Context, fingerprints []string) model.SyncBatchResult
}

var _ Syncer = (*Client)(nil)

// Dispatch runs cmd against s. Only an unknown command type is an error;
// item failures are reported inside the result.
func Dispatch(ctx context.Context, s Syncer, cmd Command) (model.SyncBatchResult, error) {
	switch cmd.Type {
	case CommandCreateEvents:
		return s.CreateBatch(ctx, cmd.Events), nil
	case CommandDeleteEvents:
		return s.DeleteBatch(ctx, cmd.Fingerprints), nil
	default:
		return model.SyncBatchResult{}, fmt.Errorf("unknown command type %q", cmd.Type)
	}
}
