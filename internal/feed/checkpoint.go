package feed

import (
	"context"
	"fmt"
	"strings"

	"trellobot/internal/trello"
)

// CheckpointStore persists the last published action id per board.
type CheckpointStore interface {
	Load(ctx context.Context, board string) (trello.ActionID, error)
	Save(ctx context.Context, board string, id trello.ActionID) error
}

// KV is the subset of storage.Store the checkpoint keys need.
type KV interface {
	GetCheckpoint(ctx context.Context, key string) (string, bool, error)
	PutCheckpoint(ctx context.Context, key, value string) error
}

// CheckpointKey is the storage key for a board's checkpoint.
func CheckpointKey(board string) string { return "board:" + strings.TrimSpace(board) }

// KeyedCheckpoints stores one checkpoint per board under CheckpointKey.
//
// Legacy, when set, is returned for boards that have no stored key yet. It
// carries over the single global checkpoint older deployments kept.
type KeyedCheckpoints struct {
	KV     KV
	Legacy trello.ActionID
}

func NewCheckpoints(kv KV, legacy trello.ActionID) *KeyedCheckpoints {
	return &KeyedCheckpoints{KV: kv, Legacy: legacy}
}

func (k *KeyedCheckpoints) Load(ctx context.Context, board string) (trello.ActionID, error) {
	v, ok, err := k.KV.GetCheckpoint(ctx, CheckpointKey(board))
	if err != nil {
		return "", fmt.Errorf("load checkpoint %s: %w", board, err)
	}
	if !ok {
		return k.Legacy, nil
	}
	return trello.ActionID(v), nil
}

// Save refuses to move a checkpoint backwards.
func (k *KeyedCheckpoints) Save(ctx context.Context, board string, id trello.ActionID) error {
	key := CheckpointKey(board)
	cur, ok, err := k.KV.GetCheckpoint(ctx, key)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", board, err)
	}
	if ok && trello.Compare(id, trello.ActionID(cur)) <= 0 {
		return nil
	}
	if err := k.KV.PutCheckpoint(ctx, key, string(id)); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", board, err)
	}
	return nil
}
