package db

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Client interface {
	Close() error
	GetSettings(ctx context.Context, guildID string) (*Settings, error)
	SetSettings(ctx context.Context, settings *Settings) error
	ListSettings(ctx context.Context) ([]*Settings, error)
	AddSanctionRecord(ctx context.Context, rec *SanctionRecord) error
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key, value string) error
}
