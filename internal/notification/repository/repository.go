package repository

import (
	"context"

	"github.com/sakashimaa/go-grocery/internal/notification/domain"
)

// FeedStore keeps per-recipient notification feeds, newest first.
type FeedStore interface {
	Append(ctx context.Context, key string, n domain.Notification) error
	List(ctx context.Context, key string) ([]domain.Notification, error)
	// MarkRead reports whether the notification was found in the feed.
	MarkRead(ctx context.Context, key string, id int64) (bool, error)
	Clear(ctx context.Context, key string) error
	Close() error
}
