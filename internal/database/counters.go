package database

import (
	"context"
	"fmt"
	"time"

	"github.com/naarscars/admission/internal/ratelimit"
)

// Increment atomically bumps the counter for (actor, action, windowStart)
// and returns the post-increment count. First action in a window creates the
// row; rollover is logical, by window key. The single upsert statement is
// what keeps two concurrent requests from both observing the same
// pre-increment count.
func (d *Database) Increment(ctx context.Context, actor string, action ratelimit.Action, windowStart time.Time) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, `
		insert into rate_limit_counters (actor, action, window_start, count)
		values ($1, $2, $3, 1)
		on conflict (actor, action, window_start)
		do update set count = rate_limit_counters.count + 1
		returning count
	`, actor, string(action), windowStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	return count, nil
}

var _ ratelimit.CounterStore = (*Database)(nil)
