// Package notify maintains a dedicated LISTEN connection on the
// metadata database and fans out schema:update notifications into
// cache invalidation (§4.7).
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/constructive-io/apigateway/internal/telemetry"
	"github.com/constructive-io/apigateway/pkg/purge"
)

const channel = "schema:update"

// backoff bounds: the reconnect delay doubles from minBackoff up to
// maxBackoff and resets once a connection survives stableAfter.
const (
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
	stableAfter = 10 * time.Second
)

// Conn is the slice of *pgx.Conn this package needs. It exists so
// tests can substitute a fake without a real network connection.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Connector opens a fresh connection to the metadata database.
type Connector func(ctx context.Context) (Conn, error)

// Listener holds a long-lived LISTEN "schema:update" connection and
// purges cache entries for the database id named in each payload.
type Listener struct {
	connect Connector
	purge   *purge.Service
	alerter *SlackAlerter
	logger  *slog.Logger
}

// New builds a Listener. connect is called once per (re)connect
// attempt; purgeSvc removes the cache entries for a notified database.
func New(connect Connector, purgeSvc *purge.Service, alerter *SlackAlerter, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{connect: connect, purge: purgeSvc, alerter: alerter, logger: logger}
}

// Run blocks, listening and reconnecting with exponential backoff,
// until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	backoff := minBackoff
	degraded := false

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := l.connect(ctx)
		if err != nil {
			l.logger.Error("connecting schema:update listener", "error", err, "retry_in", backoff)
			if backoff >= maxBackoff && !degraded {
				degraded = true
				l.alert(ctx, func(a *SlackAlerter) { a.Degraded(ctx, err) })
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		telemetry.ListenerReconnectsTotal.Inc()
		if degraded {
			l.alert(ctx, func(a *SlackAlerter) { a.Recovered(ctx) })
			degraded = false
		}

		connectedAt := time.Now()
		err = l.listen(ctx, conn)
		_ = conn.Close(context.Background())

		if ctx.Err() != nil {
			return
		}

		if time.Since(connectedAt) < stableAfter {
			// Failed fast after connecting; keep backing off instead of
			// resetting, so a flapping connection doesn't hot-loop.
			backoff = nextBackoff(backoff)
		} else {
			backoff = minBackoff
		}

		l.logger.Warn("schema:update listener disconnected", "error", err, "retry_in", backoff)
		if backoff >= maxBackoff && !degraded {
			degraded = true
			l.alert(ctx, func(a *SlackAlerter) { a.Degraded(ctx, err) })
		}
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (l *Listener) listen(ctx context.Context, conn Conn) error {
	if _, err := conn.Exec(ctx, `LISTEN "`+channel+`"`); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		databaseID, err := uuid.Parse(n.Payload)
		if err != nil {
			l.logger.Warn("schema:update payload was not a uuid", "payload", n.Payload)
			continue
		}

		result := l.purge.Database(ctx, databaseID, "notify")
		l.logger.Debug("purged tenant cache entries",
			"database_id", databaseID,
			"service_entries", result.ServiceEntries,
			"handler_entries", result.HandlerEntries,
		)
	}
}

// alert is a no-op when no alerter is configured, so Listener works
// without Slack wired up.
func (l *Listener) alert(ctx context.Context, fn func(*SlackAlerter)) {
	if l.alerter == nil {
		return
	}
	fn(l.alerter)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
