package notify

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Dial returns a Connector that opens a dedicated, unpooled connection
// to dsn for each (re)connect attempt. A pooled connection is
// unsuitable here: the listener holds it open indefinitely and must
// not compete with request-serving queries for a pool slot.
func Dial(dsn string) Connector {
	return func(ctx context.Context) (Conn, error) {
		return pgx.Connect(ctx, dsn)
	}
}
