// Command gatewayd runs the multi-tenant GraphQL gateway: it resolves
// inbound requests to a tenant, builds or reuses that tenant's
// handler, authenticates the caller, and dispatches. It does not
// itself execute GraphQL; see stubFactory below.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/constructive-io/apigateway/internal/app"
	"github.com/constructive-io/apigateway/internal/config"
	"github.com/constructive-io/apigateway/pkg/handler"
)

func main() {
	migrateMetadata := flag.Bool("migrate-metadata", false, "bootstrap the metadata catalog schema before serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, app.Options{
		Factory:         stubFactory,
		MigrateMetadata: *migrateMetadata,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "gatewayd:", err)
		os.Exit(1)
	}
}

// stubFactory is the placeholder GraphQL engine plug point. A real
// deployment swaps this for whatever compiles spec.Schemas against
// connURL into a live GraphQL executor; this repo's scope ends at
// handing that engine a (connURL, spec, settings) triplet.
func stubFactory(ctx context.Context, connURL string, spec handler.Spec, settings handler.SettingsFunc) (handler.Handler, error) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no graphql engine configured for this build", http.StatusNotImplemented)
	}), nil
}
