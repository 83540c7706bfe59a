package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/threefoldtech/rfs/internal/fsadapter"
	"github.com/threefoldtech/rfs/pkg/cache"
	"github.com/threefoldtech/rfs/pkg/meta"
	"github.com/threefoldtech/rfs/pkg/store"
)

// runForeground builds the metadata/cache/store stack and blocks mounting
// target until the process receives a termination signal or the mount is
// torn down, mirroring the Rust binary's app() function.
func runForeground(target string) error {
	db, err := meta.Open(opts.meta, true)
	if err != nil {
		return fmt.Errorf("initializing metadata database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	routes, err := db.Routes()
	if err != nil {
		return fmt.Errorf("reading store routes: %w", err)
	}

	router, err := store.BuildRouterFromRoutes(ctx, routes)
	if err != nil {
		return fmt.Errorf("initializing stores: %w", err)
	}

	chunkCache, err := cache.New(opts.cache, router)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}

	fs := fsadapter.New(db, chunkCache, log)

	log.Infof("rfsmount", "mounting %s at %s", opts.meta, target)
	return fsadapter.Mount(ctx, target, fs, opts.ro)
}
