package deploy

import (
	"context"
	"time"

	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/translate"
)

// DefaultRegistry assembles the maintenance tasks this build ships with.
// Lower priority runs first: global grants before per-instance reassignment,
// cleanup and translation after.
func DefaultRegistry(authzSvc *authz.Service, translateSvc *translate.Service) *Registry {
	return NewRegistry(
		Task{
			Name:     "authz.setup_global",
			Priority: 10,
			Cooldown: time.Hour,
			Run: func(ctx context.Context) error {
				return authzSvc.SetupGlobalPermissions(ctx)
			},
		},
		Task{
			Name:     "authz.reassign_stale",
			Priority: 20,
			Cooldown: time.Hour,
			Run: func(ctx context.Context) error {
				for _, entity := range authz.KnownEntityTypes() {
					if _, err := authzSvc.ReassignStale(ctx, entity); err != nil {
						return err
					}
				}
				return nil
			},
		},
		Task{
			Name:     "authz.orphan_cleanup",
			Priority: 30,
			Cooldown: 24 * time.Hour,
			Run: func(ctx context.Context) error {
				_, err := authzSvc.CleanupOrphanGrants(ctx)
				return err
			},
		},
		Task{
			Name:     "translate.sweep",
			Priority: 40,
			Cooldown: time.Hour,
			Run: func(ctx context.Context) error {
				_, err := translateSvc.Sweep(ctx)
				return err
			},
		},
	)
}
