// Package seed populates a freshly provisioned storefront with demo catalog
// content. The seeder talks to the store's application pod through the
// cluster PodExec capability and runs the storefront CLI with structured
// argument lists, one command per product.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storeforge/storeforge/internal/cluster"
)

const appContainer = "storefront"

// customCSS restyles the storefront header and buttons. Applied best-effort
// after the catalog is in place.
const customCSS = `:root { --primary-color: #7c3aed; --secondary-color: #a78bfa; }
.site-header { background: linear-gradient(135deg, var(--primary-color) 0%, var(--secondary-color) 100%); }
.button, button.alt { background-color: var(--primary-color); border-radius: 6px; }`

// Seeder defines the catalog seeding capability the orchestrator invokes
// once a store's setup job has succeeded.
type Seeder interface {
	Seed(ctx context.Context, storeID, displayName string) error
}

// Compile-time interface satisfaction check.
var _ Seeder = (*PodSeeder)(nil)

// PodSeeder seeds demo products by exec-ing the storefront CLI inside the
// application pod.
type PodSeeder struct {
	prober cluster.Prober
	exec   cluster.PodExec
	logger *slog.Logger
}

// NewPodSeeder creates a seeder using the given prober to locate the
// application pod and exec to run commands inside it.
func NewPodSeeder(prober cluster.Prober, exec cluster.PodExec, logger *slog.Logger) *PodSeeder {
	return &PodSeeder{prober: prober, exec: exec, logger: logger}
}

// Seed creates the category's demo products, enables the cash-on-delivery
// gateway, and applies the storefront styling. Individual command failures
// are logged and skipped; Seed only errors when the pod cannot be located
// or no product could be created at all.
func (s *PodSeeder) Seed(ctx context.Context, storeID, displayName string) error {
	pod, err := s.prober.PodName(ctx, storeID, cluster.StorefrontSelector)
	if err != nil {
		return fmt.Errorf("locate application pod: %w", err)
	}

	category := DetectCategory(displayName)
	products := ProductsFor(category)
	s.logger.Info("seeding catalog",
		"store_id", storeID,
		"category", category,
		"products", len(products),
	)

	created := 0
	for _, p := range products {
		if _, err := s.exec.Exec(ctx, storeID, pod, appContainer, productCreateArgs(p)); err != nil {
			s.logger.Warn("create product failed",
				"store_id", storeID, "product", p.Name, "error", err)
			continue
		}
		created++
	}
	if created == 0 {
		return fmt.Errorf("seeding %s: no products created", storeID)
	}

	if _, err := s.exec.Exec(ctx, storeID, pod, appContainer, enableCODArgs()); err != nil {
		s.logger.Warn("enable cash-on-delivery failed", "store_id", storeID, "error", err)
	}

	if _, err := s.exec.Exec(ctx, storeID, pod, appContainer, applyCSSArgs()); err != nil {
		s.logger.Warn("apply custom styles failed", "store_id", storeID, "error", err)
	}

	s.logger.Info("catalog seeded", "store_id", storeID, "created", created)
	return nil
}

func productCreateArgs(p Product) []string {
	short := p.Description
	if len(short) > 100 {
		short = short[:100]
	}
	return []string{
		"wp", "wc", "product", "create",
		"--name=" + p.Name,
		"--type=simple",
		"--regular_price=" + p.Price,
		"--description=" + p.Description,
		"--short_description=" + short,
		"--status=publish",
		"--catalog_visibility=visible",
		"--user=admin",
		"--allow-root",
	}
}

func enableCODArgs() []string {
	return []string{
		"wp", "wc", "payment_gateway", "update", "cod",
		"--enabled=true",
		"--user=admin",
		"--allow-root",
	}
}

func applyCSSArgs() []string {
	return []string{
		"wp", "option", "update", "custom_css", customCSS,
		"--allow-root",
	}
}
