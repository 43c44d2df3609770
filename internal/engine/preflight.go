package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"drop_engine/pkg/cli"
	"drop_engine/pkg/concurrency"
)

// PreflightResult is the outcome of checking one seller before watching it.
type PreflightResult struct {
	Seller string
	Err    error
}

// Preflight validates every configured seller in parallel: slug shape
// first, then a health probe against the storefront. Sellers that fail
// are reported, not fatal; the caller decides whether to proceed.
func (e *Engine) Preflight(ctx context.Context) []PreflightResult {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "preflight",
		MaxWorkers:  e.cfg.Concurrency.PreflightWorkers,
		MaxCapacity: e.cfg.Concurrency.PreflightBuffer,
	}, e.logger)

	results := make([]PreflightResult, len(e.cfg.Storefront.Sellers))
	var wg sync.WaitGroup

	for i, seller := range e.cfg.Storefront.Sellers {
		i, seller := i, seller
		wg.Add(1)
		_ = pool.Submit(func() {
			defer wg.Done()
			results[i] = PreflightResult{Seller: seller, Err: e.checkSeller(ctx, seller)}
		})
	}
	wg.Wait()
	pool.StopAndWait()

	for _, r := range results {
		if r.Err != nil {
			e.logger.Warn("preflight check failed", "seller", r.Seller, "error", r.Err.Error())
		} else {
			e.logger.Debug("preflight check passed", "seller", r.Seller)
		}
	}
	return results
}

func (e *Engine) checkSeller(ctx context.Context, seller string) error {
	if err := cli.ValidateSellerSlug(seller); err != nil {
		return err
	}
	sf, ok := e.storefronts[seller]
	if !ok {
		return fmt.Errorf("no storefront client configured for %q", seller)
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return sf.CheckHealth(probeCtx)
}

// HealthySellers filters preflight results down to the sellers worth
// watching.
func HealthySellers(results []PreflightResult) []string {
	var out []string
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Seller)
		}
	}
	return out
}
