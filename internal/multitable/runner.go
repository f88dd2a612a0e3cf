package multitable

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"salesetl/internal/metrics"
	"salesetl/internal/parser/tsv"
	"salesetl/internal/storage"
)

// Step names, in execution order.
const (
	StepDrop                  = "drop_tables"
	StepRegion                = "region"
	StepRegionLookup          = "region_lookup"
	StepCountry               = "country"
	StepCountryLookup         = "country_lookup"
	StepCustomer              = "customer"
	StepCustomerLookup        = "customer_lookup"
	StepProductCategory       = "product_category"
	StepProductCategoryLookup = "product_category_lookup"
	StepProduct               = "product"
	StepProductLookup         = "product_lookup"
	StepOrderDetail           = "order_detail"
)

// LoadSummary reports what a run wrote.
type LoadSummary struct {
	Rows     map[string]int64 // table -> rows inserted
	Duration time.Duration
}

// Total is the number of rows inserted across all tables.
func (s LoadSummary) Total() int64 {
	var n int64
	for _, v := range s.Rows {
		n += v
	}
	return n
}

// Runner executes the full load: Region, Country, Customer, ProductCategory,
// Product, OrderDetail, each followed by its lookup build.
//
// Every step opens its own repository, writes inside one transaction and
// closes it. Steps are not transactional as a group: a failure leaves earlier
// steps committed, and the recovery path is a full re-run with DropTables.
type Runner struct {
	// NewRepository is the storage-agnostic factory seam.
	NewRepository func(ctx context.Context, cfg storage.MultiConfig) (storage.MultiRepository, error)

	// NewSource opens the export. Each step reads it afresh.
	NewSource func(path string) RecordSource

	Logger Logger
	Clock  clockwork.Clock
}

func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		NewRepository: storage.NewMulti,
		NewSource:     func(path string) RecordSource { return tsv.Source{Path: path} },
		Logger:        logger,
		Clock:         clockwork.NewRealClock(),
	}
}

// Run executes every step in order and stops at the first failure.
//
// Errors:
//   - Configuration errors are returned as is.
//   - Step failures are returned as *StepError naming the step.
func (r *Runner) Run(ctx context.Context, cfg Config) (LoadSummary, error) {
	summary := LoadSummary{Rows: map[string]int64{}}
	if err := cfg.Validate(); err != nil {
		return summary, err
	}
	if r.NewRepository == nil {
		return summary, fmt.Errorf("multitable: Runner.NewRepository is required")
	}

	plan, err := storage.OrderTables(Tables())
	if err != nil {
		return summary, err
	}

	clock := r.clock()
	logf := r.logger()
	start := clock.Now()
	src := r.source(cfg.Source)

	if cfg.DropTables {
		err := r.step(ctx, cfg, StepDrop, func(ctx context.Context, repo storage.MultiRepository) error {
			for _, t := range slices.Backward(plan) {
				if err := repo.DropTable(ctx, t.Name); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return summary, err
		}
	}

	load := func(step string, spec storage.TableSpec, extract Extractor) error {
		return r.step(ctx, cfg, step, func(ctx context.Context, repo storage.MultiRepository) error {
			if err := r.ensure(ctx, repo, cfg, step, spec); err != nil {
				return err
			}
			n, err := LoadDimension(ctx, repo, spec, src, extract)
			if err != nil {
				return err
			}
			r.recordRows(summary, step, spec.Name, n)
			return nil
		})
	}
	lookup := func(step string, spec storage.TableSpec, out *Mapping) error {
		return r.step(ctx, cfg, step, func(ctx context.Context, repo storage.MultiRepository) error {
			m, err := BuildLookupFor(ctx, repo, spec)
			if err != nil {
				return err
			}
			*out = m
			logf("stage=%s keys=%d", step, m.Len())
			return nil
		})
	}

	var regions, countries, customers, categories, products Mapping

	if err := load(StepRegion, RegionSpec, RegionTuples); err != nil {
		return summary, err
	}
	if err := lookup(StepRegionLookup, RegionSpec, &regions); err != nil {
		return summary, err
	}
	if err := load(StepCountry, CountrySpec, CountryTuples(regions)); err != nil {
		return summary, err
	}
	if err := lookup(StepCountryLookup, CountrySpec, &countries); err != nil {
		return summary, err
	}
	if err := load(StepCustomer, CustomerSpec, CustomerTuples(countries)); err != nil {
		return summary, err
	}
	if err := lookup(StepCustomerLookup, CustomerSpec, &customers); err != nil {
		return summary, err
	}
	if err := load(StepProductCategory, ProductCategorySpec, ProductCategoryTuples); err != nil {
		return summary, err
	}
	if err := lookup(StepProductCategoryLookup, ProductCategorySpec, &categories); err != nil {
		return summary, err
	}
	if err := load(StepProduct, ProductSpec, ProductTuples(categories)); err != nil {
		return summary, err
	}
	if err := lookup(StepProductLookup, ProductSpec, &products); err != nil {
		return summary, err
	}

	err = r.step(ctx, cfg, StepOrderDetail, func(ctx context.Context, repo storage.MultiRepository) error {
		if err := r.ensure(ctx, repo, cfg, StepOrderDetail, OrderDetailSpec); err != nil {
			return err
		}
		n, err := LoadFacts(ctx, repo, src, customers, products)
		if err != nil {
			return err
		}
		r.recordRows(summary, StepOrderDetail, OrderDetailTable, n)
		return nil
	})
	if err != nil {
		return summary, err
	}

	summary.Duration = clock.Since(start)
	logf("stage=load ok rows=%d duration=%s", summary.Total(), durMS(summary.Duration))
	return summary, nil
}

// step runs fn against a freshly opened repository and records its outcome.
func (r *Runner) step(ctx context.Context, cfg Config, name string, fn func(context.Context, storage.MultiRepository) error) error {
	clock := r.clock()
	logf := r.logger()
	start := clock.Now()

	err := func() error {
		repo, err := r.NewRepository(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Storage.Kind, err)
		}
		defer repo.Close()
		return fn(ctx, repo)
	}()

	d := clock.Since(start)
	if err != nil {
		metrics.RecordStep(name, "error", d)
		logf("stage=%s status=error duration=%s err=%v", name, durMS(d), err)
		return &StepError{Step: name, Err: err}
	}
	metrics.RecordStep(name, "ok", d)
	logf("stage=%s ok duration=%s", name, durMS(d))
	return nil
}

// ensure creates spec's table, tolerating a schema error only when configured.
func (r *Runner) ensure(ctx context.Context, repo storage.MultiRepository, cfg Config, step string, spec storage.TableSpec) error {
	err := repo.EnsureTable(ctx, spec, cfg.DropTables)
	if err == nil {
		return nil
	}
	if cfg.TolerateSchemaErrors && storage.IsSchemaError(err) {
		r.logger()("stage=%s schema_error=tolerated err=%v", step, err)
		return nil
	}
	return err
}

func (r *Runner) recordRows(summary LoadSummary, step, table string, n int64) {
	summary.Rows[table] = n
	metrics.RecordRows(table, n)
	r.logger()("stage=%s rows=%d", step, n)
}

func (r *Runner) source(path string) RecordSource {
	if r.NewSource == nil {
		return tsv.Source{Path: path}
	}
	return r.NewSource(path)
}

func (r *Runner) clock() clockwork.Clock {
	if r.Clock == nil {
		return clockwork.NewRealClock()
	}
	return r.Clock
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(io.Discard, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

func durMS(d time.Duration) time.Duration { return d.Truncate(time.Millisecond) }
