// Package bench drives a reader pool with concurrent borrowers and reports
// throughput, latency percentiles and process resource usage.
package bench

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/tablepool/pkg/metrics"
	"github.com/ajitpratap0/tablepool/pkg/pool"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/readerpool"
	"github.com/ajitpratap0/tablepool/pkg/store/memstore"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Borrower is the part of a ReaderPool the benchmark drives.
type Borrower interface {
	Borrow(ctx context.Context) (*readerpool.PooledReader, error)
	Stats() pool.Stats
}

// Config shapes the load.
type Config struct {
	// Workers is the number of concurrent borrowers
	Workers int
	// Operations stops the run after this many reads; 0 runs for Duration
	Operations int
	// Duration bounds the run; 0 means until Operations are done
	Duration time.Duration
	// Rate caps reads per second across all workers; 0 is unlimited
	Rate float64
	// Keys is how many distinct rows reads are spread over
	Keys int
	// Columns are requested on every read; empty reads every column
	Columns []string
	// Hold keeps each reader borrowed this much longer than the read takes
	Hold time.Duration
	// KeyFunc maps a key index to an entity id; it defaults to memstore.SeedID
	KeyFunc func(i int) table.EntityID
}

// DefaultConfig returns a short run of 1000 reads by 8 workers.
func DefaultConfig() Config {
	return Config{
		Workers:    8,
		Operations: 1000,
		Keys:       1000,
	}
}

// Validate checks the run can terminate and has work to do.
func (c *Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "workers must be greater than 0")
	case c.Keys <= 0:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "keys must be greater than 0")
	case c.Operations < 0 || c.Duration < 0 || c.Rate < 0 || c.Hold < 0:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "operations, duration, rate and hold may not be negative")
	case c.Operations == 0 && c.Duration == 0:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "either operations or duration must be set")
	}
	return nil
}

// Result summarizes a run.
type Result struct {
	Operations uint64        `json:"operations" yaml:"operations"`
	Errors     uint64        `json:"errors" yaml:"errors"`
	Exhausted  uint64        `json:"exhausted" yaml:"exhausted"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
	Throughput float64       `json:"throughput" yaml:"throughput"`
	P50        time.Duration `json:"p50" yaml:"p50"`
	P95        time.Duration `json:"p95" yaml:"p95"`
	P99        time.Duration `json:"p99" yaml:"p99"`
	Max        time.Duration `json:"max" yaml:"max"`
	RSSBytes   uint64        `json:"rss_bytes" yaml:"rss_bytes"`
	CPUPercent float64       `json:"cpu_percent" yaml:"cpu_percent"`
	Pool       pool.Stats    `json:"pool" yaml:"pool"`
}

type worker struct {
	id        int
	latencies []time.Duration
	ops       uint64
	errs      uint64
	exhausted uint64
}

// Run drives p until the configured operations are done, the duration
// elapses or ctx is canceled. Failed reads are counted, not returned.
func Run(ctx context.Context, p Borrower, cfg Config, log *zap.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = memstore.SeedID
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Workers)
	}
	req := table.NewDataRequest(cfg.Columns...)

	var issued atomic.Int64
	next := func() bool {
		return cfg.Operations == 0 || issued.Add(1) <= int64(cfg.Operations)
	}

	workers := make([]*worker, cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	run := metrics.NewTimer("bench")
	seed := time.Now().UnixNano()
	for i := range workers {
		w := &worker{id: i}
		workers[i] = w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(w.id) + seed))
			for next() {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return nil
					}
				}
				if gctx.Err() != nil {
					return nil
				}
				w.read(gctx, p, cfg, req, cfg.KeyFunc(rng.Intn(cfg.Keys)), log)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := run.Stop()

	res := summarize(workers, elapsed)
	res.Pool = p.Stats()
	sampleProcess(res, log)

	log.Info("benchmark finished",
		zap.Uint64("operations", res.Operations),
		zap.Uint64("errors", res.Errors),
		zap.Uint64("exhausted", res.Exhausted),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("throughput", res.Throughput),
		zap.Duration("p99", res.P99))
	return res, nil
}

func (w *worker) read(ctx context.Context, p Borrower, cfg Config, req *table.DataRequest, id table.EntityID, log *zap.Logger) {
	timer := metrics.NewTimer("read")
	reader, err := p.Borrow(ctx)
	if err != nil {
		w.fail(ctx, err, log)
		return
	}
	_, err = reader.Get(ctx, id, req)
	if err == nil && cfg.Hold > 0 {
		hold := time.NewTimer(cfg.Hold)
		select {
		case <-hold.C:
		case <-ctx.Done():
			hold.Stop()
		}
	}
	if err != nil {
		_ = reader.Invalidate()
		w.fail(ctx, err, log)
		return
	}
	if err := reader.Close(); err != nil {
		w.fail(ctx, err, log)
		return
	}
	w.ops++
	w.latencies = append(w.latencies, timer.Stop())
}

func (w *worker) fail(ctx context.Context, err error, log *zap.Logger) {
	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		poolerrors.IsType(err, poolerrors.ErrorTypeCanceled) || poolerrors.IsType(err, poolerrors.ErrorTypeTimeout)):
		// the run ended while this read was in flight
	case poolerrors.IsExhausted(err):
		w.exhausted++
	default:
		w.errs++
		log.Debug("read failed", zap.Int("worker", w.id), zap.Error(err))
	}
}

func summarize(workers []*worker, elapsed time.Duration) *Result {
	res := &Result{Elapsed: elapsed}
	var all []time.Duration
	for _, w := range workers {
		res.Operations += w.ops
		res.Errors += w.errs
		res.Exhausted += w.exhausted
		all = append(all, w.latencies...)
	}
	if elapsed > 0 {
		res.Throughput = float64(res.Operations) / elapsed.Seconds()
	}
	if len(all) == 0 {
		return res
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	res.P50 = percentile(all, 0.50)
	res.P95 = percentile(all, 0.95)
	res.P99 = percentile(all, 0.99)
	res.Max = all[len(all)-1]
	return res
}

// percentile returns the nearest-rank percentile of sorted.
func percentile(sorted []time.Duration, q float64) time.Duration {
	rank := int(q*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

var procOnce = sync.OnceValues(func() (*process.Process, error) {
	return process.NewProcess(int32(os.Getpid()))
})

func sampleProcess(res *Result, log *zap.Logger) {
	proc, err := procOnce()
	if err != nil {
		log.Debug("process stats unavailable", zap.Error(err))
		return
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		res.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		res.CPUPercent = cpu
	}
}
