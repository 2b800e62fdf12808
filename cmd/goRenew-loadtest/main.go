// Command goRenew-loadtest drives the Redis session store with concurrent validation, refresh
// rotation and same-token races, and reports latency percentiles and race outcomes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goRenew/internal/ids"
	"github.com/MrEthical07/goRenew/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	sid   string
	token string
	mu    sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate + rotate)")
		races       = flag.Int("races", 500, "sessions whose current token is consumed concurrently")
		racers      = flag.Int("racers", 8, "concurrent consumers per raced token")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "rnload", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers < 2 || *races < 0 || *races > *sessions {
		fmt.Fprintln(os.Stderr, "sessions, concurrency and ops must be > 0, racers >= 2, 0 <= races <= sessions")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Error("failed to start miniredis", "error", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		logger.Info("using miniredis", "addr", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		logger.Info("using redis", "addr", addr)
	}
	defer cleanup()

	store := session.NewRedisStore(client, *prefix)

	states := make([]sessionState, *sessions)
	startSeed := time.Now()
	for i := range states {
		sid, err := store.CreateSession(ctx, fmt.Sprintf("p-%d", i%1000), []string{"user"})
		if err != nil {
			logger.Error("create session failed", "error", err)
			os.Exit(1)
		}
		token := ids.New()
		if err := store.RecordRefreshToken(ctx, sid, token, time.Now().Add(24*time.Hour)); err != nil {
			logger.Error("record token failed", "error", err)
			os.Exit(1)
		}
		states[i] = sessionState{sid: sid, token: token}
	}
	logger.Info("seeded sessions", "count", *sessions, "took", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, store, states, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, store, states, *ops, *concurrency)
	race := runRacePhase(ctx, store, states[:*races], *racers)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
	fmt.Printf("race: tokens=%d racers=%d winners=%d already_consumed=%d reused=%d other=%d violations=%d\n",
		*races, *racers, race.winners, race.alreadyConsumed, race.reused, race.other, race.violations)
	if race.violations > 0 {
		os.Exit(1)
	}
}

func runValidatePhase(ctx context.Context, store session.Store, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				ok, err := store.IsSessionValid(ctx, states[idx].sid)
				d := time.Since(t0)
				if err != nil || !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runRotatePhase performs consume + record, the store half of a refresh.
func runRotatePhase(ctx context.Context, store session.Store, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				next := ids.New()
				t0 := time.Now()
				_, err := store.ConsumeRefreshToken(ctx, state.token)
				if err == nil {
					err = store.RecordRefreshToken(ctx, state.sid, next, time.Now().Add(24*time.Hour))
				}
				d := time.Since(t0)
				if err == nil {
					state.token = next
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type raceOutcome struct {
	winners         int64
	alreadyConsumed int64
	reused          int64
	other           int64
	violations      int64
}

// runRacePhase consumes each session's current token from racers goroutines at once.
// Exactly one consumer per token may succeed.
func runRacePhase(ctx context.Context, store session.Store, states []sessionState, racers int) raceOutcome {
	var out raceOutcome
	for i := range states {
		state := &states[i]
		var (
			wg   sync.WaitGroup
			wins int64
			gate = make(chan struct{})
		)
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				_, err := store.ConsumeRefreshToken(ctx, state.token)
				switch {
				case err == nil:
					atomic.AddInt64(&wins, 1)
				case errors.Is(err, session.ErrAlreadyConsumed):
					atomic.AddInt64(&out.alreadyConsumed, 1)
				case errors.Is(err, session.ErrReused):
					atomic.AddInt64(&out.reused, 1)
				default:
					atomic.AddInt64(&out.other, 1)
				}
			}()
		}
		close(gate)
		wg.Wait()

		out.winners += wins
		if wins != 1 {
			out.violations++
		}
	}
	return out
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
