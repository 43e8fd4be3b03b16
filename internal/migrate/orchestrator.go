package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/idmap"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

const (
	defaultBatchSize     = 100
	defaultProgressEvery = 25
)

// SourceDialer opens the source connection. Dialing happens inside Run so a
// dead source shows up as a Connecting-stage failure in the report.
type SourceDialer func(ctx context.Context) (source.Connector, error)

// Snapshotter is the slice of the snapshot manager the orchestrator uses: a
// safety backup before the first write, and a restore for rollback after a
// failure.
type Snapshotter interface {
	CreateDatabase(ctx context.Context, st *store.Store) (*backup.Record, error)
	Restore(ctx context.Context, name string) (*backup.RestoreResult, error)
}

// Orchestrator sequences one migration run: connect, back up, import,
// resolve relationships, verify. It owns the success/failure decision and
// the identifier mapper's lifetime; nothing about a run is global, so runs
// never interfere with each other.
type Orchestrator struct {
	dial   SourceDialer
	dbPath string

	snap          Snapshotter
	log           *slog.Logger
	now           func() time.Time
	batchSize     int
	progressEvery int
	checksums     bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSnapshots enables the pre-migration safety backup and rollback on
// failure. Without it, a failed run leaves the target as the failure left it.
func WithSnapshots(s Snapshotter) Option {
	return func(o *Orchestrator) { o.snap = s }
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithBatchSize bounds how many records are held in memory per insert
// transaction.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithProgressEvery controls how often per-kind progress is logged, in
// records. Zero disables progress logging.
func WithProgressEvery(n int) Option {
	return func(o *Orchestrator) { o.progressEvery = n }
}

// WithChecksums enables content checksum verification on top of count
// reconciliation.
func WithChecksums(enabled bool) Option {
	return func(o *Orchestrator) { o.checksums = enabled }
}

// WithClock replaces the time source. Tests use this for deterministic
// reports.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an Orchestrator for one target database.
func New(dial SourceDialer, dbPath string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dial:          dial,
		dbPath:        dbPath,
		log:           slog.Default(),
		now:           time.Now,
		batchSize:     defaultBatchSize,
		progressEvery: defaultProgressEvery,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one migration. The returned report is always non-nil and
// reflects everything that happened up to the terminal state; the error is
// non-nil exactly when the run failed.
//
// Connections open once at the start and close exactly once at the end.
// Cancellation is honoured between records and between kinds, never
// mid-write, so a cancelled run contains no partial rows and is rolled
// back like any other failure.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := newReport()
	report.StartedAt = o.now()

	o.transition(report, StateConnecting)

	src, err := o.dial(ctx)
	if err != nil {
		return o.fail(ctx, report, nil, NewConnectionError("source", err))
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			o.log.Warn("closing source connection", "error", cerr)
		}
	}()

	if err := src.Ping(ctx); err != nil {
		return o.fail(ctx, report, nil, NewConnectionError("source", err))
	}

	st, err := store.Open(o.dbPath)
	if err != nil {
		return o.fail(ctx, report, nil, NewConnectionError("target database", err))
	}
	stClosed := false
	closeStore := func() {
		if stClosed {
			return
		}
		stClosed = true
		if cerr := st.Close(); cerr != nil {
			o.log.Warn("closing target store", "error", cerr)
		}
	}
	defer closeStore()

	// Safety backup before the first write. Refusing to migrate without one
	// is deliberate: rollback is the only way out of a half-migrated target.
	if o.snap != nil {
		rec, err := o.snap.CreateDatabase(ctx, st)
		if err != nil {
			return o.fail(ctx, report, nil, NewBackupError(err))
		}
		report.BackupName = rec.Name
		o.log.Info("pre-migration backup created", "name", rec.Name)
	}

	mapper := idmap.New()
	var digests *entity.DigestSet
	if o.checksums {
		digests = entity.NewDigestSet()
	}

	o.transition(report, StateImporting)
	im := &importer{
		src:           src,
		st:            st,
		mapper:        mapper,
		log:           o.log,
		batchSize:     o.batchSize,
		progressEvery: o.progressEvery,
		report:        report,
		digests:       digests,
		promptKeys:    make(map[string]bool),
	}
	if err := im.run(ctx); err != nil {
		return o.fail(ctx, report, closeStore, classify(err, "import"))
	}

	o.transition(report, StateResolvingRelationships)
	res := &resolver{src: src, st: st, mapper: mapper, log: o.log, report: report}
	if err := res.run(ctx); err != nil {
		return o.fail(ctx, report, closeStore, classify(err, "relationship resolution"))
	}

	o.transition(report, StateVerifying)
	ver := &verifier{st: st, log: o.log, report: report, digests: im.digests}
	if err := ver.run(ctx); err != nil {
		return o.fail(ctx, report, closeStore, classify(err, "verification"))
	}

	o.transition(report, StateSucceeded)
	report.FinishedAt = o.now()
	o.log.Info("migration succeeded",
		"imported", report.TotalImported(),
		"skipped", report.TotalSkipped(),
		"links", report.LinksCreated,
		"duration", report.Duration())
	return report, nil
}

func (o *Orchestrator) transition(report *Report, s State) {
	report.State = s
	o.log.Info("migration state", "state", s)
}

// fail marks the run failed and, when writes may have landed (closeStore
// non-nil) and a safety backup exists, rolls the target back to it. The
// rollback runs on a detached context so a cancelled run can still restore.
func (o *Orchestrator) fail(ctx context.Context, report *Report, closeStore func(), cause error) (*Report, error) {
	report.State = StateFailed
	report.Failure = cause.Error()
	report.FinishedAt = o.now()
	o.log.Error("migration failed", "error", cause)

	if closeStore != nil && report.BackupName != "" && o.snap != nil {
		closeStore()
		rctx := context.WithoutCancel(ctx)
		if _, rerr := o.snap.Restore(rctx, report.BackupName); rerr != nil {
			o.log.Error("rollback failed, target left as the failure left it",
				"backup", report.BackupName, "error", rerr)
		} else {
			report.RolledBack = true
			o.log.Info("target rolled back to pre-migration backup", "backup", report.BackupName)
		}
	}

	return report, cause
}

// classify wraps pipeline errors that are not already MigrationErrors:
// context cancellation becomes CANCELLED with the stage recorded; anything
// else keeps its message with the stage prefixed.
func classify(err error, stage string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(stage, err)
	}
	var me *MigrationError
	if errors.As(err, &me) {
		return err
	}
	return fmt.Errorf("%s: %w", stage, err)
}
