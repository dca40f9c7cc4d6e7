// Package daemon wires together every subsystem named in SPEC_FULL.md —
// Storage Orchestrator, Task Scheduler, Indexing Pipeline, Contemplation
// Engine, Session-Continuity Bridge — into one process, the way the
// teacher's cli package opens and closes its database around a cobra
// command tree. internal/cli drives this package; this package contains
// no cobra/flag parsing of its own.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/AbdouB/memoryd/internal/bridge"
	"github.com/AbdouB/memoryd/internal/classify"
	"github.com/AbdouB/memoryd/internal/config"
	"github.com/AbdouB/memoryd/internal/contemplation"
	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/indexing"
	"github.com/AbdouB/memoryd/internal/logging"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/orchestrator"
	"github.com/AbdouB/memoryd/internal/scheduler"
	"github.com/AbdouB/memoryd/internal/store"
)

// Daemon owns every long-lived subsystem and the single database
// connection they share.
type Daemon struct {
	cfg *config.LoadResult
	db  *store.DB

	facts    *store.FactStore
	patterns *store.PatternStore
	insights *store.InsightStore
	chunks   *store.ChunkStore
	raw      *store.RawStore
	sessions *store.SessionStore
	symbols  *store.CodeSymbolStore
	hashes   *store.FileHashStore
	bridges  *store.BridgeStore
	ledger   *store.ExtractionLedger
	projects *store.ProjectStore

	embed embedding.Service

	orch          *orchestrator.Orchestrator
	sched         *scheduler.Scheduler
	contemplation *contemplation.Engine
	searcher      *indexing.Searcher
	codebaseIx    *indexing.CodebaseIndexer
	conversation  *indexing.ConversationIndexer
	memoryIx      *indexing.MemoryIndexer
	watcher       *indexing.Watcher
}

// Open loads config, opens the database, and wires every subsystem —
// equivalent to the teacher's PersistentPreRunE database-open step,
// generalized to everything this daemon owns.
func Open(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.DefaultConfig())

	dbPath := store.DefaultDBPath(cfg.Config.HomeDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	embed := embedding.NewStub(cfg.Config.Storage.ChromaDimensions)

	d := &Daemon{
		cfg:      cfg,
		db:       db,
		facts:    store.NewFactStore(db),
		patterns: store.NewPatternStore(db),
		insights: store.NewInsightStore(db),
		chunks:   store.NewChunkStore(db),
		raw:      store.NewRawStore(db),
		sessions: store.NewSessionStore(db),
		symbols:  store.NewCodeSymbolStore(db),
		hashes:   store.NewFileHashStore(db),
		bridges:  store.NewBridgeStore(db),
		ledger:   store.NewExtractionLedger(db),
		projects: store.NewProjectStore(db),
		embed:    embed,
	}

	d.orch = orchestrator.New(d.facts, d.chunks, d.raw, d.ledger, d.embed, cfg.Generation)
	d.searcher = indexing.NewSearcher(d.chunks, d.embed)
	d.codebaseIx = indexing.NewCodebaseIndexer(d.chunks, d.symbols, d.hashes, d.projects, d.embed)
	d.conversation = indexing.NewConversationIndexer(d.sessions, d.chunks, d.facts, d.embed)
	d.memoryIx = indexing.NewMemoryIndexer(d.chunks, d.facts, d.embed)
	d.contemplation = contemplation.New(d.facts, d.patterns, d.insights, d.chunks, scheduler.SystemSampler{})

	maxWorkers := cfg.Config.Scheduler.MaxWorkers
	d.sched = scheduler.New(maxWorkers)

	return d, nil
}

// Start starts the worker pool and registers every periodic task named in
// §4.1/§4.3/§4.4: the contemplation cycle, the conversation-indexing sweep,
// the memory optimization sweep, and the bridge-retention prune.
func (d *Daemon) Start() {
	d.sched.Start()

	interval := time.Duration(d.cfg.Config.Contemplation.IntervalMs) * time.Millisecond
	d.sched.RegisterPeriodic(&models.PeriodicTask{
		Name:     "contemplation-cycle",
		Priority: models.PriorityNormal,
		Interval: interval,
		Handler: func(rc *models.RunContext) (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			summary, err := d.contemplation.Run(ctx)
			if err != nil && err != contemplation.ErrCycleAlreadyRunning {
				return nil, err
			}
			return summary, nil
		},
	})

	d.sched.RegisterPeriodic(&models.PeriodicTask{
		Name:     "conversation-indexing-sweep",
		Priority: models.PriorityNormal,
		Interval: 2 * time.Minute,
		Handler: func(rc *models.RunContext) (any, error) {
			return d.IndexUnindexedSessions(50)
		},
	})

	d.sched.RegisterPeriodic(&models.PeriodicTask{
		Name:     "memory-optimization-sweep",
		Priority: models.PriorityLow,
		Interval: 30 * time.Minute,
		Handler: func(rc *models.RunContext) (any, error) {
			return d.memoryIx.Sweep(100)
		},
	})

	retentionDays := d.cfg.Config.SessionContinuity.BridgeRetentionDays
	d.sched.RegisterPeriodic(&models.PeriodicTask{
		Name:     "bridge-retention-sweep",
		Priority: models.PriorityDeferred,
		Interval: 24 * time.Hour,
		Handler: func(rc *models.RunContext) (any, error) {
			activated, unactivated, err := bridge.Prune(d.bridges, retentionDays, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			logging.L_info("pruned expired session bridges", "activated", activated, "unactivated", unactivated)
			return nil, nil
		},
	})
}

// Stop cancels the scheduler's periodic tasks and worker pool, then closes
// the database.
func (d *Daemon) Stop(deadline time.Duration) error {
	d.sched.Stop(deadline)
	return d.db.Close()
}

// IndexProject runs a one-shot codebase index pass, and starts a
// background change-detection watcher over root for as long as the
// daemon runs.
func (d *Daemon) IndexProject(root string) (indexed, skipped int, err error) {
	indexed, skipped, err = d.codebaseIx.IndexProject(root)
	if err != nil {
		return indexed, skipped, err
	}
	if d.watcher == nil {
		d.watcher = indexing.NewWatcher(root, d.codebaseIx)
		if watchErr := d.watcher.Start(); watchErr != nil {
			logging.L_warn("failed to start change-detection watcher", "root", root, "error", watchErr)
		}
	}
	return indexed, skipped, nil
}

// IndexUnindexedSessions drives ConversationIndexer.IndexSession over every
// session still flagged unindexed (§4.2.1), via the SessionStore.Unindexed
// query built for exactly this periodic sweep.
func (d *Daemon) IndexUnindexedSessions(limit int) (int, error) {
	sessions, err := d.sessions.Unindexed(limit)
	if err != nil {
		return 0, err
	}
	var total int
	for _, sess := range sessions {
		n, err := d.conversation.IndexSession(sess)
		if err != nil {
			logging.L_warn("conversation indexing sweep failed", "session_id", sess.SessionID, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

// IngestSession stores and indexes a conversation session in one step, the
// write path sessions enter the daemon through (§4.2.1).
func (d *Daemon) IngestSession(sess *models.ConversationSession) (chunked int, err error) {
	if err := d.sessions.Put(sess); err != nil {
		return 0, err
	}
	return d.conversation.IndexSession(sess)
}

// Search runs the search contract (§4.2.3) over a Semantic Store collection.
func (d *Daemon) Search(ctx context.Context, collection, query string, limit int) ([]indexing.Result, error) {
	return d.searcher.Search(ctx, collection, query, limit)
}

// Ingest routes content through the Storage Orchestrator (§4.5).
func (d *Daemon) Ingest(item orchestrator.Item) (orchestrator.Outcome, error) {
	return d.orch.Ingest(item)
}

// StatusReport is the status subcommand's payload.
type StatusReport struct {
	HomeDir      string          `json:"home_dir"`
	Bootstrapped bool            `json:"bootstrapped"`
	WorkerCount  int             `json:"worker_count"`
	Epistemic    bridge.Snapshot `json:"epistemic"`
}

// Status reports scheduler health plus the epistemic snapshot supplemental
// feature (SPEC_FULL.md "Epistemic snapshot").
func (d *Daemon) Status() (StatusReport, error) {
	snap, err := bridge.ComputeSnapshot(d.facts, d.patterns, d.insights)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		HomeDir:      d.cfg.Config.HomeDir,
		Bootstrapped: d.cfg.Bootstrapped,
		WorkerCount:  d.sched.WorkerCount(),
		Epistemic:    snap,
	}, nil
}

// ClassifyRoute exposes the classifier's decision for callers (tests,
// status reporting) that want to know where a write would land without
// actually ingesting it.
func ClassifyRoute(text, source string) classify.Route {
	return classify.Classify(classify.Input{Text: text, Source: source})
}
