package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/On-Jun9/MetaPipe/internal/config"
	"github.com/On-Jun9/MetaPipe/internal/crosswalk"
	"github.com/On-Jun9/MetaPipe/internal/library"
	"github.com/On-Jun9/MetaPipe/internal/log"
	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/internal/scanner"
	"github.com/On-Jun9/MetaPipe/internal/state"
	"github.com/On-Jun9/MetaPipe/internal/storage"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

type Pipeline struct {
	registry     *metadata.Registry
	orchestrator *Orchestrator
	mapper       *crosswalk.Mapper
	records      RecordStore
	graph        ResourceGraph
	files        FileStore
	localFiles   bool
	scanner      *scanner.Scanner

	jobs           int
	disableMapping bool
	watchSettle    time.Duration

	itemLocks        *keyedMutex
	logger           *log.Logger
	progressCallback ProgressCallback
	closers          []io.Closer
}

// Deps are the collaborators of a Pipeline. Registry, Records and Graph are
// required; a nil Catalog falls back to Graph when it implements
// PropertyCatalog.
type Deps struct {
	Registry       *metadata.Registry
	MediaTypes     types.MediaTypeTable
	Rules          []types.CrosswalkRule
	Records        RecordStore
	Graph          ResourceGraph
	Catalog        PropertyCatalog
	Files          FileStore
	Logger         *log.Logger
	Jobs           int
	DisableMapping bool
}

// NewRegistry registers the built-in extractors and exiftool, limited to
// the names in cfg.Extractors when that list is not empty.
func NewRegistry(cfg *config.Config) *metadata.Registry {
	allowed := map[string]bool{}
	for _, name := range cfg.Extractors {
		allowed[name] = true
	}
	reg := metadata.NewRegistry()
	add := func(name string, e metadata.Extractor) {
		if len(allowed) == 0 || allowed[name] {
			reg.Register(name, e)
		}
	}
	add(metadata.ExifName, metadata.NewEXIFExtractor())
	add(metadata.TagName, metadata.NewAudioTagExtractor())
	add(metadata.ID3v2Name, metadata.NewID3v2Extractor())
	add(metadata.SidecarName, metadata.NewSidecarXMLExtractor())
	add(metadata.ExiftoolName, metadata.NewExiftoolExtractor(cfg.Exiftool.Path, metadata.NewExecRunner(cfg.Exiftool.Timeout)))
	return reg
}

// New builds a Pipeline from a validated config: logger, record store,
// library, file storage, extractors and crosswalk.
func New(cfg *config.Config) (*Pipeline, error) {
	logger, err := log.New(cfg.LogFile, cfg.LogJSON, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	closers := []io.Closer{logger}
	fail := func(err error) (*Pipeline, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, err
	}

	var records RecordStore
	switch cfg.Store.Driver {
	case config.StoreMySQL, config.StorePostgres:
		store, db, err := state.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, dbCloser{db})
		if err := store.Migrate(context.Background()); err != nil {
			return fail(err)
		}
		records = store
	default:
		store, err := state.Load(cfg.Store.File)
		if err != nil {
			return fail(err)
		}
		records = store
	}

	lib, err := library.Load(cfg.LibraryFile)
	if err != nil {
		return fail(err)
	}

	files, err := storage.New(storage.Options{
		Backend:    cfg.Files.Backend,
		LocalDir:   cfg.Files.LocalDir,
		HashVerify: cfg.Files.HashVerify,
		S3:         cfg.Files.S3,
	})
	if err != nil {
		return fail(err)
	}

	rules, err := cfg.ResolveCrosswalk()
	if err != nil {
		return fail(err)
	}

	p := NewWithDeps(Deps{
		Registry:       NewRegistry(cfg),
		MediaTypes:     cfg.MediaTypes.Table(),
		Rules:          rules,
		Records:        records,
		Graph:          lib,
		Catalog:        lib,
		Files:          files,
		Logger:         logger,
		Jobs:           cfg.Jobs,
		DisableMapping: cfg.DisableMapping,
	})
	p.closers = closers
	p.logger.Debug("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("files", cfg.Files.Backend),
		zap.Strings("extractors", p.registry.Names()),
		zap.Int("rules", len(rules)))
	return p, nil
}

func NewWithDeps(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	catalog := d.Catalog
	if catalog == nil {
		catalog, _ = d.Graph.(PropertyCatalog)
	}
	jobs := d.Jobs
	if jobs < 1 {
		jobs = 1
	}

	scanTypes := make([]string, 0, len(d.MediaTypes))
	for mt := range d.MediaTypes {
		scanTypes = append(scanTypes, mt)
	}
	sort.Strings(scanTypes)

	_, local := d.Files.(*storage.Local)

	return &Pipeline{
		registry:       d.Registry,
		orchestrator:   NewOrchestrator(d.Registry, d.MediaTypes, d.Records, logger.Logger),
		mapper:         crosswalk.New(d.Rules, d.Graph, catalog, crosswalk.WithLogger(logger.Logger)),
		records:        d.Records,
		graph:          d.Graph,
		files:          d.Files,
		localFiles:     local,
		scanner:        scanner.New(scanTypes),
		jobs:           jobs,
		disableMapping: d.DisableMapping,
		watchSettle:    time.Second,
		itemLocks:      newKeyedMutex(),
		logger:         logger,
	}
}

func (p *Pipeline) SetProgressCallback(cb ProgressCallback) {
	p.progressCallback = cb
}

func (p *Pipeline) emit(u ProgressUpdate) {
	if p.progressCallback != nil {
		p.progressCallback(u)
	}
}

// Extractors reports every registered extractor and whether it can run now.
func (p *Pipeline) Extractors() []metadata.Status {
	return p.registry.Statuses()
}

// Rules returns the crosswalk in effect.
func (p *Pipeline) Rules() []types.CrosswalkRule {
	return p.mapper.Rules()
}

// Logger returns the pipeline logger for callers sharing its sinks.
func (p *Pipeline) Logger() *log.Logger {
	return p.logger
}

func (p *Pipeline) Close() error {
	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil
	return firstErr
}

type dbCloser struct{ db *sql.DB }

func (c dbCloser) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
