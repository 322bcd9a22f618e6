package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/praxian-ai/scout/internal/assistant"
	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/classifier"
	cfg "github.com/praxian-ai/scout/internal/config"
	"github.com/praxian-ai/scout/internal/db"
	"github.com/praxian-ai/scout/internal/embeddings"
	"github.com/praxian-ai/scout/internal/gather"
	"github.com/praxian-ai/scout/internal/health"
	"github.com/praxian-ai/scout/internal/knowledge"
	"github.com/praxian-ai/scout/internal/orchestrator"
	"github.com/praxian-ai/scout/internal/progress"
	"github.com/praxian-ai/scout/internal/ratecontrol"
	"github.com/praxian-ai/scout/internal/session"
	"github.com/praxian-ai/scout/internal/tasks"
	"github.com/praxian-ai/scout/internal/webtool"
)

func main() {
	conf, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(conf.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Session store (Redis). Everything downstream shares its client.
	sessions, err := session.NewManager(conf.Redis.Addr, logger)
	if err != nil {
		logger.Fatal("Failed to connect session store", zap.Error(err))
	}
	defer sessions.Close()

	// Generation backend with the rotating credential pool.
	pool := make([]backend.Credential, 0, len(conf.Backend.APIKeys))
	for i, key := range conf.Backend.APIKeys {
		pool = append(pool, backend.Credential{
			APIKey: key,
			Label:  fmt.Sprintf("key-%d", i+1),
		})
	}
	gemini, err := backend.NewGemini(pool, conf.Backend.Model, logger)
	if err != nil {
		logger.Fatal("Failed to initialize generation backend", zap.Error(err))
	}

	// Embedding service backing the knowledge store.
	var embedCache embeddings.Cache
	if c, err := embeddings.NewRedisCache(conf.Redis.Addr, logger); err == nil {
		embedCache = c
	} else {
		logger.Warn("Embeddings Redis cache unavailable, using local LRU only", zap.Error(err))
	}
	embeddings.Initialize(embeddings.Config{
		BaseURL:      conf.Embeddings.BaseURL,
		DefaultModel: conf.Embeddings.Model,
		CacheTTL:     conf.Embeddings.CacheTTL,
		MaxLRU:       conf.Embeddings.MaxLRU,
	}, embedCache)

	// Qdrant-backed company knowledge.
	kbClient := knowledge.NewClient(knowledge.Config{
		Enabled:        conf.Knowledge.Enabled,
		Host:           conf.Knowledge.Host,
		Port:           conf.Knowledge.Port,
		Documents:      conf.Knowledge.Documents,
		Reference:      conf.Knowledge.Reference,
		TopK:           conf.Knowledge.TopK,
		Threshold:      conf.Knowledge.Threshold,
		Timeout:        conf.Knowledge.Timeout,
		MinDocuments:   conf.Knowledge.MinDocuments,
		MinQuality:     conf.Knowledge.MinQuality,
		SampleSize:     conf.Knowledge.SampleSize,
		EmbeddingModel: conf.Embeddings.Model,
	}, logger)
	kb := knowledge.NewStore(kbClient, embeddings.Get(), gemini, logger)
	if conf.Knowledge.Enabled {
		loadReferenceDocuments(kb, conf.Knowledge.ReferenceDir, conf.Vendor.Name, logger)
	}

	// Web tooling for the gathering phase. Scraped pages are cached in
	// the same Redis instance behind the session breaker.
	pageCache := webtool.NewPageCache(sessions.Redis(), 24*time.Hour)
	scraper := webtool.NewScraper(pageCache, logger)
	searcher := webtool.NewSearcher(logger)

	prog := progress.NewManager(0)
	gatherer := gather.New(kb, searcher, scraper, prog, logger)

	rewriter := classifier.NewPersonaRewriter(conf.Vendor.Name)
	runner := tasks.NewRunner(gemini, kb, rewriter, logger)

	orch := orchestrator.New(orchestrator.Config{
		MaxParallel: conf.Orchestrator.MaxParallel,
		TaskTimeout: conf.Orchestrator.TaskTimeout,
		Vendor:      conf.Vendor.Name,
	}, gatherer, runner, prog, logger)
	followUps := orchestrator.NewFollowUpResolver(gemini, runner, logger)
	intent := classifier.New(gemini, logger)

	// Postgres plan archive is optional.
	var dbClient *db.Client
	var persister assistant.Persister
	if conf.Postgres.Enabled {
		dbClient, err = db.NewClient(&db.Config{
			Host:     conf.Postgres.Host,
			Port:     conf.Postgres.Port,
			User:     conf.Postgres.User,
			Password: conf.Postgres.Password,
			Database: conf.Postgres.Database,
			SSLMode:  conf.Postgres.SSLMode,
		}, logger)
		if err != nil {
			logger.Warn("Plan archive unavailable, continuing without persistence", zap.Error(err))
		} else {
			defer dbClient.Close()
			persister = dbClient
		}
	}

	asst := assistant.New(sessions, intent, orch, followUps, gemini, rewriter, persister, logger)

	// Ops surface: health endpoints plus Prometheus metrics.
	hm := health.NewManager(logger)
	registerCheckers(hm, sessions, dbClient, conf, logger)
	hm.Start()
	defer hm.Stop()
	opsServer := health.StartServer(hm, conf.Server.MetricsPort, logger)

	// Hot-reload of the config directory. Rate limit changes, the
	// sufficiency gate, and the parallelism cap apply without a restart.
	startConfigWatcher(kb, orch, logger)

	logger.Info("scout ready",
		zap.String("vendor", conf.Vendor.Name),
		zap.String("model", conf.Backend.Model),
		zap.Int("credentials", len(pool)),
		zap.Bool("persistence", persister != nil),
	)

	runConsole(asst, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Ops server shutdown", zap.Error(err))
	}
	logger.Info("scout stopped")
}

// runConsole drives one conversation over stdin until EOF or a signal.
func runConsole(asst *assistant.Assistant, logger *zap.Logger) {
	conversationID := uuid.NewString()
	logger.Info("console session started", zap.String("conversation_id", conversationID))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("Ask me to research a company. Ctrl-D to exit.")
	fmt.Print("> ")
	for {
		select {
		case sig := <-sigCh:
			fmt.Println()
			logger.Info("signal received", zap.String("signal", sig.String()))
			return
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				return
			}
			if line == "" {
				fmt.Print("> ")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			reply, err := asst.HandleMessage(ctx, conversationID, line)
			cancel()
			if err != nil {
				logger.Error("message handling failed", zap.Error(err))
				fmt.Println("Something went wrong on my end. Please try again.")
			} else {
				fmt.Println(reply.Text)
			}
			fmt.Print("> ")
		}
	}
}

func registerCheckers(hm *health.Manager, sessions *session.Manager, dbClient *db.Client, conf *cfg.Config, logger *zap.Logger) {
	if err := hm.Register(health.NewRedisChecker(sessions.Redis())); err != nil {
		logger.Warn("redis checker", zap.Error(err))
	}
	if dbClient != nil {
		if err := hm.Register(health.NewDatabaseChecker(dbClient.Wrapped())); err != nil {
			logger.Warn("postgres checker", zap.Error(err))
		}
	}
	if conf.Knowledge.Enabled {
		url := fmt.Sprintf("http://%s:%d/readyz", conf.Knowledge.Host, conf.Knowledge.Port)
		if err := hm.Register(health.NewHTTPChecker("qdrant", url, true)); err != nil {
			logger.Warn("qdrant checker", zap.Error(err))
		}
	}
	if conf.Embeddings.BaseURL != "" {
		url := conf.Embeddings.BaseURL + "/health"
		if err := hm.Register(health.NewHTTPChecker("embeddings", url, false)); err != nil {
			logger.Warn("embeddings checker", zap.Error(err))
		}
	}
}

func startConfigWatcher(kb *knowledge.Store, orch *orchestrator.Orchestrator, logger *zap.Logger) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/scout.yaml"
	}
	dir := filepath.Dir(configPath)

	mgr, err := cfg.NewManager(dir, logger)
	if err != nil {
		logger.Warn("Config watcher init failed", zap.Error(err))
		return
	}
	mgr.RegisterHandler("ratelimits.yaml", func(ev cfg.ChangeEvent) error {
		ratecontrol.Reload()
		logger.Info("Rate limits reloaded", zap.String("file", ev.File), zap.String("action", ev.Action))
		return nil
	})
	mgr.RegisterHandler(filepath.Base(configPath), func(ev cfg.ChangeEvent) error {
		updated, err := cfg.Load()
		if err != nil {
			return err
		}
		kb.SetGate(updated.Knowledge.MinDocuments, updated.Knowledge.MinQuality, updated.Knowledge.SampleSize)
		orch.SetMaxParallel(updated.Orchestrator.MaxParallel)
		logger.Info("Runtime knobs reloaded",
			zap.String("file", ev.File),
			zap.Int("min_documents", updated.Knowledge.MinDocuments),
			zap.Float64("min_quality", updated.Knowledge.MinQuality),
			zap.Int("max_parallel", updated.Orchestrator.MaxParallel),
		)
		return nil
	})
	if err := mgr.Start(); err != nil {
		logger.Warn("Config watcher start failed", zap.Error(err))
	}
}

// loadReferenceDocuments seeds the vendor reference collection from
// local markdown and text files. Best effort: a missing directory or a
// bad file is logged and skipped.
func loadReferenceDocuments(kb *knowledge.Store, dir, vendor string, logger *zap.Logger) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug("No reference directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	var docs []knowledge.Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".md" && ext != ".txt" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn("Skipping reference file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		docs = append(docs, knowledge.Document{
			Company:  vendor,
			Title:    strings.TrimSuffix(entry.Name(), ext),
			Content:  string(content),
			Source:   "reference",
			Category: "reference",
			Quality:  1.0,
		})
	}
	if len(docs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := kb.AddReferenceDocuments(ctx, docs); err != nil {
		logger.Warn("Reference ingestion failed", zap.Error(err))
		return
	}
	logger.Info("Reference documents loaded", zap.Int("count", len(docs)), zap.String("dir", dir))
}

func buildLogger(lc cfg.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
