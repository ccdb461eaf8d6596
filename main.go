package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/reservation-concierge/agent/agents/orchestrator"
	"github.com/tanpawarit/reservation-concierge/agent/llm"
	"github.com/tanpawarit/reservation-concierge/agent/memory"
	"github.com/tanpawarit/reservation-concierge/agent/prompt"
	reservationx "github.com/tanpawarit/reservation-concierge/agent/reservation"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
	toolx "github.com/tanpawarit/reservation-concierge/agent/tool"
	"github.com/tanpawarit/reservation-concierge/api"
	configx "github.com/tanpawarit/reservation-concierge/pkg/config"
	_ "github.com/tanpawarit/reservation-concierge/pkg/logger/autoload"
	qstashx "github.com/tanpawarit/reservation-concierge/pkg/qstash"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("concierge stopped")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Configs implementing Validate are checked while loading.
	llmCfg := configx.MustNew[llm.Config]("LLM")
	memCfg := configx.MustNew[memory.Config]("MEMORY")
	stateCfg := configx.MustNew[statex.StoreConfig]("STATE")
	redisCfg := configx.MustNew[statex.RedisConfig]("REDIS")
	upstashCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	pgCfg := configx.MustNew[reservationx.PostgresConfig]("POSTGRES")
	mcpCfg := configx.MustNew[toolx.MCPConfig]("MCP")
	orchCfg := configx.MustNew[orchestrator.Config]("ORCHESTRATOR")
	apiCfg := configx.MustNew[api.Config]("API")
	waCfg := configx.MustNew[api.WhatsAppConfig]("WHATSAPP")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")

	// Long-term memory.
	embed, err := memory.NewEmbeddingFunc(*memCfg)
	if err != nil {
		return err
	}
	index, err := memory.NewChromemIndex(*memCfg, embed)
	if err != nil {
		return err
	}
	memStore, err := memory.NewStore(index, *memCfg)
	if err != nil {
		return err
	}
	log.Info().Str("embedder", memCfg.Embedder).Str("persist_path", memCfg.PersistPath).Msg("memory store ready")

	// Reservation tools: MCP first, native tools for anything it does not list.
	var executors []toolx.Executor
	if mcpCfg.Enabled() {
		mcpExec, err := toolx.ConnectMCP(ctx, *mcpCfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := mcpExec.Close(); err != nil {
				log.Warn().Err(err).Msg("close mcp session")
			}
		}()
		executors = append(executors, mcpExec)
		log.Info().Msg("mcp tool session connected")
	}

	var repo reservationx.Repository = reservationx.NewMemoryRepository()
	if pgCfg.Enabled() {
		db, err := reservationx.OpenPostgres(ctx, *pgCfg)
		if err != nil {
			return err
		}
		defer db.Close()
		pgRepo := reservationx.NewPostgresRepository(db)
		if err := pgRepo.Migrate(ctx); err != nil {
			return err
		}
		repo = pgRepo
		log.Info().Msg("postgres reservation repository ready")
	}
	executors = append(executors, reservationx.NewTools(repo))

	// Session state.
	store, closeStore, err := statex.OpenStore(ctx, *stateCfg, *redisCfg, *upstashCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("close state store")
		}
	}()
	log.Info().Str("backend", stateCfg.Backend).Msg("state store ready")

	orch, err := orchestrator.New(orchestrator.Deps{
		Defaults:      *llmCfg,
		Factory:       *llmCfg,
		Prompts:       prompt.LoadPromptSet(),
		Writer:        memStore,
		Searcher:      memStore,
		TopK:          memCfg.TopK,
		Executor:      toolx.NewRouter(executors...),
		MaxToolRounds: llmCfg.MaxToolRounds,
		Store:         store,
	}, *orchCfg)
	if err != nil {
		return err
	}

	var whatsapp *api.WhatsAppHandler
	if waCfg.Enabled() {
		sender, err := api.NewGraphClient(*waCfg)
		if err != nil {
			return err
		}
		var queue api.Queue
		if qstashCfg.Enabled() {
			queue = qstashx.MustNew(*qstashCfg)
			log.Info().Msg("whatsapp jobs are queued through qstash")
		}
		whatsapp, err = api.NewWhatsAppHandler(*waCfg, *apiCfg, orch, sender, queue)
		if err != nil {
			return err
		}
	}

	server, err := api.NewServer(*apiCfg, orch, memStore, whatsapp)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         apiCfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  apiCfg.ReadTimeout,
		WriteTimeout: apiCfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	stop()

	log.Info().Msg("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), apiCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
