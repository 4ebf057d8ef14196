// Command server boots the full review orchestrator process: it wires
// every component built under internal/ via constructor injection and
// serves the HTTP surface. No framework owns the wiring -- it is one
// linear main, the same shape the teacher's root plugin.go uses to build
// its Plugin{} struct field by field in OnActivate.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/agents"
	"github.com/prreview/orchestrator/internal/config"
	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/httpapi"
	"github.com/prreview/orchestrator/internal/ingestion"
	"github.com/prreview/orchestrator/internal/llm"
	"github.com/prreview/orchestrator/internal/logging"
	"github.com/prreview/orchestrator/internal/orchestrator"
	"github.com/prreview/orchestrator/internal/predictive"
	"github.com/prreview/orchestrator/internal/preference"
	"github.com/prreview/orchestrator/internal/publisher"
	"github.com/prreview/orchestrator/internal/provider/ghclient"
	"github.com/prreview/orchestrator/internal/realtime"
	"github.com/prreview/orchestrator/internal/workflow"
)

func main() {
	log := logging.New("server")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	repos, closeStore, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize persistence")
	}
	defer closeStore()

	gh := ghclient.NewClient(cfg.GitHubToken)
	runtime := llm.NewRuntime(cfg, log)
	prefs := preference.New(repos.preferences)
	publish := publisher.New(gh, repos.artifacts, log.WithField("component", "publisher"))

	bus, err := realtime.NewBus(cfg.BusURL, log.WithField("component", "realtime"))
	if err != nil {
		log.WithError(err).Fatal("failed to connect to realtime bus")
	}
	defer bus.Close()

	tokenAuth := httpapi.NewTokenAuthenticator(cfg.WebhookSecret)
	hub := realtime.NewHub(bus, tokenAuth, log.WithField("component", "realtime"))
	heartbeat := realtime.NewHeartbeat(hub, log.WithField("component", "realtime"))
	if err := heartbeat.Start(); err != nil {
		log.WithError(err).Fatal("failed to start realtime heartbeat")
	}
	defer heartbeat.Stop()

	descriptors := agents.Registry(runtime, prefs)
	orch := orchestrator.New(descriptors, repos.agentRuns, runtime.Budget(), prContextAdapter{gh}, cfg.MaxConcurrentWorkflows, cfg.MaxAgentsPerWorkflow, log.WithField("component", "orchestrator"))

	engine := workflow.New(repos.workflows, repos.agentRuns, orch, publish, hub, cfg.DebounceWindow(), log.WithField("component", "workflow"))
	if err := engine.Resume(context.Background()); err != nil {
		log.WithError(err).Error("failed to resume in-flight workflows")
	}

	gateway := ingestion.New(cfg.WebhookSecret, repos.deliveries, alwaysEnabledResolver{}, engine, log.WithField("component", "ingestion"), 0, 0)

	predictor := predictive.NewPredictor(repos.workflows, repos.agentRuns, repos.artifacts, repos.decisions, repos.events)
	trainer := predictive.NewTrainer(repos.workflows, repos.agentRuns, repos.artifacts, repos.decisions, repos.events, log.WithField("component", "predictive"))
	startTrainingSchedule(trainer, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Webhook:     gateway,
		Workflows:   repos.workflows,
		Engine:      engine,
		Predictor:   predictor,
		Preferences: prefs,
		Decisions:   repos.decisions,
		Hub:         hub,
		Auth:        tokenAuth,
		Log:         log.WithField("component", "httpapi"),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server exited")
		}
	}()

	waitForShutdown(srv, log)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then drains in-flight
// requests, mirroring the graceful-shutdown expectation of a long-lived
// service (the teacher, a Mattermost plugin, has no process lifecycle of
// its own to manage -- the host process owns it).
func waitForShutdown(srv *http.Server, log *logrus.Entry) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// startTrainingSchedule retrains every repository's predictive-health
// model hourly (§4.8 "retrained periodically as new outcomes arrive"),
// using robfig/cron the same way internal/realtime/heartbeat.go schedules
// its sweep rather than a bare time.Ticker goroutine.
func startTrainingSchedule(trainer *predictive.Trainer, log *logrus.Entry) {
	c := cron.New()
	_, err := c.AddFunc("@hourly", func() {
		if err := trainer.TrainAll(context.Background()); err != nil {
			log.WithError(err).Warn("predictive-health retraining pass failed")
		}
	})
	if err != nil {
		log.WithError(err).Fatal("failed to schedule predictive-health training")
	}
	c.Start()
}

// prContextAdapter bridges ghclient.Client's LoadPRContext method to the
// orchestrator.PRContext interface's Load method -- the same operation
// under two names in two packages that evolved independently.
type prContextAdapter struct {
	gh ghclient.Client
}

func (a prContextAdapter) Load(ctx context.Context, wf *domain.Workflow) (changedFiles []agents.ChangedFile, prBody string, err error) {
	return a.gh.LoadPRContext(ctx, wf)
}

// alwaysEnabledResolver is the default RepoConfigResolver: every
// repository is processed with no branch exclusions, until a real
// per-repository configuration store exists (§9 Open Questions: "no
// environment-variable fallback" for installation id, but repository
// processing policy defaults have no such constraint named).
type alwaysEnabledResolver struct{}

func (alwaysEnabledResolver) Resolve(ctx context.Context, repositoryID string) (ingestion.RepoConfig, error) {
	return ingestion.RepoConfig{}, nil
}
