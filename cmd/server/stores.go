package main

import (
	"github.com/sirupsen/logrus"

	"github.com/prreview/orchestrator/internal/config"
	"github.com/prreview/orchestrator/internal/store"
	"github.com/prreview/orchestrator/internal/store/memstore"
	"github.com/prreview/orchestrator/internal/store/redisstore"
)

// repoSet is every per-entity repository the rest of main.go wires into
// its components, picked once at startup rather than threaded through as
// seven separate constructor arguments.
type repoSet struct {
	workflows   store.WorkflowRepo
	agentRuns   store.AgentRunRepo
	artifacts   store.ArtifactRepo
	decisions   store.DecisionRepo
	preferences store.PreferenceRepo
	events      store.AnalyticsEventRepo
	deliveries  store.DeliveryRepo
}

// buildStores selects memstore (DevMode, or no DB_URL configured) or
// redisstore (DB_URL set) for every entity uniformly -- this process never
// mixes backends, so a crash mid-workflow always resumes against the same
// store it checkpointed to.
func buildStores(cfg *config.Config, log *logrus.Entry) (repoSet, func(), error) {
	if cfg.DevMode || cfg.DBURL == "" {
		log.Info("using in-memory store (DevMode or no DB_URL configured)")
		return repoSet{
			workflows:   memstore.NewWorkflowStore(),
			agentRuns:   memstore.NewAgentRunStore(),
			artifacts:   memstore.NewArtifactStore(),
			decisions:   memstore.NewDecisionStore(),
			preferences: memstore.NewPreferenceStore(),
			events:      memstore.NewAnalyticsEventStore(),
			deliveries:  memstore.NewDeliveryStore(),
		}, func() {}, nil
	}

	client, err := redisstore.NewClient(cfg.DBURL, log.WithField("component", "redisstore"))
	if err != nil {
		return repoSet{}, func() {}, err
	}
	return repoSet{
		workflows:   redisstore.NewWorkflowStore(client),
		agentRuns:   redisstore.NewAgentRunStore(client),
		artifacts:   redisstore.NewArtifactStore(client),
		decisions:   redisstore.NewDecisionStore(client),
		preferences: redisstore.NewPreferenceStore(client),
		events:      redisstore.NewAnalyticsEventStore(client),
		deliveries:  redisstore.NewDeliveryStore(client),
	}, func() { _ = client.Close() }, nil
}
