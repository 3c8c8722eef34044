package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"ocdscope/internal/config"
	"ocdscope/internal/profiles"
	"ocdscope/internal/sampler"
	"ocdscope/internal/sampler/fakesampler"
	"ocdscope/internal/sampler/memsampler"
	"ocdscope/internal/sampler/rttsampler"
	"ocdscope/internal/statusapi"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	serverCfg := config.LoadServerConfig()
	log.Info("starting ocdscope", "http_port", serverCfg.HTTPPort, "profile_db", serverCfg.ProfileDBPath)

	store, err := profiles.Open(serverCfg.ProfileDBPath)
	if err != nil {
		log.Error("failed to open profile store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	session := statusapi.NewSession(log)
	api := statusapi.New(session, store, log, newSamplerFor)

	sessionCfg := config.LoadSessionConfig()
	if smp, err := buildSampler(sessionCfg, log); err != nil {
		log.Warn("no acquisition backend started at boot; start one from a saved profile", "error", err)
	} else {
		session.Attach(smp, sessionCfg.AutoTruncate, sessionCfg.KeepLastSeconds)
	}

	log.Info("status/control API listening", "port", serverCfg.HTTPPort)
	if err := api.ListenAndServe(serverCfg.HTTPPort); err != nil {
		log.Error("status API failed", "error", err)
		os.Exit(1)
	}
}

// newSamplerFor adapts a saved profile into a runnable sampler for the
// /api/profiles/{id}/start endpoint.
func newSamplerFor(p profiles.Profile) (sampler.Sampler, error) {
	return buildSampler(p.SessionConfig(), slog.Default())
}

func buildSampler(cfg *config.SessionConfig, log *slog.Logger) (sampler.Sampler, error) {
	switch cfg.Method {
	case config.MethodSimulated:
		return fakesampler.New(cfg.SampleRateHz, clockwork.NewRealClock()), nil

	case config.MethodMemory:
		return memsampler.New(cfg.GDBEndpoint, cfg.SampleRateHz, nil, cfg.ElfPath, clockwork.NewRealClock(), log)

	case config.MethodRTT:
		return rttsampler.New(rttsampler.Config{
			TelnetAddr: cfg.TelnetEndpoint,
			Clock:      clockwork.NewRealClock(),
			Log:        log,
		})

	default:
		return nil, fmt.Errorf("ocdscope: unknown acquisition method %q", cfg.Method)
	}
}
