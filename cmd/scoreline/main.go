package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldrally/scoreline/internal/httpapi"
	"github.com/fieldrally/scoreline/internal/realtime"
	"github.com/fieldrally/scoreline/internal/scoreline"
)

func main() {
	_ = godotenv.Load()

	addr := os.Getenv("SCORELINE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	snapshotStore, err := buildSnapshotStoreFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize snapshot store: %v", err)
	}

	policy := scoreline.NewPolicyHolder(scoreline.DefaultPolicyConfig())
	if policyFile := strings.TrimSpace(os.Getenv("SCORELINE_POLICY_FILE")); policyFile != "" {
		cfg, loadErr := scoreline.LoadPolicyFile(policyFile)
		if loadErr != nil {
			log.Fatalf("failed to load policy file %s: %v", policyFile, loadErr)
		}
		policy.Store(cfg)
		if watchErr := scoreline.WatchPolicyFile(context.Background(), policyFile, policy); watchErr != nil {
			log.Fatalf("failed to watch policy file %s: %v", policyFile, watchErr)
		}
	}

	store := scoreline.NewScoreStore()
	engine := scoreline.NewEngineWithOptions(store, scoreline.EngineOptions{
		ProfileTTL: durationEnv("SCORELINE_PROFILE_TTL", 0),
	})
	hub := realtime.NewHubWithOptions(engine, realtime.HubOptions{
		TopN:        intEnv("SCORELINE_LEADERBOARD_TOP_N", 0),
		SendBuffer:  intEnv("SCORELINE_SEND_BUFFER", 0),
		ReadTimeout: durationEnv("SCORELINE_WS_READ_TIMEOUT", 0),
	})
	recorder := scoreline.NewHistoryRecorder(engine, snapshotStore, scoreline.HistoryRecorderOptions{
		Interval:     durationEnv("SCORELINE_SNAPSHOT_INTERVAL", 0),
		DisableSweep: boolEnv("SCORELINE_DISABLE_SNAPSHOT_SWEEP", false),
	})
	recorder.Start()
	defer func() {
		_ = recorder.Close()
		_ = snapshotStore.Close()
	}()

	ingestor := scoreline.NewIngestor(engine, policy, hub)
	server := httpapi.NewServerWithConfig(engine, ingestor, recorder, hub, httpapi.ServerConfig{
		JWTSecret:       os.Getenv("SCORELINE_JWT_SECRET"),
		AllowDemoToken:  boolEnv("SCORELINE_ALLOW_DEMO_TOKEN", false),
		DemoOrgID:       strings.TrimSpace(os.Getenv("SCORELINE_DEMO_ORG_ID")),
		RateLimitMax:    intEnv("SCORELINE_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("SCORELINE_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("SCORELINE_MAX_BODY_BYTES", 0),
	})

	log.Printf("scoreline listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %t", name, raw, fallback)
		return fallback
	}
	return value
}

// buildSnapshotStoreFromEnv resolves the history backend from an explicit DSN
// or a named profile. With neither set, trend history stays in memory and is
// lost on restart; live rankings are ephemeral by design either way.
func buildSnapshotStoreFromEnv() (scoreline.SnapshotStore, error) {
	if dsn := strings.TrimSpace(os.Getenv("SCORELINE_HISTORY_DSN")); dsn != "" {
		store, err := scoreline.BuildSnapshotStoreFromDSN(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	profile := strings.ToLower(strings.TrimSpace(os.Getenv("SCORELINE_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("SCORELINE_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".scoreline"
	}
	switch profile {
	case "", "memory", "inmemory":
		return scoreline.NewMemorySnapshotStore(), nil
	case "durable-local", "local-durable":
		return scoreline.NewJSONFileSnapshotStore(filepath.Join(dataDir, "history.json")), nil
	case "production", "prod":
		dsn := strings.TrimSpace(os.Getenv("SCORELINE_POSTGRES_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("SCORELINE_POSTGRES_DSN is required when SCORELINE_BACKEND_PROFILE=%s", profile)
		}
		return scoreline.NewPostgresSnapshotStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported SCORELINE_BACKEND_PROFILE: %s", profile)
	}
}
