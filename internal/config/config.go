package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Config struct {
	LogLevel     string
	RiskMode     string
	DBPath       string
	LogDir       string
	ResponderURL string
	TimeoutMs    int

	TranscriptCap    int
	DetectionTailCap int
	HeartbeatMs      int
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func loadFromEnv() Config {
	level := os.Getenv("PROMPTBRIDGE_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	// RiskMode, DBPath and LogDir stay empty when unset so the global
	// config file can still supply them; callers apply built-in
	// fallbacks last.
	riskMode := os.Getenv("PROMPTBRIDGE_RISK_MODE")
	dbPath := os.Getenv("PROMPTBRIDGE_DB_PATH")
	logDir := os.Getenv("PROMPTBRIDGE_LOG_DIR")

	responderURL := os.Getenv("PROMPTBRIDGE_RESPONDER_URL")

	timeoutMs := atoiOrDefault(os.Getenv("PROMPTBRIDGE_TIMEOUT_MS"), 30*60*1000)
	transcriptCap := atoiOrDefault(os.Getenv("PROMPTBRIDGE_TRANSCRIPT_CAP"), 16384)
	tailCap := atoiOrDefault(os.Getenv("PROMPTBRIDGE_DETECTION_TAIL_CAP"), 2048)
	heartbeatMs := atoiOrDefault(os.Getenv("PROMPTBRIDGE_HEARTBEAT_MS"), 500)

	return Config{
		LogLevel:         level,
		RiskMode:         riskMode,
		DBPath:           dbPath,
		LogDir:           logDir,
		ResponderURL:     responderURL,
		TimeoutMs:        timeoutMs,
		TranscriptCap:    transcriptCap,
		DetectionTailCap: tailCap,
		HeartbeatMs:      heartbeatMs,
	}
}

// DefaultDBPath is the history database location used when neither the
// environment nor the global config file names one.
func DefaultDBPath() string {
	return filepath.Join(defaultStateDir(), "promptbridge.db")
}

// DefaultLogDir is the session log directory used when neither the
// environment nor the global config file names one.
func DefaultLogDir() string {
	return filepath.Join(defaultStateDir(), "logs")
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Clean(".promptbridge")
	}
	return filepath.Join(home, ".local", "share", "promptbridge")
}

func atoiOrDefault(v string, fallback int) int {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
