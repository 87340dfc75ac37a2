package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreJSONL  = "jsonl"
)

type Config struct {
	HTTPAddr  string
	DataDir   string
	DBPath    string
	Store     string
	RunsDir   string
	AgentsDir string
	WorkDir   string

	LLMProvider    string
	LLMModel       string
	LLMGraphModel  string
	LLMAPIKey      string
	LLMBaseURL     string
	NoteStrictness string

	AllowCommands []string
	MCPServers    string
	LockTTL       time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the environment, after filling unset variables from .env in
// the working directory.
func Load() Config {
	return load(".env")
}

func load(dotenv string) Config {
	// a missing or malformed .env leaves the environment as it is
	_ = godotenv.Load(dotenv)
	dataDir := getEnv("AGENTRUN_DATA_DIR", "data")
	return Config{
		HTTPAddr:  getEnv("AGENTRUN_HTTP_ADDR", ":8080"),
		DataDir:   dataDir,
		DBPath:    getEnv("AGENTRUN_DB_PATH", filepath.Join(dataDir, "agentrun.db")),
		Store:     strings.ToLower(getEnv("AGENTRUN_STORE", StoreSQLite)),
		RunsDir:   getEnv("AGENTRUN_RUNS_DIR", filepath.Join(dataDir, "runs")),
		AgentsDir: getEnv("AGENTRUN_AGENTS_DIR", filepath.Join(dataDir, "agents")),
		WorkDir:   getEnv("AGENTRUN_WORK_DIR", "."),

		LLMProvider:    getEnv("AGENTRUN_LLM_PROVIDER", "openai"),
		LLMModel:       getEnv("AGENTRUN_LLM_MODEL", "balanced"),
		LLMGraphModel:  getEnv("AGENTRUN_LLM_KG_MODEL", ""),
		LLMAPIKey:      getEnv("AGENTRUN_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
		LLMBaseURL:     getEnv("AGENTRUN_LLM_BASE_URL", ""),
		NoteStrictness: getEnv("AGENTRUN_NOTE_STRICTNESS", "high"),

		AllowCommands: splitList(getEnv("AGENTRUN_ALLOW_COMMANDS", "ls,cat,pwd,echo,grep,head,tail,wc")),
		MCPServers:    getEnv("AGENTRUN_MCP_SERVERS", ""),
		LockTTL:       getDuration("AGENTRUN_LOCK_TTL", 10*time.Minute),

		LogLevel:  getEnv("AGENTRUN_LOG_LEVEL", "info"),
		LogFormat: getEnv("AGENTRUN_LOG_FORMAT", "text"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
