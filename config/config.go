package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	ServiceName string
	LoggerLevel string

	// Settlement chain
	EthURL          string
	ContractAddress string
	EthAccount      string // optional; first node account when empty
	GasLimit        uint64

	// Whisper relay
	ShhURL          string // falls back to EthURL when empty
	ShhPrivateKey   string // optional; fresh key pair when empty
	ShhTTL          uint32
	ShhPowTime      uint32
	ShhPowTarget    float64
	ShhPollInterval time.Duration

	StorePath string

	DriverBotToken string
}

func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.ServiceName = cast.ToString(getOrReturnDefault("SERVICE_NAME", "taxicoin"))
	cfg.LoggerLevel = cast.ToString(getOrReturnDefault("LOGGER_LEVEL", "debug"))

	cfg.EthURL = cast.ToString(getOrReturnDefault("ETH_RPC_URL", "http://localhost:7545"))
	cfg.ContractAddress = cast.ToString(getOrReturnDefault("CONTRACT_ADDRESS", ""))
	cfg.EthAccount = cast.ToString(getOrReturnDefault("ETH_ACCOUNT", ""))
	cfg.GasLimit = cast.ToUint64(getOrReturnDefault("GAS_LIMIT", 900000))

	cfg.ShhURL = cast.ToString(getOrReturnDefault("SHH_RPC_URL", ""))
	cfg.ShhPrivateKey = cast.ToString(getOrReturnDefault("SHH_PRIVATE_KEY", ""))
	cfg.ShhTTL = cast.ToUint32(getOrReturnDefault("SHH_TTL", 10))
	cfg.ShhPowTime = cast.ToUint32(getOrReturnDefault("SHH_POW_TIME", 3))
	cfg.ShhPowTarget = cast.ToFloat64(getOrReturnDefault("SHH_POW_TARGET", 0.5))
	cfg.ShhPollInterval = cast.ToDuration(getOrReturnDefault("SHH_POLL_INTERVAL", "2s"))

	cfg.StorePath = cast.ToString(getOrReturnDefault("STORE_PATH", "taxicoin.db"))

	cfg.DriverBotToken = cast.ToString(getOrReturnDefault("DRIVER_BOT_TOKEN", ""))

	if cfg.ShhURL == "" {
		cfg.ShhURL = cfg.EthURL
	}

	return cfg
}

func getOrReturnDefault(key string, defaultValue interface{}) interface{} {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
