package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"

	"github.com/staffdesk/Consult/internal/domain"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	ResponseWindow time.Duration `mapstructure:"response_window"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	PendingCap     int           `mapstructure:"pending_cap"`
	RequestLimit   int           `mapstructure:"request_limit"`
	RequestWindow  time.Duration `mapstructure:"request_window"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`

	ICEServers []ICEServer    `mapstructure:"ice_servers"`
	Staff      []domain.Staff `mapstructure:"staff"`
}

// WebRTCICEServers converts the config entries to what goes out in the
// call-accepted event.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("response_window", "60s")
	v.SetDefault("sweep_interval", "5s")
	v.SetDefault("pending_cap", 64)
	v.SetDefault("request_limit", 5)
	v.SetDefault("request_window", "1m")
	v.SetDefault("token_ttl", "12h")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Staff: %d\n", cfg.Mode, cfg.Port, len(cfg.Staff))
	return &cfg, nil
}
