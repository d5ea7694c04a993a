package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"mappls-navigation/internal/navigation"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

func (e Env) IsValid() bool {
	switch e {
	case EnvProd, EnvDev:
		return true
	}
	return false
}

type LocationSource string

const (
	SourceBrowser LocationSource = "browser"
	SourceNMEA    LocationSource = "nmea"
)

type Config struct {
	APIServerHost      string         `env:"API_SERVER_HOST"`
	APIServerPort      string         `env:"API_SERVER_PORT" envDefault:"8000" validate:"required,numeric"`
	RedisHost          string         `env:"REDIS_HOST" envDefault:"localhost" validate:"required"`
	RedisPort          string         `env:"REDIS_PORT" envDefault:"6379" validate:"required,numeric"`
	RedisRoutesChannel string         `env:"REDIS_ROUTES_CHANNEL" envDefault:"navigation:routes" validate:"required"`
	Env                Env            `env:"ENV" envDefault:"prod"`
	RoutingBaseURL     string         `env:"ROUTING_BASE_URL" validate:"required,url"`
	ClientID           string         `env:"MAPPLS_CLIENT_ID"`
	ClientSecret       string         `env:"MAPPLS_CLIENT_SECRET"`
	TokenURL           string         `env:"MAPPLS_TOKEN_URL" envDefault:"https://outpost.mappls.com/api/security/oauth/token" validate:"url"`
	RoutingKey         string         `env:"MAPPLS_ROUTING_KEY"`
	LocationSource     LocationSource `env:"LOCATION_SOURCE" envDefault:"browser" validate:"oneof=browser nmea"`
	GPSPort            string         `env:"GPS_PORT" validate:"required_if=LocationSource nmea"`
	GPSBaudRate        int            `env:"GPS_BAUD_RATE" envDefault:"9600" validate:"gt=0"`
	PushInterval       time.Duration  `env:"NAV_PUSH_INTERVAL" envDefault:"1s" validate:"gt=0"`
	RetryDelay         time.Duration  `env:"NAV_RETRY_DELAY" envDefault:"1s" validate:"gte=0"`
	SettleDelay        time.Duration  `env:"NAV_SETTLE_DELAY" envDefault:"0s" validate:"gte=0"`
	LocationTimeout    time.Duration  `env:"NAV_LOCATION_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	StyleFile          string         `env:"NAV_STYLE_FILE" validate:"omitempty,file"`
	SessionTTL         time.Duration  `env:"SESSION_TTL" envDefault:"30m" validate:"gt=0"`
	RouteCacheTTL      time.Duration  `env:"ROUTE_CACHE_TTL" envDefault:"2m" validate:"gt=0"`
}

func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Env.IsValid() {
		return nil, fmt.Errorf("invalid env variable (must be 'prod' or 'dev')")
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Style is the tracking presentation loaded from NAV_STYLE_FILE.
type Style struct {
	Tracking navigation.TrackingStyle `yaml:"tracking"`
	Push     navigation.PushOptions   `yaml:"push"`
}

// LoadStyle reads path over the defaults. An empty path yields the defaults.
func LoadStyle(path string) (Style, error) {
	style := Style{
		Tracking: navigation.DefaultTrackingStyle(),
		Push:     navigation.DefaultPushOptions(),
	}
	if path == "" {
		return style, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return style, fmt.Errorf("failed to read style file: %w", err)
	}
	if err := yaml.Unmarshal(data, &style); err != nil {
		return style, fmt.Errorf("failed to parse style file: %w", err)
	}
	if style.Push.Buffer < 0 {
		return style, errors.New("push buffer must not be negative")
	}
	return style, nil
}
