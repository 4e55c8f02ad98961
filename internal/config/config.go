package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "SIGNAGE_"

type Config struct {
	// Identité et accès serveur (signage.json).
	URL      string `koanf:"url" validate:"required,http_url"`
	ID       string `koanf:"id" validate:"required"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Key      string `koanf:"key"`

	DataDir     string `koanf:"data_dir" validate:"required"`
	StatusAddr  string `koanf:"status_addr"`
	JournalPath string `koanf:"journal_path"`
	LogLevel    string `koanf:"log_level" validate:"oneof=trace debug info warn error"`

	PlayerBinary         string `koanf:"player_binary" validate:"required"`
	PlayerSocket         string `koanf:"player_socket"`
	ImageDisplayDuration int    `koanf:"image_display_duration" validate:"gte=1"`
	Display              string `koanf:"display"`

	SettleDelay      time.Duration `koanf:"settle_delay" validate:"gte=0"`
	FallbackInterval time.Duration `koanf:"fallback_interval" validate:"gt=0"`
	CredentialTTL    time.Duration `koanf:"credential_ttl" validate:"gte=0"`
	HTTPTimeout      time.Duration `koanf:"http_timeout" validate:"gt=0"`
	// Plafond d'un téléchargement d'asset complet; 0 = aucun.
	DownloadTimeout  time.Duration `koanf:"download_timeout" validate:"gte=0"`

	AllowedAssetHosts []string `koanf:"allowed_asset_hosts"`

	// Chemin effectivement chargé; jamais lu depuis le fichier.
	ConfigPath string `koanf:"-"`
}

// DefaultPath renvoie $HOME/.config/signage/signage.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "signage", "signage.json")
	}
	return filepath.Join(home, ".config", "signage", "signage.json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "signage")
	}
	return filepath.Join(home, ".local", "share", "signage")
}

func Default() Config {
	return Config{
		DataDir:              defaultDataDir(),
		StatusAddr:           "127.0.0.1:8765",
		LogLevel:             "info",
		PlayerBinary:         "mpv",
		PlayerSocket:         "/tmp/mpvsocket",
		ImageDisplayDuration: 10,
		Display:              ":0",
		SettleDelay:          10 * time.Second,
		FallbackInterval:     20 * time.Second,
		HTTPTimeout:          30 * time.Second,
	}
}

func (c Config) ManifestPath() string { return filepath.Join(c.DataDir, "playlist.txt") }
func (c Config) StatePath() string    { return filepath.Join(c.DataDir, "data.json") }
func (c Config) AssetsDir() string    { return filepath.Join(c.DataDir, "assets") }

// Load applique, dans l'ordre: valeurs par défaut, fichier JSON, variables SIGNAGE_*.
// Un fichier absent n'est pas une erreur: l'environnement peut suffire.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("stat config file %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = path
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(cfg.DataDir, "journal.db")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SIGNAGE_PLAYER_BINARY -> player_binary. Les listes sont séparées par des virgules.
func envValue(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	if key == "allowed_asset_hosts" {
		var hosts []string
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		return key, hosts
	}
	return key, v
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
