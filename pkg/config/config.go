package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Mode selects how much proof-of-work the engine really does.
type Mode string

const (
	ModeNormal Mode = "normal" // full sized caches and datasets
	ModeTest   Mode = "test"   // tiny caches and datasets, same algorithm
	ModeFake   Mode = "fake"   // SHA-256 stand-in, every seal verifies
)

// Config holds the proof-of-work engine settings.
type Config struct {
	CacheDir       string `yaml:"cache_dir"`
	CachesInMem    int    `yaml:"caches_in_mem"`
	CachesOnDisk   int    `yaml:"caches_on_disk"`
	DatasetDir     string `yaml:"dataset_dir"`
	DatasetsInMem  int    `yaml:"datasets_in_mem"`
	DatasetsOnDisk int    `yaml:"datasets_on_disk"`
	RegistryDir    string `yaml:"registry_dir"`
	PowMode        Mode   `yaml:"pow_mode"`
	Threads        int    `yaml:"threads"`
	LogLevel       string `yaml:"log_level"`
}

// Default returns the settings a node starts with: two caches and one
// dataset in memory, three caches and two datasets kept on disk.
func Default() Config {
	dataset := defaultDatasetDir()
	return Config{
		CacheDir:       filepath.Join(dataset, "cache"),
		CachesInMem:    2,
		CachesOnDisk:   3,
		DatasetDir:     dataset,
		DatasetsInMem:  1,
		DatasetsOnDisk: 2,
		RegistryDir:    filepath.Join(dataset, "registry"),
		PowMode:        ModeNormal,
		Threads:        runtime.NumCPU(),
		LogLevel:       "info",
	}
}

func defaultDatasetDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".dagpow"
	}
	return filepath.Join(home, ".dagpow")
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.CacheDir = expandHome(cfg.CacheDir)
	cfg.DatasetDir = expandHome(cfg.DatasetDir)
	cfg.RegistryDir = expandHome(cfg.RegistryDir)
	return cfg, cfg.Validate()
}

// Validate checks the mode and log level and clamps the in-memory counts
// to at least one handle each.
func (c *Config) Validate() error {
	if c.CachesInMem <= 0 {
		logrus.Warnf("One cache must always be in memory, requested %d", c.CachesInMem)
		c.CachesInMem = 1
	}
	if c.DatasetsInMem <= 0 {
		c.DatasetsInMem = 1
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	switch c.PowMode {
	case ModeNormal, ModeTest, ModeFake:
	case "":
		c.PowMode = ModeNormal
	default:
		return fmt.Errorf("unknown pow_mode %q", c.PowMode)
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}

// Save writes c as YAML to path.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
