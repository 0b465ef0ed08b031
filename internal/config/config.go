package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/On-Jun9/MetaPipe/internal/storage"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// Store drivers.
const (
	StoreFile     = "file"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	// DSN is used by the SQL drivers. parseTime is forced on for MySQL.
	DSN string `yaml:"dsn" json:"-"`
	// File is the JSON record file of the file driver.
	File string `yaml:"file" json:"file"`
}

type FilesConfig struct {
	Backend    string            `yaml:"backend" json:"backend"`
	LocalDir   string            `yaml:"local_dir" json:"local_dir"`
	HashVerify bool              `yaml:"hash_verify" json:"hash_verify"`
	S3         storage.S3Options `yaml:"s3" json:"s3"`
}

type ExiftoolConfig struct {
	// Path of the exiftool binary; empty means $EXIFTOOL_BIN or PATH.
	Path    string        `yaml:"path" json:"path"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type Config struct {
	DataDir     string      `yaml:"data_dir" json:"data_dir"`
	LibraryFile string      `yaml:"library_file" json:"library_file"`
	Store       StoreConfig `yaml:"store" json:"store"`
	Files       FilesConfig `yaml:"files" json:"files"`

	Exiftool ExiftoolConfig `yaml:"exiftool" json:"exiftool"`
	// Extractors limits which extractors are registered. Empty means all.
	Extractors []string   `yaml:"extractors" json:"extractors"`
	MediaTypes MediaTypes `yaml:"media_types" json:"media_types"`

	Crosswalk []types.CrosswalkRule `yaml:"crosswalk" json:"crosswalk"`
	// CrosswalkPreset names a saved crosswalk used instead of Crosswalk.
	CrosswalkPreset string `yaml:"crosswalk_preset" json:"crosswalk_preset"`
	DisableMapping  bool   `yaml:"disable_mapping" json:"disable_mapping"`

	Jobs     int    `yaml:"jobs" json:"jobs"`
	LogFile  string `yaml:"log_file" json:"log_file"`
	LogJSON  bool   `yaml:"log_json" json:"log_json"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	Addr     string `yaml:"addr" json:"addr"`
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".metapipe")
}

func DefaultConfig() *Config {
	jobs := runtime.NumCPU()
	if jobs < 1 {
		jobs = 4
	}

	dataDir := defaultDataDir()

	return &Config{
		DataDir:     dataDir,
		LibraryFile: filepath.Join(dataDir, "library.json"),
		Store: StoreConfig{
			Driver: StoreFile,
			File:   filepath.Join(dataDir, "records.json"),
		},
		Files: FilesConfig{
			Backend:  storage.BackendLocal,
			LocalDir: filepath.Join(dataDir, "files"),
		},
		Exiftool:   ExiftoolConfig{Timeout: 30 * time.Second},
		MediaTypes: DefaultMediaTypes(),
		Jobs:       jobs,
		LogFile:    filepath.Join(dataDir, "metapipe.log"),
		LogLevel:   "info",
		Addr:       ":8080",
	}
}

func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate fills derived defaults and reports the first invalid field.
func (c *Config) Validate() error {
	if c.Jobs < 1 {
		c.Jobs = 1
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.LibraryFile == "" {
		c.LibraryFile = filepath.Join(c.DataDir, "library.json")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "metapipe.log")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if !logLevels[c.LogLevel] {
		return &ValidationError{Field: "log_level", Message: "must be one of debug, info, warn, error"}
	}

	switch c.Store.Driver {
	case "", StoreFile:
		c.Store.Driver = StoreFile
		if c.Store.File == "" {
			c.Store.File = filepath.Join(c.DataDir, "records.json")
		}
	case StoreMySQL, StorePostgres:
		if c.Store.DSN == "" {
			return &ValidationError{Field: "store.dsn", Message: "dsn is required for " + c.Store.Driver}
		}
	default:
		return &ValidationError{Field: "store.driver", Message: "must be file, mysql or postgres"}
	}

	switch c.Files.Backend {
	case "", storage.BackendLocal:
		c.Files.Backend = storage.BackendLocal
		if c.Files.LocalDir == "" {
			c.Files.LocalDir = filepath.Join(c.DataDir, "files")
		}
	case storage.BackendS3:
		if c.Files.S3.Bucket == "" {
			return &ValidationError{Field: "files.s3.bucket", Message: "bucket is required for s3 storage"}
		}
	default:
		return &ValidationError{Field: "files.backend", Message: "must be local or s3"}
	}

	if c.Exiftool.Timeout <= 0 {
		c.Exiftool.Timeout = 30 * time.Second
	}

	for i, b := range c.MediaTypes {
		if b.MediaType == "" {
			return &ValidationError{Field: "media_types", Message: "empty media type"}
		}
		for _, binding := range c.MediaTypes[i].Bindings {
			if binding.MetadataType == "" || binding.Extractor == "" {
				return &ValidationError{Field: "media_types." + b.MediaType, Message: "metadata type and extractor are required"}
			}
		}
	}

	for _, rule := range c.Crosswalk {
		if err := ValidateRule(rule); err != nil {
			return err
		}
	}

	return nil
}

// ValidateRule reports the first problem with a crosswalk rule.
func ValidateRule(rule types.CrosswalkRule) error {
	if !rule.Resource.Valid() {
		return &ValidationError{Field: "crosswalk.resource", Message: "must be media or item"}
	}
	if rule.Pointer == "" || rule.Pointer[0] != '/' {
		return &ValidationError{Field: "crosswalk.pointer", Message: "must be a JSON pointer starting with /"}
	}
	if _, _, ok := types.SplitTerm(rule.Term); !ok {
		return &ValidationError{Field: "crosswalk.term", Message: "must be prefix:localName"}
	}
	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
