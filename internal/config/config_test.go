package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if validationErr.Field != field {
		t.Fatalf("expected field %s, got %s", field, validationErr.Field)
	}
}

// TestConfigValidate_FillsDefaults는 테스트 코드 동작을 검증하거나 보조합니다.
func TestConfigValidate_FillsDefaults(t *testing.T) {
	// 빈 설정도 data_dir 기준으로 기본 경로가 채워져야 한다.
	cfg := &Config{DataDir: "/var/lib/metapipe", Jobs: -2}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if cfg.Jobs != 1 {
		t.Fatalf("expected jobs=1, got %d", cfg.Jobs)
	}
	if cfg.Store.Driver != StoreFile || cfg.Store.File != filepath.Join("/var/lib/metapipe", "records.json") {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Files.Backend != "local" || cfg.Files.LocalDir != filepath.Join("/var/lib/metapipe", "files") {
		t.Fatalf("unexpected file defaults: %+v", cfg.Files)
	}
	if cfg.LibraryFile != filepath.Join("/var/lib/metapipe", "library.json") {
		t.Fatalf("unexpected library file: %s", cfg.LibraryFile)
	}
	if cfg.LogLevel != "info" || cfg.Exiftool.Timeout != 30*time.Second {
		t.Fatalf("unexpected log/exiftool defaults: %s %s", cfg.LogLevel, cfg.Exiftool.Timeout)
	}
}

// TestConfigValidate_RejectsInvalidFields는 테스트 코드 동작을 검증하거나 보조합니다.
func TestConfigValidate_RejectsInvalidFields(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"unknown store", Config{Store: StoreConfig{Driver: "sqlite"}}, "store.driver"},
		{"sql without dsn", Config{Store: StoreConfig{Driver: StoreMySQL}}, "store.dsn"},
		{"unknown backend", Config{Files: FilesConfig{Backend: "ftp"}}, "files.backend"},
		{"s3 without bucket", Config{Files: FilesConfig{Backend: "s3"}}, "files.s3.bucket"},
		{"bad log level", Config{LogLevel: "trace"}, "log_level"},
		{"bad rule resource", Config{Crosswalk: []types.CrosswalkRule{{Resource: "item_set", Pointer: "/exif/Artist", Term: "dcterms:creator"}}}, "crosswalk.resource"},
		{"bad rule pointer", Config{Crosswalk: []types.CrosswalkRule{{Resource: "media", Pointer: "exif/Artist", Term: "dcterms:creator"}}}, "crosswalk.pointer"},
		{"bad rule term", Config{Crosswalk: []types.CrosswalkRule{{Resource: "media", Pointer: "/exif/Artist", Term: "creator"}}}, "crosswalk.term"},
		{"empty binding", Config{MediaTypes: MediaTypes{{MediaType: "image/jpeg", Bindings: []types.ExtractorBinding{{MetadataType: "exif"}}}}}, "media_types.image/jpeg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.DataDir = t.TempDir()
			requireValidationField(t, cfg.Validate(), tc.field)
		})
	}
}

// TestLoadFromFile_ReadsYAMLIntoConfig는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLoadFromFile_ReadsYAMLIntoConfig(t *testing.T) {
	// YAML 값은 기본값을 덮어쓰고 media type 순서를 보존해야 한다.
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /srv/metapipe
jobs: 3
store:
  driver: postgres
  dsn: postgres://localhost/metapipe
exiftool:
  timeout: 5s
extractors: [exiftool, exif]
media_types:
  image/tiff:
    exif: [exif, exiftool]
    iptc: exiftool
  image/jpeg:
    xmp: exiftool
crosswalk:
  - resource: item
    pointer: /exif/Artist
    term: dcterms:creator
    replace: true
  - resource: media
    extractor: exiftool
    pointer: /xmp/Title
    term: dcterms:title
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Jobs != 3 || cfg.Store.Driver != StorePostgres || cfg.Exiftool.Timeout != 5*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if names := cfg.MediaTypes.Names(); len(names) != 2 || names[0] != "image/tiff" || names[1] != "image/jpeg" {
		t.Fatalf("expected ordered media types, got %v", names)
	}
	tiff := cfg.MediaTypes.Table()["image/tiff"]
	want := []types.ExtractorBinding{
		{MetadataType: "exif", Extractor: "exif"},
		{MetadataType: "exif", Extractor: "exiftool"},
		{MetadataType: "iptc", Extractor: "exiftool"},
	}
	if len(tiff) != len(want) {
		t.Fatalf("unexpected tiff bindings: %+v", tiff)
	}
	for i := range want {
		if tiff[i] != want[i] {
			t.Fatalf("binding %d: expected %+v, got %+v", i, want[i], tiff[i])
		}
	}
	if len(cfg.Crosswalk) != 2 || !cfg.Crosswalk[0].Replace || cfg.Crosswalk[1].Extractor != "exiftool" {
		t.Fatalf("unexpected crosswalk: %+v", cfg.Crosswalk)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected loaded config to validate: %v", err)
	}
}

// TestLoadFromFile_RejectsDuplicateMediaType는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLoadFromFile_RejectsDuplicateMediaType(t *testing.T) {
	// 같은 media type이나 metadata type이 두 번 나오면 로드가 실패해야 한다.
	cases := map[string]string{
		"media type": "media_types:\n  image/jpeg:\n    exif: exiftool\n  image/jpeg:\n    xmp: exiftool\n",
		"metadata type": "media_types:\n  image/jpeg:\n    exif: exiftool\n    exif: exif\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFromFile(path)
			if err == nil || !strings.Contains(err.Error(), "duplicate") {
				t.Fatalf("expected duplicate error, got %v", err)
			}
		})
	}
}

// TestLoadFromFile_ReturnsReadError는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLoadFromFile_ReturnsReadError(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

// TestLoadFromFile_ReturnsYAMLParseError는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLoadFromFile_ReturnsYAMLParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("jobs: [1, 2"), 0644); err != nil {
		t.Fatalf("failed to write yaml: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected yaml parse error")
	}
}

// TestDefaultMediaTypes_CoversBuiltins는 테스트 코드 동작을 검증하거나 보조합니다.
func TestDefaultMediaTypes_CoversBuiltins(t *testing.T) {
	table := DefaultMediaTypes().Table()
	jpeg := table["image/jpeg"]
	if len(jpeg) == 0 || jpeg[0] != (types.ExtractorBinding{MetadataType: "exif", Extractor: "exif"}) {
		t.Fatalf("expected built-in exif first for jpeg, got %+v", jpeg)
	}
	found := false
	for _, b := range table["video/mp4"] {
		if b.Extractor == "sidecar" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected sidecar binding for video/mp4")
	}
	tiffExifs := 0
	for _, b := range table["image/tiff"] {
		if b.MetadataType == "exif" && b.Extractor == "exiftool" {
			tiffExifs++
		}
	}
	if tiffExifs != 1 {
		t.Fatalf("expected a single exiftool exif binding for tiff, got %d", tiffExifs)
	}
}

// TestValidationError_ErrorFormat는 테스트 코드 동작을 검증하거나 보조합니다.
func TestValidationError_ErrorFormat(t *testing.T) {
	err := &ValidationError{Field: "store.driver", Message: "must be file, mysql or postgres"}
	if err.Error() != "store.driver: must be file, mysql or postgres" {
		t.Fatalf("unexpected error format: %s", err.Error())
	}
}
