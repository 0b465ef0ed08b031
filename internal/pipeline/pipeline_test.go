package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/On-Jun9/MetaPipe/internal/config"
	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// newTestConfig는 테스트 코드 동작을 검증하거나 보조합니다.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		DataDir:    t.TempDir(),
		MediaTypes: config.DefaultMediaTypes(),
		Crosswalk:  sampleRules,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

// TestPipelineNew_WiresFileStoreAndLocalStorage는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelineNew_WiresFileStoreAndLocalStorage(t *testing.T) {
	// 기본 설정은 파일 레코드 저장소와 로컬 저장소로 구성되어야 한다.
	cfg := newTestConfig(t)

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	names := make([]string, 0)
	for _, s := range p.Extractors() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{metadata.ExifName, metadata.TagName, metadata.ID3v2Name, metadata.SidecarName, metadata.ExiftoolName}, names)
	assert.Len(t, p.Rules(), 2)
	assert.True(t, p.localFiles)
	assert.Equal(t, cfg.Jobs, p.jobs)
}

func TestPipelineNew_RespectsExtractorAllowList(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Extractors = []string{metadata.ExifName, metadata.SidecarName}

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Extractors(), 2)
	assert.Equal(t, metadata.ExifName, p.Extractors()[0].Name)
}

// TestPipelineNew_ReturnsErrorWhenLoggerInitFails는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelineNew_ReturnsErrorWhenLoggerInitFails(t *testing.T) {
	// 로그 파일 상위 경로가 파일이면 로거 생성이 실패해야 한다.
	cfg := newTestConfig(t)
	blocker := filepath.Join(cfg.DataDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	cfg.LogFile = filepath.Join(blocker, "metapipe.log")

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestPipelineNew_ReturnsErrorWhenRecordFileIsCorrupt(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, os.WriteFile(cfg.Store.File, []byte("{not json"), 0644))

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestPipelineNew_ReturnsErrorForMissingPreset(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.CrosswalkPreset = "nope"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestPipelineNew_UsesPresetRules(t *testing.T) {
	cfg := newTestConfig(t)
	pm, err := config.NewPresetManager(cfg.DataDir)
	require.NoError(t, err)
	require.NoError(t, pm.SavePreset(&config.CrosswalkPreset{
		Name:  "audio",
		Rules: []types.CrosswalkRule{{Resource: types.ResourceItem, Pointer: "/id3/TIT2", Term: "dcterms:title"}},
	}))
	cfg.CrosswalkPreset = "audio"

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	rules := p.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "/id3/TIT2", rules[0].Pointer)
}

func TestPipelineClose_IsRepeatable(t *testing.T) {
	p, err := New(newTestConfig(t))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
