package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/On-Jun9/MetaPipe/internal/library"
	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/internal/state"
	"github.com/On-Jun9/MetaPipe/internal/storage"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

type stubExtractor struct {
	mu         sync.Mutex
	available  bool
	types      map[string]bool
	result     map[string]any
	err        error
	calls      int
	availCalls int
}

func newStub(result map[string]any, metadataTypes ...string) *stubExtractor {
	s := &stubExtractor{available: true, types: map[string]bool{}, result: result}
	for _, mt := range metadataTypes {
		s.types[mt] = true
	}
	return s
}

func (s *stubExtractor) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availCalls++
	return s.available
}

func (s *stubExtractor) Supports(mediaType, metadataType string) bool {
	return s.types[metadataType]
}

func (s *stubExtractor) Extract(ctx context.Context, filePath, metadataType string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

// remoteFiles behaves like an object store: nothing is ever local.
type remoteFiles struct {
	putErr error
	puts   []string
}

func (r *remoteFiles) LocalPath(string) (string, bool) { return "", false }

func (r *remoteFiles) Put(ctx context.Context, srcPath, filename string) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.puts = append(r.puts, filename)
	return nil
}

var sampleResult = map[string]any{"Artist": "Jane Doe", "Title": "Harbour at dusk"}

var sampleRules = []types.CrosswalkRule{
	{Resource: types.ResourceMedia, Pointer: "/exif/Artist", Term: "dcterms:creator", Replace: true},
	{Resource: types.ResourceItem, Pointer: "/exif/Title", Term: "dcterms:title"},
}

type fixture struct {
	p       *Pipeline
	lib     *library.Library
	records *state.FileStore
	files   *storage.Local
	stub    *stubExtractor
	item    types.Item
	media   types.Media
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// newFixture wires a pipeline over in-memory stores with one jpeg media
// whose original is already in local storage.
func newFixture(t *testing.T, rules []types.CrosswalkRule) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	stub := newStub(sampleResult, "exif")
	reg := metadata.NewRegistry()
	reg.Register("exif", stub)

	lib := library.New("")
	records := state.New("")
	files := storage.NewLocal(filepath.Join(dir, "files"), false)

	p := NewWithDeps(Deps{
		Registry:   reg,
		MediaTypes: types.MediaTypeTable{"image/jpeg": {{MetadataType: "exif", Extractor: "exif"}}},
		Rules:      rules,
		Records:    records,
		Graph:      lib,
		Catalog:    lib,
		Files:      files,
		Jobs:       4,
	})

	item, err := lib.CreateItem(ctx, "Harbour")
	require.NoError(t, err)
	media, err := lib.CreateMedia(ctx, types.Media{ItemID: item.ID, MediaType: "image/jpeg", Filename: "a.jpg"})
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "files", "original", "a.jpg"), "jpeg bytes")

	return &fixture{p: p, lib: lib, records: records, files: files, stub: stub, item: item, media: media}
}

func (f *fixture) values(t *testing.T, kind types.ResourceKind, id, term string) []string {
	t.Helper()
	vals, err := f.lib.Values(context.Background(), kind, id)
	require.NoError(t, err)
	var out []string
	for _, v := range vals {
		if v.Term == term {
			out = append(out, v.Value)
		}
	}
	return out
}
