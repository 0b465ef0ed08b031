package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/On-Jun9/MetaPipe/internal/config"
	"github.com/On-Jun9/MetaPipe/internal/library"
	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/internal/pipeline"
	"github.com/On-Jun9/MetaPipe/internal/state"
	"github.com/On-Jun9/MetaPipe/internal/storage"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

type fixedExtractor struct{ result map[string]any }

func (f fixedExtractor) IsAvailable() bool { return true }
func (f fixedExtractor) Supports(mediaType, mt string) bool { return mt == "exif" }
func (f fixedExtractor) Extract(ctx context.Context, filePath, mt string) (map[string]any, error) {
	return f.result, nil
}

type testEnv struct {
	server *Server
	lib    *library.Library
	item   types.Item
	media  types.Media
}

// newTestEnv는 테스트 코드 동작을 검증하거나 보조합니다.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	reg := metadata.NewRegistry()
	reg.Register("exif", fixedExtractor{result: map[string]any{"Artist": "Jane Doe"}})
	lib := library.New("")
	p := pipeline.NewWithDeps(pipeline.Deps{
		Registry:   reg,
		MediaTypes: types.MediaTypeTable{"image/jpeg": {{MetadataType: "exif", Extractor: "exif"}}},
		Rules:      []types.CrosswalkRule{{Resource: types.ResourceMedia, Pointer: "/exif/Artist", Term: "dcterms:creator", Replace: true}},
		Records:    state.New(""),
		Graph:      lib,
		Files:      storage.NewLocal(filepath.Join(dir, "files"), false),
	})

	item, err := lib.CreateItem(ctx, "Harbour")
	if err != nil {
		t.Fatal(err)
	}
	media, err := lib.CreateMedia(ctx, types.Media{ItemID: item.ID, MediaType: "image/jpeg", Filename: "a.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	orig := filepath.Join(dir, "files", "original", "a.jpg")
	if err := os.MkdirAll(filepath.Dir(orig), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(orig, []byte("jpeg bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	pm, err := config.NewPresetManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(p, pm, nil)
	t.Cleanup(s.Close)
	return &testEnv{server: s, lib: lib, item: item, media: media}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	e.server.router.ServeHTTP(rr, req)
	return rr
}

// decodeAPIErrorResponse는 테스트 코드 동작을 검증하거나 보조합니다.
func decodeAPIErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()

	var response APIErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode APIErrorResponse: %v", err)
	}
	return response
}

// decodeValidationErrorResponse는 테스트 코드 동작을 검증하거나 보조합니다.
func decodeValidationErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) ValidationError {
	t.Helper()

	var response ValidationError
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode ValidationError: %v", err)
	}
	return response
}

// TestHandleMediaAction_RefreshMapReplace는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleMediaAction_RefreshMapReplace(t *testing.T) {
	// media action 요청은 추출과 매핑을 실행하고 결과를 JSON으로 반환해야 한다.
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/api/media/"+e.media.ID+"/actions", `{"action":"refresh_map_replace"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res types.ActionResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !res.Extracted || !res.Mapped || res.Added != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	vals, err := e.lib.Values(context.Background(), types.ResourceMedia, e.media.ID)
	if err != nil || len(vals) != 1 || vals[0].Value != "Jane Doe" {
		t.Fatalf("unexpected values: %+v err=%v", vals, err)
	}
}

// TestHandleMediaAction_UnknownMediaReturns404는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleMediaAction_UnknownMediaReturns404(t *testing.T) {
	// 없는 media는 404 + JSON 에러 응답이어야 한다.
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/api/media/missing/actions", `{"action":"refresh"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected application/json, got %s", rr.Header().Get("Content-Type"))
	}
	if decodeAPIErrorResponse(t, rr).Message == "" {
		t.Fatal("expected error message")
	}
}

// TestHandleMediaAction_ReturnsBadRequestOnInvalidJSON는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleMediaAction_ReturnsBadRequestOnInvalidJSON(t *testing.T) {
	// 요청 바디 파싱 실패는 400 + JSON 에러 응답이어야 한다.
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/api/media/"+e.media.ID+"/actions", "{")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if decodeAPIErrorResponse(t, rr).Message == "" {
		t.Fatal("expected error message")
	}
}

// TestHandleMetadata_GetAndDelete는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleMetadata_GetAndDelete(t *testing.T) {
	// 레코드가 없으면 404, refresh 후에는 payload를 반환하고 삭제 후 다시 404여야 한다.
	e := newTestEnv(t)
	path := "/api/media/" + e.media.ID + "/metadata"

	if rr := e.do(http.MethodGet, path, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before refresh, got %d", rr.Code)
	}

	if rr := e.do(http.MethodPost, "/api/media/"+e.media.ID+"/actions", `{"action":"refresh"}`); rr.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d", rr.Code)
	}

	rr := e.do(http.MethodGet, path, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rec types.MetadataRecord
	if err := json.NewDecoder(rr.Body).Decode(&rec); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if rec.MediaID != e.media.ID || rec.Extractors["exif"] != "exif" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if rr := e.do(http.MethodDelete, path, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected delete 200, got %d", rr.Code)
	}
	if rr := e.do(http.MethodGet, path, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

// TestHandleItemAction_RunsEveryMedia는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleItemAction_RunsEveryMedia(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/api/items/"+e.item.ID+"/actions", `{"action":"refresh"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var results []types.ActionResult
	if err := json.NewDecoder(rr.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode results: %v", err)
	}
	if len(results) != 1 || results[0].MediaID != e.media.ID {
		t.Fatalf("unexpected results: %+v", results)
	}

	if rr := e.do(http.MethodPost, "/api/items/missing/actions", `{"action":"refresh"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown item, got %d", rr.Code)
	}
}

// TestHandleBatchAction_ValidatesRequest는 테스트 코드 동작을 검증하거나 보조합니다.
func TestHandleBatchAction_ValidatesRequest(t *testing.T) {
	// 잘못된 resource_type과 빈 ids는 400 + {field,message} 포맷이어야 한다.
	e := newTestEnv(t)

	cases := map[string]string{
		"resource_type": `{"action":"refresh","resource_type":"item_set","ids":["x"]}`,
		"ids":           `{"action":"refresh","resource_type":"media"}`,
	}
	for field, body := range cases {
		rr := e.do(http.MethodPost, "/api/batch/actions", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", field, rr.Code)
		}
		if got := decodeValidationErrorResponse(t, rr); got.Field != field || got.Message == "" {
			t.Fatalf("unexpected validation response: %+v", got)
		}
	}
}

func TestHandleBatchAction_DefaultsToMedia(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/api/batch/actions", `{"action":"refresh_map_add","ids":["`+e.media.ID+`"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var results []types.ActionResult
	if err := json.NewDecoder(rr.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode results: %v", err)
	}
	if len(results) != 1 || results[0].Added != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestHandleListActionsAndExtractors(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(http.MethodGet, "/api/actions", "")
	var actions []pipeline.ActionOption
	if err := json.NewDecoder(rr.Body).Decode(&actions); err != nil {
		t.Fatalf("failed to decode actions: %v", err)
	}
	if len(actions) != 7 || actions[1].Token != types.ActionRefresh {
		t.Fatalf("unexpected actions: %+v", actions)
	}

	rr = e.do(http.MethodGet, "/api/extractors", "")
	var statuses []metadata.Status
	if err := json.NewDecoder(rr.Body).Decode(&statuses); err != nil {
		t.Fatalf("failed to decode extractors: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Name != "exif" || !statuses[0].Available {
		t.Fatalf("unexpected extractors: %+v", statuses)
	}
}

// TestCrosswalkPresetRoutes는 테스트 코드 동작을 검증하거나 보조합니다.
func TestCrosswalkPresetRoutes(t *testing.T) {
	// 저장/목록/조회/삭제 preset 라우트가 정상 동작해야 한다.
	e := newTestEnv(t)

	body := `{"name":"photos","rules":[{"resource":"media","pointer":"/exif/Artist","term":"dcterms:creator"}]}`
	if rr := e.do(http.MethodPost, "/api/crosswalks", body); rr.Code != http.StatusOK {
		t.Fatalf("save failed: %d %s", rr.Code, rr.Body.String())
	}

	rr := e.do(http.MethodGet, "/api/crosswalks", "")
	var presets []config.CrosswalkPreset
	if err := json.NewDecoder(rr.Body).Decode(&presets); err != nil {
		t.Fatalf("failed to decode presets: %v", err)
	}
	if len(presets) != 1 || presets[0].Name != "photos" {
		t.Fatalf("unexpected presets: %+v", presets)
	}

	rr = e.do(http.MethodGet, "/api/crosswalks/photos", "")
	var preset config.CrosswalkPreset
	if err := json.NewDecoder(rr.Body).Decode(&preset); err != nil {
		t.Fatalf("failed to decode preset: %v", err)
	}
	if len(preset.Rules) != 1 || preset.Rules[0].Term != "dcterms:creator" {
		t.Fatalf("unexpected preset: %+v", preset)
	}

	if rr := e.do(http.MethodDelete, "/api/crosswalks/photos", ""); rr.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rr.Code)
	}
	if rr := e.do(http.MethodGet, "/api/crosswalks/photos", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestHandleSavePreset_ValidationErrors(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/api/crosswalks", `{"rules":[]}`)
	if got := decodeValidationErrorResponse(t, rr); rr.Code != http.StatusBadRequest || got.Field != "name" {
		t.Fatalf("expected name validation error, got %d %+v", rr.Code, got)
	}

	rr = e.do(http.MethodPost, "/api/crosswalks", `{"name":"bad","rules":[{"resource":"media","pointer":"/exif/Artist","term":"creator"}]}`)
	if got := decodeValidationErrorResponse(t, rr); rr.Code != http.StatusBadRequest || got.Field != "crosswalk.term" {
		t.Fatalf("expected term validation error, got %d %+v", rr.Code, got)
	}
}

func TestPresetRoutesWithoutManager(t *testing.T) {
	s := NewServer(nil, nil, nil)
	t.Cleanup(s.Close)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/crosswalks", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodPost, "/api/media/"+e.media.ID+"/actions", `{"action":"refresh"}`)

	rr := e.do(http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "metapipe_actions_total") {
		t.Fatal("expected action counter in metrics output")
	}
}
