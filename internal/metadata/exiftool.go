package metadata

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
)

// ExiftoolName is the registry name of the exiftool extractor.
const ExiftoolName = "exiftool"

// exiftoolGroups is the closed table of metadata types exiftool is asked for.
// Caller-supplied metadata types never reach the command line directly.
var exiftoolGroups = map[string]string{
	"exif":        "exif",
	"iptc":        "iptc",
	"xmp":         "xmp",
	"pdf":         "pdf",
	"photoshop":   "photoshop",
	"gif":         "gif",
	"icc_profile": "icc_profile",
	"iccprofile":  "icc_profile",
	"png":         "png",
	"app14":       "app14",
	"riff":        "riff",
	"mpeg":        "mpeg",
	"id3":         "id3",
	"svg":         "svg",
	"quicktime":   "quicktime",
	"vorbis":      "vorbis",
	"asf":         "asf",
	"flashpix":    "flashpix",
	"zip":         "zip",
	"xml":         "xml",
	"rtf":         "rtf",
	"aiff":        "aiff",
	"flac":        "flac",
	"exe":         "exe",
	"theora":      "theora",
	"opus":        "opus",
	"flash":       "flash",
}

// ExiftoolExtractor shells out to exiftool and decodes its JSON output.
type ExiftoolExtractor struct {
	path     string
	runner   Runner
	breaker  *gobreaker.CircuitBreaker
	lookPath func(string) (string, error)
}

// NewExiftoolExtractor returns an extractor running the given binary
// ("" means $EXIFTOOL_BIN, then exiftool on PATH) through runner.
func NewExiftoolExtractor(path string, runner Runner) *ExiftoolExtractor {
	if runner == nil {
		runner = NewExecRunner(0)
	}
	return &ExiftoolExtractor{
		path:   path,
		runner: runner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    ExiftoolName,
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		lookPath: exec.LookPath,
	}
}

func (e *ExiftoolExtractor) binary() (string, error) {
	candidate := e.path
	if candidate == "" {
		candidate = strings.TrimSpace(os.Getenv("EXIFTOOL_BIN"))
	}
	if candidate == "" {
		candidate = "exiftool"
		if runtime.GOOS == "windows" {
			candidate += ".exe"
		}
	}
	p, err := e.lookPath(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found", ErrUnavailable, candidate)
	}
	return p, nil
}

func (e *ExiftoolExtractor) IsAvailable() bool {
	if e.breaker.State() == gobreaker.StateOpen {
		return false
	}
	_, err := e.binary()
	return err == nil
}

func (e *ExiftoolExtractor) Supports(mediaType, metadataType string) bool {
	_, ok := exiftoolGroups[metadataType]
	return ok
}

type exiftoolRun struct {
	out  []byte
	code int
	err  error
}

func (e *ExiftoolExtractor) Extract(ctx context.Context, filePath, metadataType string) (map[string]any, error) {
	group, ok := exiftoolGroups[metadataType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, metadataType)
	}
	bin, err := e.binary()
	if err != nil {
		return nil, err
	}
	// An absolute path can never be mistaken for an option.
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	args := []string{"-json", "-" + group + ":all", absPath}

	// Only launch failures and timeouts count against the breaker.
	res, err := e.breaker.Execute(func() (interface{}, error) {
		out, code, runErr := e.runner.Run(ctx, bin, args...)
		if runErr != nil && code < 0 {
			return nil, runErr
		}
		return exiftoolRun{out: out, code: code, err: runErr}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	run := res.(exiftoolRun)
	if run.code != 0 {
		if run.err != nil {
			return nil, run.err
		}
		return nil, fmt.Errorf("exiftool: exit status %d", run.code)
	}
	return parseExiftoolOutput(run.out)
}

// parseExiftoolOutput decodes exiftool's JSON list and keeps the first object.
func parseExiftoolOutput(out []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(out))) == 0 {
		return map[string]any{}, nil
	}
	var results []map[string]any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(out, &results); err != nil {
		return nil, fmt.Errorf("failed to parse exiftool JSON: %w", err)
	}
	if len(results) == 0 || results[0] == nil {
		return map[string]any{}, nil
	}
	meta := results[0]
	// Added by exiftool itself, not file metadata.
	delete(meta, "SourceFile")
	return meta, nil
}
