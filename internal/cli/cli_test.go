package cli

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/atracrawl/atra/internal/config"
	"github.com/atracrawl/atra/internal/worker"
)

func TestParseSeedArgsRejectsRelativeURLs(t *testing.T) {
	_, err := parseSeedArgs([]string{"/just/a/path"})
	if err == nil {
		t.Fatal("expected an error for a relative seed URL")
	}
}

func TestParseSeedArgsAcceptsAbsoluteURLs(t *testing.T) {
	seeds, err := parseSeedArgs([]string{"https://example.com/a", "https://example.org/b"})
	if err != nil {
		t.Fatalf("parseSeedArgs returned error: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("len(seeds) = %d, want 2", len(seeds))
	}
	if seeds[0].Host != "example.com" || seeds[1].Host != "example.org" {
		t.Errorf("seeds = %+v, want example.com then example.org", seeds)
	}
}

func TestResolveSeedsSpecRejectsUnknownScheme(t *testing.T) {
	_, err := resolveSeedsSpec("http://example.com/seeds.txt")
	if err == nil {
		t.Fatal("expected an error for a non-file: seeds spec")
	}
}

func TestResolveSeedsSpecReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.txt")
	contents := "https://example.com/\n# a comment\n\nhttps://example.org/start\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	seeds, err := resolveSeedsSpec("file:" + path)
	if err != nil {
		t.Fatalf("resolveSeedsSpec returned error: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("len(seeds) = %d, want 2 (comments and blank lines skipped)", len(seeds))
	}
}

func TestResolveSeedsSpecRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.txt")
	if err := os.WriteFile(path, []byte("# nothing but comments\n"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	_, err := resolveSeedsSpec("file:" + path)
	if err == nil {
		t.Fatal("expected an error for a seed file with no URLs")
	}
}

func TestConfigLoadExitCodeMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want ExitCode
	}{
		{config.ErrInvalidConfig, ExitBadConfig},
		{config.ErrConfigParsingFail, ExitConfigDeserialization},
		{errors.New("some other failure"), ExitFilesystem},
	}
	for _, tc := range cases {
		if got := configLoadExitCode(tc.err); got != tc.want {
			t.Errorf("configLoadExitCode(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestStateDirForPrefersFlagOverConfig(t *testing.T) {
	orig := stateDir
	defer func() { stateDir = orig }()

	seed, err := url.Parse("https://example.com/")
	if err != nil {
		t.Fatalf("url.Parse returned error: %v", err)
	}
	cfg, err := config.WithDefault([]url.URL{*seed}).Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	stateDir = ""
	if got := stateDirFor(cfg); got != cfg.Paths().Root {
		t.Errorf("stateDirFor with no flag = %q, want %q", got, cfg.Paths().Root)
	}

	stateDir = "/explicit/dir"
	if got := stateDirFor(cfg); got != "/explicit/dir" {
		t.Errorf("stateDirFor with flag = %q, want /explicit/dir", got)
	}
}

func TestMapWorkerErrorClassifiesKnownCauses(t *testing.T) {
	cases := []struct {
		err  error
		want ExitCode
	}{
		{&worker.WorkerError{Cause: worker.ErrCauseFrontierIO}, ExitStepQueueIO},
		{&worker.WorkerError{Cause: worker.ErrCauseLinkStateIO}, ExitStepLinkWrite},
		{errors.New("unclassified"), ExitUnknown},
	}
	for _, tc := range cases {
		if got := mapWorkerError(tc.err); got != tc.want {
			t.Errorf("mapWorkerError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
