package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubArchive serves card pages for a fixed set of identifiers and counts
// every request.
type stubArchive struct {
	srv      *httptest.Server
	requests atomic.Int64

	mu    sync.Mutex
	cards map[string]string // identifier -> title
	seen  []string
}

func newStubArchive(t *testing.T, cards map[string]string) *stubArchive {
	t.Helper()
	a := &stubArchive{cards: cards}
	a.srv = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *stubArchive) serve(w http.ResponseWriter, r *http.Request) {
	a.requests.Add(1)
	id := r.URL.Query().Get("identifier")

	a.mu.Lock()
	a.seen = append(a.seen, id)
	title, ok := a.cards[id]
	a.mu.Unlock()

	switch r.URL.Path {
	case "/card.cgi":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if !ok {
			_, _ = fmt.Fprint(w, "<html><body>該当する資料はありません</body></html>")
			return
		}
		_, _ = fmt.Fprintf(w, `<html><body><p>%s</p>
<table class="dataTable">
<tr><th>タイトル</th><td>%s</td></tr>
<tr><th>主題</th><td>河童</td></tr>
</table></body></html>`, id, title)
	default:
		http.NotFound(w, r)
	}
}

func (a *stubArchive) count() int { return int(a.requests.Load()) }

func (a *stubArchive) requested() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.seen...)
}

// sandbox isolates a test from the user's configuration and points the
// remote endpoints at a.
func sandbox(t *testing.T, a *stubArchive) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir+"/xdg")
	t.Setenv("HOME", dir)
	t.Setenv("NO_COLOR", "1")
	for _, k := range []string{
		"NICHICRAWL_USER_AGENT", "NICHICRAWL_TIMEOUT", "NICHICRAWL_RETRIES",
		"NICHICRAWL_WORKERS", "NICHICRAWL_CATALOG", "NICHICRAWL_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	if a != nil {
		t.Setenv("NICHICRAWL_CARD_URL", a.srv.URL+"/card.cgi")
		t.Setenv("NICHICRAWL_IMAGE_BASE_URL", a.srv.URL+"/image/")
	} else {
		t.Setenv("NICHICRAWL_CARD_URL", "")
		t.Setenv("NICHICRAWL_IMAGE_BASE_URL", "")
	}
	t.Chdir(dir)
	return dir
}

// execute runs the root command with args and returns everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
