package headless

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newScriptServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body><script>document.body.innerHTML = '<div id="late">late content</div>';</script></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newConsentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/banner" {
			fmt.Fprint(w, `<!doctype html><html><body><p>article</p>`+
				`<button onclick="document.body.dataset.ok=1">Accept cookies</button></body></html>`)
			return
		}
		fmt.Fprint(w, `<!doctype html><html><body><p>no banner here</p></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}
