package federation_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dnitsch/aws-session-broker/internal/federation"
)

func mockIdpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/acs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html><html><body>ok</body></html>`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
<script type="text/javascript">
	document.addEventListener('DOMContentLoaded', function() {
		var xhr = new XMLHttpRequest();
		xhr.open("POST", "/acs");
		xhr.setRequestHeader("Content-type", "application/x-www-form-urlencoded");
		xhr.send('SAMLResponse=ZmFrZS1hc3NlcnRpb24%3D&RelayState=');
	}, false);
</script>
</head>
<body><div id="login"></div></body>
</html>`))
	})
	return mux
}

func Test_Browser_captures_posted_assertion(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a local chromium")
	}
	ts := httptest.NewServer(mockIdpHandler())
	defer ts.Close()

	browser := federation.NewBrowser(federation.NewBrowserConf(t.TempDir()).WithHeadless().WithTimeout(30))

	assertion, err := browser.Assertion(context.TODO(), fmt.Sprintf("%s/login", ts.URL), fmt.Sprintf("%s/acs", ts.URL))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if assertion != "ZmFrZS1hc3NlcnRpb24=" {
		t.Errorf("got assertion %q", assertion)
	}
}

func Test_Browser_times_out_without_assertion(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a local chromium")
	}
	ts := httptest.NewServer(mockIdpHandler())
	defer ts.Close()

	browser := federation.NewBrowser(federation.NewBrowserConf(t.TempDir()).WithHeadless().WithTimeout(1))

	// the acs route is never posted to when the login page is the acs itself
	_, err := browser.Assertion(context.TODO(), fmt.Sprintf("%s/acs", ts.URL), fmt.Sprintf("%s/never", ts.URL))
	if !errors.Is(err, federation.ErrTimedOut) {
		t.Errorf("wanted ErrTimedOut got %v", err)
	}
}

func Test_ClearCache_removes_datadir(t *testing.T) {
	dir := t.TempDir()
	browser := federation.NewBrowser(federation.NewBrowserConf(dir).WithHeadless().WithTimeout(1))

	if err := browser.ClearCache(); err != nil {
		t.Errorf("expected <nil>, got: %s", err)
	}
}
