package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/forkchain/app/services/viewer/handlers"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Index(t *testing.T) {
	t.Log("Given the need to serve the viewer page for a node.")
	{
		app, err := handlers.UIMux(make(chan os.Signal, 1), zap.NewNop().Sugar(), "localhost:8080")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the mux: %v", failed, err)
		}

		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould get the page: got %d", failed, w.Code)
		}
		t.Logf("\t%s\tShould get the page.", success)

		if !strings.Contains(w.Body.String(), "forkchain node localhost:8080") {
			t.Fatalf("\t%s\tShould render the node host into the page.", failed)
		}
		t.Logf("\t%s\tShould render the node host into the page.", success)
	}
}
