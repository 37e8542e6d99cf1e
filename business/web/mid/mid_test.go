package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/forkchain/business/web/errs"
	"github.com/ardanlabs/forkchain/business/web/mid"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
	"github.com/ardanlabs/forkchain/foundation/validate"
	"github.com/ardanlabs/forkchain/foundation/web"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Errors(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}

	tt := []struct {
		name    string
		handler web.Handler
		status  int
		message string
		fields  bool
	}{
		{
			name:    "mempool full",
			handler: fail(errs.FromDomain(fmt.Errorf("upsert: %w", mempool.ErrMempoolFull))),
			status:  http.StatusTooManyRequests,
			message: "upsert: mempool full",
		},
		{
			name:    "validation",
			handler: fail(errs.FromDomain(fmt.Errorf("tx: %w", database.ErrNonceGap))),
			status:  http.StatusBadRequest,
			message: "tx: nonce gap",
		},
		{
			name:    "already known",
			handler: fail(errs.FromDomain(state.ErrAlreadyKnown)),
			status:  http.StatusConflict,
			message: "already known",
		},
		{
			name:    "not found",
			handler: fail(errs.FromDomain(state.ErrNotFound)),
			status:  http.StatusNotFound,
			message: "not found",
		},
		{
			name:    "field errors",
			handler: fail(validate.Check(payload{})),
			status:  http.StatusBadRequest,
			message: "data validation error",
			fields:  true,
		},
		{
			name:    "untrusted",
			handler: fail(errs.FromDomain(errors.New("disk on fire"))),
			status:  http.StatusInternalServerError,
			message: http.StatusText(http.StatusInternalServerError),
		},
		{
			name: "panic",
			handler: func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				panic("boom")
			},
			status:  http.StatusInternalServerError,
			message: http.StatusText(http.StatusInternalServerError),
		},
	}

	t.Log("Given the need to translate handler errors into responses.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s error.", testID, tst.name)
				{
					log := zap.NewNop().Sugar()
					app := web.NewApp(make(chan os.Signal, 1), mid.Logger(log), mid.Errors(log), mid.Metrics(), mid.Panics())
					app.Handle(http.MethodGet, "v1", "/test", tst.handler)

					w := httptest.NewRecorder()
					app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/test", nil))

					if w.Code != tst.status {
						t.Fatalf("\t%s\tTest %d:\tShould get status %d: got %d", failed, testID, tst.status, w.Code)
					}
					t.Logf("\t%s\tTest %d:\tShould get status %d.", success, testID, tst.status)

					var resp errs.Response
					if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to decode the response: %v", failed, testID, err)
					}

					if resp.Error != tst.message {
						t.Fatalf("\t%s\tTest %d:\tShould get message %q: got %q", failed, testID, tst.message, resp.Error)
					}
					t.Logf("\t%s\tTest %d:\tShould get the expected message.", success, testID)

					if tst.fields && resp.Fields["name"] == "" {
						t.Fatalf("\t%s\tTest %d:\tShould get the failed field: got %v", failed, testID, resp.Fields)
					}
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func fail(err error) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return err
	}
}
