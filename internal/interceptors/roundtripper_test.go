package interceptors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func TestRoundTripperOutsideActivity(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	resp, err := NewClient(nil).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, got.Get(HeaderWorkflowID))
}

func TestRoundTripperInsideActivity(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := NewClient(nil)
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(call, activity.RegisterOptions{Name: "CallLLM"})
	_, err := env.ExecuteActivity("CallLLM")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Get(HeaderWorkflowID))
	assert.Equal(t, "CallLLM", got.Get(HeaderActivity))
}
