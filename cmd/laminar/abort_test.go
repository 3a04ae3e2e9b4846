package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestRunAbortPostsToAdminAPI(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	viper.Set("server", srv.URL)
	defer viper.Set("server", nil)

	cmd := abortCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runAbort(cmd, "hello", "3")
	require.NoError(t, err)

	require.Equal(t, "/api/v1/runs/hello/3/abort", gotPath)
	require.Contains(t, out.String(), "hello#3")
}
