/*
Copyright (c) The SpinDrive Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelftestPasses(t *testing.T) {
	require.Equal(t, 0, runSelftest())
}

func TestFetchFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status.mode": 7, "status.bus_voltage": 24.0}`))
	}))
	defer srv.Close()

	m, err := fetchFields(srv.URL)
	require.NoError(t, err)
	require.InDelta(t, 24.0, m["status.bus_voltage"], 1e-9)
}

func TestPrintFieldsSorted(t *testing.T) {
	var b bytes.Buffer
	printFields(&b, map[string]any{
		"b": 2.0,
		"a": 1.0,
	})
	require.Equal(t, "a: 1\nb: 2\n", b.String())
}
