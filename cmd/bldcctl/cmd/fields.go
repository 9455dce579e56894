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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// flags
var fieldsURLFlag string

// fetchFields returns the flattened telemetry snapshot from a running
// daemon's monitoring endpoint.
func fetchFields(url string) (map[string]any, error) {
	c := http.Client{
		Timeout: time.Second * 2,
	}

	resp, err := c.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	m := map[string]any{}
	err = json.Unmarshal(b, &m)
	return m, err
}

func printFields(w io.Writer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, m[k])
	}
}

func init() {
	fieldsCmd.Flags().StringVar(&fieldsURLFlag, "url", "http://localhost:8889", "monitoring endpoint of a running daemon")
	RootCmd.AddCommand(fieldsCmd)
}

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print every telemetry field of a running daemon",
	Run: func(c *cobra.Command, _ []string) {
		ConfigureVerbosity()
		m, err := fetchFields(fieldsURLFlag)
		if err != nil {
			log.Fatalf("fetching fields: %v", err)
		}
		printFields(c.OutOrStdout(), m)
	},
}
