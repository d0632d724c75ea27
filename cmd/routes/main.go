/******************************************************************************
*
*  Copyright 2024 SAP SE
*
*  Licensed under the Apache License, Version 2.0 (the "License");
*  you may not use this file except in compliance with the License.
*  You may obtain a copy of the License at
*
*      http://www.apache.org/licenses/LICENSE-2.0
*
*  Unless required by applicable law or agreed to in writing, software
*  distributed under the License is distributed on an "AS IS" BASIS,
*  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
*  See the License for the specific language governing permissions and
*  limitations under the License.
*
******************************************************************************/

package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sapcc/go-bits/must"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sapcc/restmachine/internal/todoapi"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// AddCommandTo mounts this command into the command hierarchy.
func AddCommandTo(parent *cobra.Command) {
	var format string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the routes of the example todo API.",
		Long:  "List the routes of the example todo API together with their dependencies and decision callbacks. Exits non-zero if the application setup is invalid.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app := todoapi.NewApplication(todoapi.Configuration{}, time.Now)
			must.Succeed(app.Validate())
			must.Succeed(printRoutes(os.Stdout, format, app.RouteInfos()))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", `output format ("table", "json" or "yaml")`)
	parent.AddCommand(cmd)
}

func printRoutes(out io.Writer, format string, infos []restmachine.RouteInfo) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		return yaml.NewEncoder(out).Encode(infos)
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"Method", "Path", "Needs", "Callbacks", "Content types"})
		for _, info := range infos {
			callbacks := make([]string, 0, len(info.Callbacks))
			for _, state := range slices.Sorted(maps.Keys(info.Callbacks)) {
				callbacks = append(callbacks, state+"="+info.Callbacks[state])
			}
			t.AppendRow(table.Row{info.Method, info.Path,
				strings.Join(info.Needs, ","), strings.Join(callbacks, ","), strings.Join(info.ContentTypes, ",")})
		}
		t.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format: %q", format)
	}
}
