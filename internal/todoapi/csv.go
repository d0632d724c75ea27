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

package todoapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/sapcc/restmachine/pkg/conditional"
)

const contentTypeCSV = "text/csv"

// renderCSV is the text/csv renderer of the todo list.
func renderCSV(value any) ([]byte, error) {
	todos, ok := value.([]Todo)
	if !ok {
		return nil, fmt.Errorf("cannot render %T as CSV", value)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	records := [][]string{{"id", "title", "done", "owner", "version", "updated_at"}}
	for _, t := range todos {
		records = append(records, []string{
			t.ID, t.Title, strconv.FormatBool(t.Done), t.Owner,
			strconv.Itoa(t.Version), conditional.FormatHTTPDate(t.UpdatedAt),
		})
	}
	err := w.WriteAll(records)
	return buf.Bytes(), err
}
