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

package restmachine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ResponsesCounter is a prometheus.CounterVec.
	ResponsesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restmachine_responses",
			Help: "Counts responses produced by the request state machine, by the decision that produced them.",
		},
		[]string{"method", "status", "decision"},
	)
	// DependencyEvaluationsCounter is a prometheus.CounterVec.
	DependencyEvaluationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restmachine_dependency_evaluations",
			Help: "Counts how often dependency providers were invoked (cache misses only).",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(ResponsesCounter)
	prometheus.MustRegister(DependencyEvaluationsCounter)
}
