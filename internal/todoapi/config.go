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
	"strconv"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"
	"golang.org/x/time/rate"
)

// Configuration contains the configuration of the todo API.
type Configuration struct {
	// Secret for HS256-signed bearer tokens. If empty, authentication is
	// disabled and all requests act as the user "anonymous".
	JWTSecret []byte
	// Allowed requests per second, and burst size. A zero RateLimit disables
	// rate limiting.
	RateLimit rate.Limit
	RateBurst int
}

// ParseConfiguration obtains a Configuration from the corresponding
// environment variables. Aborts on error.
func ParseConfiguration() Configuration {
	logg.Debug("parsing configuration...")

	cfg := Configuration{
		JWTSecret: []byte(osext.GetenvOrDefault("RESTMACHINE_JWT_SECRET", "")),
		RateLimit: rate.Limit(parseFloat("RESTMACHINE_RATE_LIMIT", "0")),
		RateBurst: int(parseFloat("RESTMACHINE_RATE_BURST", "10")),
	}
	if len(cfg.JWTSecret) == 0 {
		logg.Info("RESTMACHINE_JWT_SECRET is not set: authentication is disabled")
	}
	return cfg
}

func parseFloat(key, defaultValue string) float64 {
	str := osext.GetenvOrDefault(key, defaultValue)
	value, err := strconv.ParseFloat(str, 64)
	if err != nil || value < 0 {
		logg.Fatal("malformed %s: %q", key, str)
	}
	return value
}

// newLimiter returns the token bucket for the service_available check.
func (cfg Configuration) newLimiter() *rate.Limiter {
	if cfg.RateLimit == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(cfg.RateLimit, max(cfg.RateBurst, 1))
}
