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
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated originator of a request.
type User struct {
	Name string
}

var anonymousUser = &User{Name: "anonymous"}

// IssueToken creates a bearer token for the given user that is accepted by an
// API with the same JWT secret.
func IssueToken(secret []byte, userName string, now time.Time, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	})
	return token.SignedString(secret)
}

var errNoSubject = errors.New("token does not identify a user")

// authenticate checks the Authorization header of a request. It returns nil
// without an error if the header is absent.
func (cfg Configuration) authenticate(authHeader string, timeNow func() time.Time) (*User, error) {
	if len(cfg.JWTSecret) == 0 {
		return anonymousUser, nil
	}
	if authHeader == "" {
		return nil, nil
	}
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil, errors.New("expected a bearer token in the Authorization header")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return cfg.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(timeNow),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}
	return &User{Name: claims.Subject}, nil
}
