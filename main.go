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

package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	routescmd "github.com/sapcc/restmachine/cmd/routes"
	servecmd "github.com/sapcc/restmachine/cmd/serve"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

func main() {
	// a .env file is optional, but the environment takes precedence over it
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logg.Fatal("cannot load .env: %s", err.Error())
	}
	logg.ShowDebug = osext.GetenvBool("RESTMACHINE_DEBUG")

	rootCmd := &cobra.Command{
		Use:     "restmachine",
		Short:   "Example server for the restmachine HTTP framework",
		Long:    "This binary serves an example todo API built with the restmachine HTTP framework, and lists its routes.",
		Version: restmachine.Version,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	servecmd.AddCommandTo(rootCmd)
	routescmd.AddCommandTo(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logg.Fatal(err.Error())
	}
}
