// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command loomstate is a thin CLI shell around the engine library. It
// knows how to validate a config file and report the graph topology it
// would compile; it does not embed any concrete LLM provider or tool
// implementation, both of which are host-application concerns (spec.md §1).
//
// Usage:
//
//	loomstate validate config.yaml
//	loomstate run config.yaml --graph assistant
//	loomstate version
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/loomstate/loomstate"
	"github.com/loomstate/loomstate/pkg/logger"
)

// CLI defines the loomstate command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Run      RunCmd      `cmd:"" help:"Compile a configured graph and report its shape."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd prints build/version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(loomstate.GetVersion().String())
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("loomstate"),
		kong.Description("loomstate - a state-graph runtime for LLM agent orchestration"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", cli.LogLevel, err)
		os.Exit(1)
	}
	logger.Init(level, os.Stderr, cli.LogFormat)

	ctx.FatalIfErrorf(ctx.Run(&cli))
}
