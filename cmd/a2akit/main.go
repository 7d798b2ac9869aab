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

// Command a2akit serves, inspects and calls A2A agents.
//
// Usage:
//
//	a2akit serve --agent echo
//	a2akit serve --config a2akit.yaml --watch
//	a2akit serve --config a2akit/config --config-type consul --config-endpoints 127.0.0.1:8500
//	a2akit validate --format json
//	a2akit call http://localhost:8000 "hello"
package main

import (
	"github.com/alecthomas/kong"

	"github.com/kadirpekel/a2akit/pkg/config"
	"github.com/kadirpekel/a2akit/pkg/registry"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the A2A server."`
	Validate ValidateCmd `cmd:"" help:"Check agent card compliance and the deployment environment."`
	Card     CardCmd     `cmd:"" help:"Print the agent card."`
	Call     CallCmd     `cmd:"" help:"Send a message to a remote agent."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the config file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config          string   `short:"c" help:"Config file path, or key/node for remote config types." env:"A2AKIT_CONFIG"`
	ConfigType      string   `name:"config-type" help:"Config source (file, consul, etcd, zookeeper)." default:"file" enum:"file,consul,etcd,zookeeper,zk"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Remote config store addresses." sep:"," placeholder:"HOST:PORT"`
	ConfigToken     string   `name:"config-token" help:"Remote config store token." env:"A2AKIT_CONFIG_TOKEN"`
	EnvFile         []string `name:"env-file" help:"Dotenv files to load. Existing variables win." default:".env" sep:","`
	LogLevel        string   `help:"Log level (debug, info, warn, error)."`
	LogFile         string   `help:"Log file path (empty = stderr)."`
	LogFormat       string   `help:"Log format (simple, verbose, json)."`

	logCleanup func()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("a2akit"),
		kong.Description("A2A agent toolkit"),
		kong.UsageOnError(),
		kong.Vars{"registry_path": registry.DefaultPath},
	)
	defer cli.closeLog()

	ctx.FatalIfErrorf(config.LoadEnvFiles(cli.EnvFile...))
	ctx.FatalIfErrorf(cli.initLogger(nil))

	err := ctx.Run(&cli)
	cli.closeLog()
	ctx.FatalIfErrorf(err)
}
