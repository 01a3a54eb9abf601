// Command gateway runs the dental radiograph gateway and its admin tooling.
//
//	@title						Dental Radiograph Gateway API
//	@version					1.0
//	@description				Submit dental radiographs for asynchronous analysis and poll for results.
//	@BasePath					/
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package main

import (
	"fmt"
	"os"

	"github.com/tbourn/dental-gateway/cmd/gateway/cli"
)

// Set via -ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
