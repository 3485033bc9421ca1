// ABOUTME: Web dashboard CLI command
// ABOUTME: Serves the read-only dashboard on localhost
package cli

import (
	"flag"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/web"
)

// WebCommand starts the dashboard server and blocks.
func WebCommand(eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("web", flag.ExitOnError)
	port := fs.Int("port", 8080, "Port to listen on")
	_ = fs.Parse(args)

	srv, err := web.NewServer(eng)
	if err != nil {
		return err
	}
	return srv.Start(*port)
}
