package main

import (
	"toslinks/cmd/toslinks-cli/commands"
	"toslinks/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
