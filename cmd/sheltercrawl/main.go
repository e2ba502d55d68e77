package main

import (
	"sheltercrawl/cmd/sheltercrawl/commands"
	"sheltercrawl/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
