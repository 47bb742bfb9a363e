package main

import (
	"github.com/connectex/ftclick.go/pkg/cli/sh"
	"github.com/connectex/ftclick.go/pkg/link"

	_ "github.com/connectex/ftclick.go/pkg/cli/cmds/driver"
)

func init() {
	link.SetupFlags()
}

func main() {
	sh.Main()
}
