package main

import (
	"github.com/robotalks/kart.go/pkg/cli/sh"

	_ "github.com/robotalks/kart.go/pkg/cli/cmds/kart"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
