package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	fx "github.com/robotalks/kart.go/pkg/framework"
	"github.com/robotalks/kart.go/pkg/env"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.MustNewConfig()
	e := conf.MustNewEnv()
	defer e.Close()
	glog.Infof("vehicle %s: link %s, bus %s", conf.VehicleID, conf.LinkURL, conf.BusURL)

	runner := fx.NewRunner().HandleSignals()
	fx.NewLoop().Add(e).RunOrFail(runner.Context)
}
