package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcdonaldj/sitebak/internal/adapters/maclaunchd"
	"github.com/mcdonaldj/sitebak/internal/cli"
)

// version is set via ldflags at build time: -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cli.New(version)
	c.Ctx = ctx
	c.SchedulerSvc = maclaunchd.New()
	c.Connect = connect
	c.Run()
}
