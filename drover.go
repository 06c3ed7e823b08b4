package main

import (
	"github.com/drover-sh/drover/cmd"
	"github.com/drover-sh/drover/pkg/env"
	"github.com/drover-sh/drover/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("drover failure", "error", err)
	}
}
