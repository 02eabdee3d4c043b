package main

import (
	"log"
	"os"

	"manualbase/config"
	"manualbase/server"
)

func main() {
	cfg := config.MustLoad(os.Args[1:])
	app := &server.App{}
	if err := app.Initialize(cfg); err != nil {
		log.Fatal(err)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
