package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/idkeeper/internal/verifier"
	"github.com/dmitrijs2005/idkeeper/internal/verifier/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := verifier.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}

}
