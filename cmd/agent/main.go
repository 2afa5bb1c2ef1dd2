package main

import (
	"context"
	"os"

	"github.com/apex/log"
	"github.com/aws/aws-lambda-go/lambda"

	"opsagent/internal/app"
	"opsagent/internal/handlers"
)

func main() {
	ctx := context.Background()

	a, err := app.Load(ctx)
	if err != nil {
		log.WithError(err).Error("startup failed")
		os.Exit(1)
	}

	h := &handlers.FunctionURLHandler{Invoker: a.Invoker}
	lambda.Start(h.Handle)
}
