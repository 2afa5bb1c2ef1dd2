package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"opsagent/internal/handlers"
)

func main() {
	lambda.Start(handlers.Health)
}
