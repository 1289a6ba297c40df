// Command lambda serves the cloud pipeline as an AWS Lambda function. The
// invocation payload is ignored; the result is {statusCode, body, report}.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/lepinkainen/bookpipeline/cmd"
	"github.com/lepinkainen/bookpipeline/internal/pipeline"
)

var (
	runCloud = cmd.RunCloud
	start    = func(handler any) { lambda.Start(handler) }
)

func handler(ctx context.Context) (pipeline.Status, error) {
	return runCloud(ctx)
}

func main() {
	cmd.InitLogging(os.Getenv("LOG_LEVEL"))
	start(handler)
}
