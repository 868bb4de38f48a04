package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/urfave/cli/v2"

	gzcli "github.com/ivossos/growzone-realtime/internal/cli"
	"github.com/ivossos/growzone-realtime/internal/registry"
	"github.com/ivossos/growzone-realtime/internal/sweeper"
)

var service = gzcli.NewService("ws-sweeper")

func main() {
	app := gzcli.App(
		service,
		action,
		gzcli.CommonFlags...,
	)
	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := gzcli.Logger(service)
	sess := session.Must(session.NewSession(aws.NewConfig()))

	s := &sweeper.Sweeper{
		Registry: registry.Build(dynamodb.New(sess), gzcli.CommonOpts.Env),
		Logger:   logger,
	}

	switch {
	case gzcli.CommonOpts.Console:
		return s.Run(context.Background())

	default:
		lambda.Start(func(ctx context.Context, _ json.RawMessage) error {
			return s.Run(ctx)
		})
	}
	return nil
}
