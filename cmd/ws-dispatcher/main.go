package main

import (
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/urfave/cli/v2"

	gzcli "github.com/ivossos/growzone-realtime/internal/cli"
	"github.com/ivossos/growzone-realtime/internal/fanout"
	"github.com/ivossos/growzone-realtime/internal/registry"
	"github.com/ivossos/growzone-realtime/internal/transport"
	"github.com/ivossos/growzone-realtime/internal/worker"
)

var service = gzcli.NewService("ws-dispatcher")

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

	reg := registry.Build(dynamodb.New(sess), gzcli.CommonOpts.Env)
	w := &worker.Worker{
		Router: &fanout.Router{
			Connections: reg,
			Transport:   transport.NewAPIGateway(),
			Logger:      logger,
		},
		Logger: logger,
	}
	lambda.Start(w.HandleKinesisEvent)
	return nil
}
