package main

import (
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/urfave/cli/v2"

	"github.com/ivossos/growzone-realtime/internal/auth"
	gzcli "github.com/ivossos/growzone-realtime/internal/cli"
	"github.com/ivossos/growzone-realtime/internal/dispatch"
	"github.com/ivossos/growzone-realtime/internal/fanout"
	"github.com/ivossos/growzone-realtime/internal/handler"
	"github.com/ivossos/growzone-realtime/internal/lifecycle"
	"github.com/ivossos/growzone-realtime/internal/localws"
	"github.com/ivossos/growzone-realtime/internal/publish"
	"github.com/ivossos/growzone-realtime/internal/registry"
	"github.com/ivossos/growzone-realtime/internal/transport"
)

var service = gzcli.NewService("ws-handler")

func main() {
	app := gzcli.App(
		service,
		action,
		append(
			gzcli.CommonFlags,
			&gzcli.SecretNameFlag,
			gzcli.PortFlag(8080),
		)...,
	)
	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	logger := gzcli.Logger(service)
	sess := session.Must(session.NewSession(aws.NewConfig()))

	verifier, err := auth.LoadSigningSecret(sess, gzcli.CommonOpts.SecretName)
	if err != nil {
		return err
	}

	reg := registry.Build(dynamodb.New(sess), gzcli.CommonOpts.Env)

	var presence lifecycle.Presence
	if !gzcli.CommonOpts.Dry {
		presence = publish.Build(gzcli.CommonOpts.Env)
	}

	if gzcli.CommonOpts.Console {
		srv := localws.NewServer(logger)
		router := &fanout.Router{Connections: reg, Transport: srv, Logger: logger}
		srv.Hooks = &lifecycle.Hooks{Registry: reg, Verifier: verifier, Presence: presence, Logger: logger}
		srv.Dispatcher = &dispatch.Dispatcher{Registry: reg, Fanout: router, Store: dispatch.NopStore{}, Logger: logger}
		srv.Connections = reg
		return srv.ListenAndServe(gzcli.CommonOpts.Port)
	}

	router := &fanout.Router{
		Connections: reg,
		Transport:   transport.NewAPIGateway(),
		Logger:      logger,
	}
	metrics := gzcli.NewMetrics(service, cloudwatch.New(sess))
	h := &handler.Handler{
		Hooks:       &lifecycle.Hooks{Registry: reg, Verifier: verifier, Presence: presence, Logger: logger},
		Dispatcher:  &dispatch.Dispatcher{Registry: reg, Fanout: router, Store: dispatch.NopStore{}, Logger: logger},
		Connections: reg,
		Logger:      logger,
		Metrics:     &metrics,
	}
	lambda.Start(h.HandleEvent)
	return nil
}
