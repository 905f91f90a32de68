// Command changefeed is an AWS Lambda function that consumes the DynamoDB
// streams of collection tables and writes filtered changes as JSON lines.
//
// Configuration comes from BASTION_* environment variables: BASTION_MODELS,
// BASTION_TABLE_PREFIX, BASTION_LANES and the usual AWS variables.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/goccy/go-json"

	"github.com/jacentio/bastion/internal/app"
	"github.com/jacentio/bastion/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	opts := app.Options{
		Driver:      app.DriverDynamoDB,
		TablePrefix: app.Env("TABLE_PREFIX", ""),
		Region:      app.Env("REGION", ""),
		Models:      app.Env("MODELS", "models"),
	}

	models, err := app.LoadModels(opts)
	if err != nil {
		logger.Error("loading models", "error", err)
		os.Exit(1)
	}
	backend, _, err := app.OpenBackend(context.Background(), opts, logger)
	if err != nil {
		logger.Error("opening backend", "error", err)
		os.Exit(1)
	}
	registry := app.Registry(backend, models, opts, logger)

	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)
	sink := func(ctx context.Context, change stream.Change) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(change)
	}

	handler := stream.NewHandler(registry, sink, stream.Config{
		TablePrefix: opts.TablePrefix,
		Lanes:       app.EnvInt("LANES", 1),
		Logger:      logger,
	})
	logger.Info("changefeed ready", "collections", registry.Names())

	lambda.Start(handler.HandleChanges)
}
