// Command cleanup is the Lambda entrypoint for the DynamoDB Streams
// handler that cancels reservations orphaned by product removal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sethvargo/go-envconfig"

	"github.com/jacentio/giftlist/registry"
	"github.com/jacentio/giftlist/store"
	"github.com/jacentio/giftlist/stream"
)

type appConfig struct {
	Table    string     `env:"TABLE_NAME,default=giftlist"`
	LogLevel slog.Level `env:"LOG_LEVEL,default=info"`
}

func main() {
	ctx := context.Background()

	var cfg appConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	st := store.New(dynamodb.NewFromConfig(awsCfg), store.Config{Table: cfg.Table})
	h := stream.NewHandler(registry.NewManager(st), logger)

	lambda.Start(h.HandleProductRemoval)
}
