package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/DrSkyle/cloudsentinel/internal/app"
)

func main() {
	h, err := app.Bootstrap(context.Background(), "cloudsentinel-tagger")
	if err != nil {
		slog.Error("Bootstrap failed", "error", err)
		os.Exit(1)
	}
	lambda.Start(h.Tag)
}
