// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lurelab/scamlure/agent"
	"github.com/lurelab/scamlure/callback"
	"github.com/lurelab/scamlure/config"
	"github.com/lurelab/scamlure/detector"
	"github.com/lurelab/scamlure/extractor"
	"github.com/lurelab/scamlure/guardrails"
	"github.com/lurelab/scamlure/llm"
	"github.com/lurelab/scamlure/llmsafety"
	"github.com/lurelab/scamlure/observability"
	"github.com/lurelab/scamlure/pkg/logging"
	"github.com/lurelab/scamlure/routes"
	"github.com/lurelab/scamlure/sessions"
	"github.com/lurelab/scamlure/templates"
)

// maxLLMConcurrency bounds in-flight LLM calls across all sessions.
const maxLLMConcurrency = 8

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("honeypot-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	appLog := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		LogDir:  cfg.LogDir,
		Service: "honeypot",
	})
	defer appLog.Close()
	logger := appLog.Logger
	slog.SetDefault(logger)

	observability.InitMetrics()

	if cfg.OTELEndpoint != "" {
		cleanup, err := initTracer(cfg.OTELEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	guard := guardrails.New()
	det, err := detector.New(guard)
	if err != nil {
		log.Fatalf("FATAL: could not initialize the scam detector: %v", err)
	}
	ext, err := extractor.New()
	if err != nil {
		log.Fatalf("FATAL: could not initialize the extractor: %v", err)
	}
	engine, err := templates.New()
	if err != nil {
		log.Fatalf("FATAL: could not initialize the template engine: %v", err)
	}

	fabric := llmsafety.New(llmsafety.SystemClock{}, maxLLMConcurrency)

	var llmClient llm.Client
	if cfg.LLMEnabled {
		client, err := llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
		if err != nil {
			log.Fatalf("FATAL: could not initialize the LLM client: %v", err)
		}
		llmClient = client
		slog.Info("LLM naturalization enabled", "model", cfg.LLMModel)
	} else {
		fabric.DisableAll()
		slog.Info("LLM disabled, running template-only")
	}

	queue := callback.NewQueue(cfg.QueuePath)
	dispatcher := callback.NewDispatcher(cfg.CallbackURL, queue, logger)
	dispatcher.RecoverQueued()
	if cfg.CallbackURL == "" {
		slog.Warn("CALLBACK_URL not set, finalization payloads go to the retry queue only",
			"queuePath", cfg.QueuePath)
	}

	manager := sessions.NewManager(sessions.Config{
		Detector:     det,
		Classifier:   detector.NewClassifier(llmClient, fabric),
		Extractor:    ext,
		LLMExtractor: extractor.NewLLMExtractor(ext, llmClient, fabric),
		Agent:        agent.New(engine, guard, llmClient, fabric, logger),
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	manager.StartReaper()
	defer manager.StopReaper()

	router := gin.Default()
	router.Use(otelgin.Middleware("honeypot-service"))

	routes.SetupRoutes(router, manager, cfg.APIKey)
	slog.Info("starting the honeypot server", "port", cfg.Port)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
