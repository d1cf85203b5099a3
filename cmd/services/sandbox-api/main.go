package main

import (
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"interactive-run-sandbox/internal/config"
	"interactive-run-sandbox/internal/parser"
	"interactive-run-sandbox/internal/queue"
	"interactive-run-sandbox/internal/repository"
	"interactive-run-sandbox/internal/routing"
	"interactive-run-sandbox/internal/sandbox"
)

func getTranslator() ut.Translator {
	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")

	return translator
}

func main() {
	if config.GetCurrentEnvironment() == config.DevelopmentEnvironment {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zlog.Info().Msg("starting sandbox-api")
	args := parser.ParseDefaultConfigurationArguments()

	eventQueue, queueErr := queue.NewQueue(&queue.Config{
		ForceLocalMode: args.NsqAddress == "",
		Nsq: &queue.NsqConfig{
			Address: args.NsqAddress,
			Port:    args.NsqPort,
			Topic:   args.NsqTopic,
		},
	})

	if queueErr != nil {
		zlog.Fatal().Err(queueErr).Msg("failed to create queue")
	}

	defer eventQueue.Stop()

	var repo repository.Repository

	if args.DatabaseConn != "" {
		client, repoErr := repository.NewRepository(args.DatabaseConn)

		if repoErr != nil {
			zlog.Fatal().Err(repoErr).Msg("failed to create database connection")
		}

		repo = client
	}

	manager := sandbox.NewManager(sandbox.Config{
		Root:                  args.SandboxRoot,
		SessionTimeout:        args.SessionTimeout,
		CompileTimeout:        args.CompileTimeout,
		QuiescenceWindow:      args.QuiescenceWindow,
		PromptWindow:          args.PromptWindow,
		PollInterval:          args.PollInterval,
		MaxConcurrentSessions: args.MaxConcurrentSessions,
		SessionRetention:      args.SessionRetention,
	})

	defer manager.Close()

	manager.OnSubmit = func(resp sandbox.Response) {
		if repo == nil {
			return
		}

		insertErr := repo.InsertExecution(&repository.Execution{
			ID:       resp.ID,
			Language: resp.Language,
			Status:   resp.Status.String(),
		})

		if insertErr != nil {
			zlog.Error().Err(insertErr).Str("sessionID", resp.ID).
				Msg("failed to insert execution record")
		}
	}

	manager.OnTerminal = func(resp sandbox.Response) {
		if repo != nil {
			_, updateErr := repo.UpdateExecution(resp.ID, repository.Execution{
				Status:    resp.Status.String(),
				CompileMs: resp.CompileTime.Milliseconds(),
				RuntimeMs: resp.Runtime.Milliseconds(),
			})

			if updateErr != nil {
				zlog.Error().Err(updateErr).Str("sessionID", resp.ID).
					Msg("failed to update execution record")
			}
		}

		event := &queue.ExecutionEvent{
			ID:            resp.ID,
			Language:      resp.Language,
			Status:        resp.Status.String(),
			RuntimeMs:     resp.Runtime.Milliseconds(),
			CompileTimeMs: resp.CompileTime.Milliseconds(),
		}

		if publishErr := eventQueue.PublishExecutionEvent(event); publishErr != nil {
			zlog.Error().Err(publishErr).Str("sessionID", resp.ID).
				Msg("failed to publish execution event")
		}
	}

	validate := validator.New()
	translator := getTranslator()

	// register the validator with the translator to get clean readable generated
	// error messages from validation actions. This massively simplifies returning
	// error messages in the future.
	_ = enTranslations.RegisterDefaultTranslations(validate, translator)

	router := routing.NewRouter(routing.SandboxHandlers{
		Manager:    manager,
		Translator: translator,
		Validator:  validate,
	})

	zlog.Info().Str("address", args.ListenAddress).Msg("listening")

	handler := handlers.CompressHandler(handlers.LoggingHandler(os.Stdout, router))

	if listenErr := http.ListenAndServe(args.ListenAddress, handler); listenErr != nil {
		zlog.Fatal().Err(listenErr).Msg("failed to listen")
	}
}
