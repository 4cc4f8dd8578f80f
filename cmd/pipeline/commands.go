package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/bootstrap"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/config"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/artifact"
)

const pushJob = "data_transformation"

// flags override the environment configuration for a single invocation.
type flags struct {
	trainFile        string
	testFile         string
	validationReport string
	collection       string
	ingest           bool
	timeout          time.Duration
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	f := &flags{}

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Vehicle-insurance data transformation stage",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), apply(cfg, f), runTransform)
		},
	}
	root.PersistentFlags().StringVar(&f.trainFile, "train", cfg.TrainFilePath, "Train split file (CSV or XLSX)")
	root.PersistentFlags().StringVar(&f.testFile, "test", cfg.TestFilePath, "Test split file (CSV or XLSX)")
	root.PersistentFlags().StringVar(&f.validationReport, "validation-report", cfg.ValidationReportPath, "YAML report written by the validation stage")
	root.PersistentFlags().StringVar(&f.collection, "collection", cfg.SourceCollection, "Source table exported by ingestion")
	root.PersistentFlags().BoolVar(&f.ingest, "ingest", cfg.IngestFromDB, "Export and split the source table before transforming")
	root.PersistentFlags().DurationVarP(&f.timeout, "timeout", "t", time.Duration(cfg.TransformTimeoutSeconds)*time.Second, "Timeout for the transformation")

	root.AddCommand(&cobra.Command{
		Use:   "ingest",
		Short: "Export the source table and write the train/test split",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), apply(cfg, f), func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.IngestUC.Ingest(ctx, app.Config.SourceCollection)
				if err != nil {
					return err
				}
				app.Logger.Info("data ingestion artifact",
					"train_file_path", out.TrainFilePath,
					"test_file_path", out.TestFilePath,
				)
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Publish a validation-completed request for the worker instead of transforming locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := apply(cfg, f)
			c.EventsEnabled = true
			return withApp(cmd.Context(), c, runDispatch)
		},
	})
	return root
}

func apply(cfg config.Config, f *flags) config.Config {
	cfg.TrainFilePath = f.trainFile
	cfg.TestFilePath = f.testFile
	cfg.ValidationReportPath = f.validationReport
	cfg.SourceCollection = f.collection
	cfg.IngestFromDB = f.ingest
	if f.timeout > 0 {
		cfg.TransformTimeoutSeconds = int(f.timeout.Seconds())
	}
	return cfg
}

// withApp bootstraps the stage, runs fn and always pushes metrics before
// releasing resources.
func withApp(ctx context.Context, cfg config.Config, fn func(context.Context, *bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, cfg, "pipeline")
	if err != nil {
		return err
	}
	defer app.Close()

	runErr := fn(ctx, app)
	if runErr != nil {
		app.Logger.Error("pipeline failed", "error", runErr)
	}

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Metrics.Push(pushCtx, cfg.PushgatewayURL, pushJob); err != nil {
		app.Logger.Warn("metrics push failed", "error", err)
	}
	return runErr
}

func runTransform(ctx context.Context, app *bootstrap.App) error {
	if app.Config.DispatchToWorker {
		return runDispatch(ctx, app)
	}
	req, err := buildRequest(ctx, app)
	if err != nil {
		return err
	}

	transformCtx, cancel := context.WithTimeout(ctx, time.Duration(app.Config.TransformTimeoutSeconds)*time.Second)
	defer cancel()
	out, err := app.TransformUC.Transform(transformCtx, req)
	if err != nil {
		return err
	}
	app.Logger.Info("data transformation artifact",
		"transformed_object_file_path", out.TransformedObjectFilePath,
		"transformed_train_file_path", out.TransformedTrainFilePath,
		"transformed_test_file_path", out.TransformedTestFilePath,
	)
	return nil
}

func runDispatch(ctx context.Context, app *bootstrap.App) error {
	if app.Queue == nil {
		return errors.New("dispatch requires EVENTS_ENABLED")
	}
	req, err := buildRequest(ctx, app)
	if err != nil {
		return err
	}
	if err := app.Queue.PublishValidationCompleted(ctx, req); err != nil {
		return err
	}
	app.Logger.Info("transformation request dispatched", "subject", app.Config.NATSSubjectValidated)
	return nil
}

// buildRequest resolves the ingestion paths, ingesting first when asked, and
// reads the validation report. Without a report the upstream validation is
// taken as passed.
func buildRequest(ctx context.Context, app *bootstrap.App) (domain.TransformationRequest, error) {
	cfg := app.Config
	ingestion := domain.DataIngestionArtifact{
		TrainFilePath: cfg.TrainFilePath,
		TestFilePath:  cfg.TestFilePath,
	}
	if cfg.IngestFromDB {
		out, err := app.IngestUC.Ingest(ctx, cfg.SourceCollection)
		if err != nil {
			return domain.TransformationRequest{}, err
		}
		ingestion = *out
	}
	if ingestion.TrainFilePath == "" || ingestion.TestFilePath == "" {
		return domain.TransformationRequest{}, errors.New("train and test files are required unless ingestion is enabled")
	}

	validation := domain.DataValidationArtifact{ValidationStatus: true}
	if cfg.ValidationReportPath != "" {
		report, err := artifact.LoadValidationReport(cfg.ValidationReportPath)
		if err != nil {
			return domain.TransformationRequest{}, err
		}
		validation = report
	}
	return domain.TransformationRequest{Ingestion: ingestion, Validation: validation}, nil
}
