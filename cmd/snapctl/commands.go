package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"snapforecast/internal/app"
	"snapforecast/internal/domain"
	"snapforecast/internal/features"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/predict"
)

func newTrainCommand() *cobra.Command {
	var (
		platform  string
		modelType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a new ensemble version from stored performance records",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := modelstore.ParseModelType(modelType)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Train(ctx, platform, t, limit)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Platform (defaults to SNAP_DEFAULT_PLATFORM)")
	cmd.Flags().StringVar(&modelType, "model-type", "", "snap_delta, position_change, roi or category_success")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of performance records")
	_ = cmd.MarkFlagRequired("model-type")
	return cmd
}

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <handle>",
		Short: "Classify an author's experience and show the chosen strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printJSON(a.Classifier.Classify(ctx, args[0]))
			})
		},
	}
}

type contentFlags struct {
	text       string
	handle     string
	platform   string
	category   string
	rewardPool float64
	campaignID string
	images     int
}

func (f *contentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.text, "text", "", "Content text")
	cmd.Flags().StringVar(&f.handle, "handle", "", "Author handle")
	cmd.Flags().StringVar(&f.platform, "platform", "", "Platform (defaults to SNAP_DEFAULT_PLATFORM)")
	cmd.Flags().StringVar(&f.category, "category", "", "Campaign category")
	cmd.Flags().Float64Var(&f.rewardPool, "reward-pool", 0, "Campaign reward pool")
	cmd.Flags().StringVar(&f.campaignID, "campaign-id", "", "Stored campaign, used when no category or reward pool is given")
	cmd.Flags().IntVar(&f.images, "images", 0, "Number of attached images")
	_ = cmd.MarkFlagRequired("text")
}

func (f *contentFlags) campaign() *domain.CampaignContext {
	if f.category == "" && f.rewardPool == 0 {
		return nil
	}
	return &domain.CampaignContext{Category: f.category, RewardPool: f.rewardPool, Platform: f.platform}
}

func newExtractCommand() *cobra.Command {
	var flags contentFlags
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print the feature vector of a piece of content",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				platform := flags.platform
				if platform == "" {
					platform = a.Config.DefaultPlatform
				}
				return printJSON(a.Extractor.Extract(ctx, features.Request{
					Text:       flags.text,
					Identity:   flags.handle,
					Platform:   platform,
					Campaign:   flags.campaign(),
					CampaignID: flags.campaignID,
					ImageCount: flags.images,
				}))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newPredictCommand() *cobra.Command {
	var (
		flags     contentFlags
		modelType string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict one metric for a piece of content",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := modelstore.ParseModelType(modelType)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Predict(ctx, predict.Request{
					ModelType:  t,
					Text:       flags.text,
					Handle:     flags.handle,
					Platform:   flags.platform,
					Campaign:   flags.campaign(),
					CampaignID: flags.campaignID,
					ImageCount: flags.images,
				})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&modelType, "model-type", string(modelstore.SnapDelta), "snap_delta, position_change, roi or category_success")
	return cmd
}

func newModelsCommand() *cobra.Command {
	var (
		platform     string
		modelType    string
		modelVersion string
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show stored ensemble versions and metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := modelstore.ParseModelType(modelType)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if platform == "" {
					platform = a.Config.DefaultPlatform
				}
				versions, err := a.Models.Versions(ctx, platform, t)
				if err != nil {
					return err
				}
				meta, err := a.Models.Metadata(ctx, platform, t, modelVersion)
				if err != nil && !errors.Is(err, modelstore.ErrModelNotFound) {
					return err
				}
				out := map[string]any{"versions": versions}
				if err == nil {
					out["metadata"] = meta
				}
				return printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Platform (defaults to SNAP_DEFAULT_PLATFORM)")
	cmd.Flags().StringVar(&modelType, "model-type", "", "snap_delta, position_change, roi or category_success")
	cmd.Flags().StringVar(&modelVersion, "version", modelstore.LatestVersion, "Version to describe")
	_ = cmd.MarkFlagRequired("model-type")
	return cmd
}

func newAnalyzeCommand() *cobra.Command {
	var platform string
	cmd := &cobra.Command{
		Use:   "analyze <category>",
		Short: "Analyse top-ranked content of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Optimizer == nil {
					return app.ErrNoDatabase
				}
				if platform == "" {
					platform = a.Config.DefaultPlatform
				}
				analysis, err := a.Optimizer.Analyze(ctx, args[0], platform)
				if err != nil {
					return err
				}
				return printJSON(analysis)
			})
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Platform (defaults to SNAP_DEFAULT_PLATFORM)")
	return cmd
}
