package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/dspace-go/dsfront/internal/app"
	"github.com/dspace-go/dsfront/internal/changesubmitter"
)

var (
	csToken  string
	csItemID string
	csLang   string
	csDryRun bool
)

var changeSubmitterCmd = &cobra.Command{
	Use:   "change-submitter",
	Short: "Make the current user the submitter of a shared workspace item",
	Example: `  dsfront change-submitter --token share-4f1c9b --id 42
  dsfront change-submitter --token share-4f1c9b --dry-run`,
	Args: cobra.NoArgs,
	RunE: runChangeSubmitter,
}

func init() {
	changeSubmitterCmd.Flags().StringVar(&csToken, "token", "", "Share token of the link (required)")
	changeSubmitterCmd.Flags().StringVar(&csItemID, "id", "", "Workspace item id of the link")
	changeSubmitterCmd.Flags().StringVar(&csLang, "lang", "", "Language of notifications (default: defaultLanguage)")
	changeSubmitterCmd.Flags().BoolVar(&csDryRun, "dry-run", false, "Only show the workspace item and its submitter")
	_ = changeSubmitterCmd.MarkFlagRequired("token")
}

// changeSubmitterOutput is printed as JSON.
type changeSubmitterOutput struct {
	Before        changesubmitter.View  `json:"before"`
	After         *changesubmitter.View `json:"after,omitempty"`
	Notifications any                   `json:"notifications,omitempty"`
}

func runChangeSubmitter(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	a, err := app.NewApplication(env, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	page := a.ChangeSubmitterPage(url.Values{
		changesubmitter.ParamShareToken:      {csToken},
		changesubmitter.ParamWorkspaceItemID: {csItemID},
	}, csLang, nil)
	if err := page.Init(ctx); err != nil {
		return fmt.Errorf("load share link: %w", err)
	}

	out := changeSubmitterOutput{Before: page.Snapshot()}
	var changeErr error
	if !csDryRun {
		changeErr = page.ChangeSubmitter(ctx)
		after := page.Snapshot()
		out.After = &after
		out.Notifications = a.Notifications.List()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return changeErr
}
