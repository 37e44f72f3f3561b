package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cvreview/config"
	"cvreview/internal/review/controller"
	"cvreview/internal/review/model"
	"cvreview/internal/review/remote"
	"cvreview/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

const requestTimeout = 2 * time.Minute

type options struct {
	apiURL    string
	userID    string
	workspace string
	delay     time.Duration
	verbose   bool
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{delay: cfg.AutosaveDelay}

	root := &cobra.Command{
		Use:           "reviewctl",
		Short:         "Rate, comment and queue CVs in a review workspace",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logger.InitLevel(zapcore.InfoLevel)
			} else {
				logger.InitLevel(zapcore.ErrorLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", cfg.ReviewAPIURL, "review API base URL (REVIEW_API_URL)")
	root.PersistentFlags().StringVarP(&opts.userID, "user", "u", cfg.ReviewUserID, "signed-in user id (REVIEW_USER_ID)")
	root.PersistentFlags().StringVarP(&opts.workspace, "workspace", "w", cfg.ReviewWorkspace, "workspace id (REVIEW_WORKSPACE)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log sync activity to stderr")

	root.AddCommand(
		newVoteCmd(opts),
		newCommentCmd(opts),
		newQueueCmd(opts),
		newSummaryCmd(opts),
		newDocumentsCmd(opts),
		newGradeCmd(opts),
		newLetterCmd(opts),
	)
	return root
}

// withSession opens a controller on the configured workspace, runs fn and
// pushes whatever fn left unsynced.
func (o *options) withSession(cmd *cobra.Command, fn func(ctx context.Context, c *controller.Controller) error) error {
	if o.userID == "" {
		return errors.New("no user id: pass --user or set REVIEW_USER_ID")
	}
	if o.workspace == "" {
		return errors.New("no workspace: pass --workspace or set REVIEW_WORKSPACE")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	c := controller.New(remote.New(o.apiURL, nil), controller.Options{AutosaveDelay: o.delay})
	if err := c.Open(ctx, o.userID); err != nil {
		return err
	}
	if err := c.Load(ctx, o.workspace); err != nil {
		return err
	}

	err := fn(ctx, c)
	if closeErr := c.Close(ctx); closeErr != nil {
		return errors.Join(err, fmt.Errorf("save: %w", closeErr))
	}
	return err
}

// findDocument resolves id against the workspace listing. Unknown ids get a
// bare document so offline queues still work.
func findDocument(ctx context.Context, c *controller.Controller, id string) model.Document {
	docs, err := c.Documents(ctx)
	if err != nil {
		logger.Sugar.Warnf("Could not list documents: %v", err)
	}
	for _, d := range docs {
		if d.ID == id {
			return d
		}
	}
	return model.Document{ID: id, Name: id}
}
