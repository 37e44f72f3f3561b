package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"cvreview/internal/review/controller"
	"cvreview/internal/review/model"

	"github.com/spf13/cobra"
)

func newVoteCmd(opts *options) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "vote DOCUMENT_ID RATING",
		Short: "Rate a document from 1 to 5",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("rating must be a number: %w", err)
			}
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				voter := as
				if voter == "" {
					voter = c.Voter()
				}
				if err := c.VoteAs(voter, args[0], rating); err != nil {
					return err
				}
				avg, _ := c.AverageRating(args[0])
				n, _ := c.VoterCount(args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "%s rated %s %d (average %.1f from %d)\n", voter, args[0], rating, avg, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "vote as another reviewer")
	return cmd
}

func newCommentCmd(opts *options) *cobra.Command {
	var (
		as     string
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "comment DOCUMENT_ID [TEXT...]",
		Short: "Set, replace or delete a comment on a document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				voter := as
				if voter == "" {
					voter = c.Voter()
				}
				if remove || strings.TrimSpace(text) == "" {
					if err := c.DeleteComment(voter, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s's comment on %s\n", voter, args[0])
					return nil
				}
				if err := c.EditComment(voter, args[0], text); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s's comment on %s\n", voter, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "comment as another reviewer")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the comment")
	return cmd
}

func newQueueCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the interview queue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				return printQueue(cmd, c)
			})
		},
	}
	add := &cobra.Command{
		Use:   "add DOCUMENT_ID",
		Short: "Append a document to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				if err := c.AddToQueue(ctx, findDocument(ctx, c, args[0])); err != nil {
					return err
				}
				return printQueue(cmd, c)
			})
		},
	}
	remove := &cobra.Command{
		Use:   "remove DOCUMENT_ID",
		Short: "Remove a document from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				if err := c.RemoveFromQueue(ctx, args[0]); err != nil {
					return err
				}
				return printQueue(cmd, c)
			})
		},
	}
	move := &cobra.Command{
		Use:   "move FROM TO",
		Short: "Move the entry at position FROM to position TO (1-based)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("FROM must be a number: %w", err)
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("TO must be a number: %w", err)
			}
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				if err := c.ReorderQueue(ctx, from-1, to-1); err != nil {
					return err
				}
				return printQueue(cmd, c)
			})
		},
	}
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Empty the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				if err := c.ClearQueue(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, remove, move, clear)
	return cmd
}

func printQueue(cmd *cobra.Command, c *controller.Controller) error {
	entries, err := c.Queue()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tADDED")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.ID, e.Name, e.AddedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show average rating, votes and comments per document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				rows, err := c.Summary()
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DOCUMENT\tAVG\tVOTES\tCOMMENTS\tMINE\tQUEUED")
				for _, r := range rows {
					mine := "-"
					if r.MyRating > 0 {
						mine = strconv.Itoa(r.MyRating)
					}
					fmt.Fprintf(tw, "%s\t%.1f\t%d\t%d\t%s\t%t\n", r.DocumentID, r.AverageRating, r.VoterCount, r.CommentCount, mine, r.Queued)
				}
				return tw.Flush()
			})
		},
	}
}

func newDocumentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "documents",
		Short: "List the workspace's documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				docs, err := c.Documents(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\n", d.ID, d.Name)
				}
				return tw.Flush()
			})
		},
	}
}

func newGradeCmd(opts *options) *cobra.Command {
	var position, language string
	cmd := &cobra.Command{
		Use:   "grade DOCUMENT_ID",
		Short: "Grade a CV against a position and record the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				resp, err := c.Grade(ctx, findDocument(ctx, c, args[0]), position, language)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rating: %d\n\n%s\n", resp.Rating, resp.Comment)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&position, "position", "", "position description to grade against")
	cmd.Flags().StringVar(&language, "language", "en", "language of the evaluation (en, pl, es, fr, de)")
	return cmd
}

func newLetterCmd(opts *options) *cobra.Command {
	var kind, language, company, position string
	cmd := &cobra.Command{
		Use:   "letter DOCUMENT_ID",
		Short: "Draft a rejection or acceptance letter from the reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := model.LetterKind(kind)
			if k != model.LetterRejection && k != model.LetterAcceptance {
				return fmt.Errorf("--kind must be %q or %q", model.LetterRejection, model.LetterAcceptance)
			}
			return opts.withSession(cmd, func(ctx context.Context, c *controller.Controller) error {
				resp, err := c.GenerateLetter(ctx, k, findDocument(ctx, c, args[0]), controller.LetterOptions{
					Language:    language,
					CompanyName: company,
					Position:    position,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subject: %s\n\n%s\n", resp.Subject, resp.Letter)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.LetterRejection), "rejection or acceptance")
	cmd.Flags().StringVar(&language, "language", "en", "letter language (en, pl, es, fr, de)")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	cmd.Flags().StringVar(&position, "position", "", "position title")
	return cmd
}
