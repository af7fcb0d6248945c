package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Runs prints recent download runs from the ledger.
func (a *App) Runs(ctx context.Context, opts RunsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list runs")
	}
	defer closeStore()

	if opts.PruneOlderThan > 0 {
		cutoff := time.Now().Add(-opts.PruneOlderThan)
		deleted, err := store.DeleteRunsBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		a.Logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned run ledger")
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.Out, "no runs found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tTook\tStatus\tOK/Total\tRows\tArtifact\tError")

	for _, run := range runs {
		artifact := "-"
		if run.ArtifactPath != nil {
			artifact = *run.ArtifactPath
		}
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Duration().Round(time.Second),
			run.Status,
			run.Succeeded,
			run.Attempted,
			run.RowCount,
			artifact,
			errMsg,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
