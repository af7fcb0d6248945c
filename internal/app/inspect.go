package app

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"nse-history/internal/dataset"
	"nse-history/internal/model"
)

// artifactPath returns path or, when empty, the newest artifact in the export dir.
func (a *App) artifactPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return dataset.Current(a.Config.Export.Dir, a.Config.Export.Prefix)
}

// Inspect prints a summary of an artifact.
func (a *App) Inspect(opts InspectOptions) error {
	path, err := a.artifactPath(opts.Path)
	if err != nil {
		return err
	}

	s, err := dataset.Inspect(path)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Path\t%s\n", s.Path)
	fmt.Fprintf(writer, "Size\t%d bytes\n", s.ByteSize)
	fmt.Fprintf(writer, "Rows\t%d\n", s.Rows)
	fmt.Fprintf(writer, "Symbols\t%d\n", s.Symbols)
	fmt.Fprintf(writer, "Columns\t%s\n", strings.Join(s.Columns, ", "))
	fmt.Fprintf(writer, "Dates\t%s .. %s\n", formatDay(s.First), formatDay(s.Last))
	if s.NullDates > 0 {
		fmt.Fprintf(writer, "Null dates\t%d\n", s.NullDates)
	}
	if s.GeneratedAt != "" {
		fmt.Fprintf(writer, "Generated\t%s\n", s.GeneratedAt)
	}
	return writer.Flush()
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(model.DateLayout)
}
