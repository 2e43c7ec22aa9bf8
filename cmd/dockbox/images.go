package main

import (
	"fmt"
	"sort"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
)

var ImagesCommand = Command(imagesE,
	"images",
	"List the images built by dockbox",
	Flags(func(flags *pflag.FlagSet) {
		backendFlag(flags)
		flags.String("name", "", "Only list the images of this project")
	}),
)

func imagesE(cmd *cobra.Command, args []string) error {
	backend, err := LoadBackend(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	name, _ := cmd.Flags().GetString("name")

	ctx, cancel := commandContext()
	defer cancel()

	images, err := backend.ListImages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].Name != images[j].Name {
			return images[i].Name < images[j].Name
		}
		return images[i].Created.After(images[j].Created)
	})

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROJECT", "IMAGE", "ENTRYPOINT", "SOURCE", "CREATED", "SIZE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	count := 0
	for _, img := range images {
		if name != "" && img.Name != name {
			continue
		}
		t.Row(img.Name, img.Reference(), img.Entrypoint, shortDigest(img.SourceDigest), formatAge(img.Created), formatSize(img.Size))
		count++
	}

	if count == 0 {
		cmd.Println("No dockbox images found.")
		return nil
	}

	cmd.Println(t.Render())
	return nil
}

// formatAge renders how long ago t was, rounded to the largest unit
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func formatSize(size int64) string {
	const unit = 1000
	if size < unit {
		return fmt.Sprintf("%dB", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(size)/float64(div), "kMGTPE"[exp])
}
