package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/cloudsync/internal/client/workspace"
	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

type projectStatus struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	State       string    `yaml:"state"`
	BlobID      string    `yaml:"blob_id,omitempty"`
	BlobVersion string    `yaml:"blob_version,omitempty"`
	Modified    time.Time `yaml:"modified"`
	Files       int       `yaml:"files"`
	Size        uint64    `yaml:"size"`
}

func syncState(h *cloudsync.Header) string {
	switch {
	case h.IsUninstalled():
		return "uninstalled"
	case h.IsDeleted:
		return "deleting"
	case h.BlobID == "":
		return "local"
	case h.BlobCurrent:
		return "synced"
	default:
		return "modified"
	}
}

func newStatusCmd() *cobra.Command {
	var asYAML bool
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local projects and their sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			store, err := c.Store()
			if err != nil {
				return err
			}
			status, err := collectStatus(cmd, store, all)
			if err != nil {
				return err
			}

			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(status)
			}
			return printStatus(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include uninstalled projects")
	return cmd
}

func collectStatus(cmd *cobra.Command, store *workspace.Store, all bool) ([]projectStatus, error) {
	headers, err := store.GetHeaders(cmd.Context())
	if err != nil {
		return nil, err
	}

	out := make([]projectStatus, 0, len(headers))
	for _, h := range headers {
		if h.IsUninstalled() && !all {
			continue
		}
		text, err := store.GetText(cmd.Context(), h.ID)
		if err != nil {
			return nil, err
		}
		var size uint64
		for _, content := range text {
			size += uint64(len(content))
		}
		out = append(out, projectStatus{
			ID:          h.ID,
			Name:        h.Name,
			State:       syncState(h),
			BlobID:      h.BlobID,
			BlobVersion: h.BlobVersion,
			Modified:    h.ModificationTime,
			Files:       len(text),
			Size:        size,
		})
	}
	return out, nil
}

func printStatus(w io.Writer, status []projectStatus) error {
	if len(status) == 0 {
		_, err := fmt.Fprintln(w, gray("no projects"))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tFILES\tSIZE\tMODIFIED")
	for _, s := range status {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Name, s.State, s.Files, humanize.Bytes(s.Size), humanize.Time(s.Modified))
	}
	return tw.Flush()
}
