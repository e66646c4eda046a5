package main

import (
	"fmt"
	"io"

	"github.com/openmined/cloudsync/internal/client"
	"github.com/openmined/cloudsync/internal/client/workspace"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newProjectCmd())
}

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"p"},
		Short:   "Manage local projects",
	}
	cmd.AddCommand(
		newProjectNewCmd(),
		newProjectEditCmd(),
		newProjectRemoveCmd(),
		newProjectImportCmd(),
		newProjectExportCmd(),
		newProjectPushCmd(),
	)
	return cmd
}

// withStore runs fn over a freshly loaded store and signals a running
// daemon when fn changed something.
func withStore(cmd *cobra.Command, mutates bool, fn func(c *client.Client, store *workspace.Store) error) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	store, err := c.Store()
	if err != nil {
		return err
	}
	if err := fn(c, store); err != nil {
		return err
	}
	if mutates {
		return c.Workspace().MarkChanged()
	}
	return nil
}

func newProjectNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Create an empty project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, true, func(_ *client.Client, store *workspace.Store) error {
				h, err := store.Create(cmd.Context(), args[0], nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("created"), h.ID)
				return nil
			})
		},
	}
}

func newProjectEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <path> <content|->",
		Short: "Write one file of a project; - reads the content from stdin",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := args[2]
			if content == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(data)
			}
			return withStore(cmd, true, func(_ *client.Client, store *workspace.Store) error {
				return store.Edit(cmd.Context(), args[0], args[1], content)
			})
		},
	}
}

func newProjectRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a project here and, on the next sync, in the cloud",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, true, func(_ *client.Client, store *workspace.Store) error {
				return store.Remove(cmd.Context(), args[0])
			})
		},
	}
}

func newProjectImportCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Import the text files of a directory as a new project",
		Long:  "Import the text files of a directory as a new project. A .cloudsyncignore file uses gitignore syntax.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, true, func(_ *client.Client, store *workspace.Store) error {
				h, err := workspace.ImportDir(cmd.Context(), store, args[0], name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", green("imported"), h.ID, h.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name, defaults to the directory name")
	return cmd
}

func newProjectExportCmd() *cobra.Command {
	var includes []string

	cmd := &cobra.Command{
		Use:   "export <id> <dir>",
		Short: "Write the files of a project to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, false, func(_ *client.Client, store *workspace.Store) error {
				manifest, err := workspace.ExportDir(cmd.Context(), store, args[0], args[1], includes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d files of %s\n", green("exported"), len(manifest.Files), manifest.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&includes, "include", "i", nil, "Only export files matching these globs (** supported)")
	return cmd
}

func newProjectPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <id>",
		Short: "Upload one project right away",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, false, func(c *client.Client, _ *workspace.Store) error {
				if err := c.SaveToCloud(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("pushed"), args[0])
				return nil
			})
		},
	}
}
