package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and manage enrolled identities",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	RunE:  runGalleryList,
}

var galleryRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an identity and all its templates",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryRemove,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryRemoveCmd)
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	ids := app.gallery.Identities()
	if len(ids) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tYEAR\tSAMPLES\tREGISTERED")
	for _, id := range ids {
		meta, ok := app.gallery.MetadataOf(id)
		if !ok {
			continue
		}
		year := ""
		if meta.Year > 0 {
			year = fmt.Sprintf("%d", meta.Year)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			id, meta.Name, year, meta.SampleCount,
			meta.RegisteredAt.Format("2006-01-02"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d identities, %d templates\n", app.gallery.Count(), app.gallery.TemplateCount())
	return nil
}

func runGalleryRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	id := args[0]
	if _, ok := app.gallery.MetadataOf(id); !ok {
		return fmt.Errorf("identity %s not found", id)
	}

	if err := app.galleryStore.DeleteIdentity(ctx, id); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	app.gallery.Remove(id)

	fmt.Printf("Removed %s\n", id)
	return nil
}
