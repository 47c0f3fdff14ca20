package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/console"
	"github.com/localtex/cli/internal/errors"
	"github.com/spf13/cobra"
)

var (
	resetConfirmed bool

	addCmd = &cobra.Command{
		Use:   "add <file>...",
		Short: "Track bitmap files",
		Long: `Decode each file, publish it as a texture and remember it in the project.

Supported extensions are bmp, tga, jpg, jpeg and png. Files that cannot be
loaded are skipped; the command fails only when none could be added.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAdd,
	}

	removeCmd = &cobra.Command{
		Use:     "remove [name|tracking-id]",
		Aliases: []string{"rm"},
		Short:   "Stop tracking a bitmap",
		Long: `Stop tracking a bitmap. Faces, sculpts and avatar layers that showed it
fall back to the default texture.

Without an argument the bitmap is picked interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRemove,
	}

	listCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked bitmaps",
		Args:    cobra.NoArgs,
		RunE:    runList,
	}

	refreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "Check every tracked bitmap once and republish the ones that changed",
		Args:  cobra.NoArgs,
		RunE:  runRefresh,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the project, its tracked bitmaps and the last refresh cycle",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Stop tracking every bitmap and restore the default textures",
		Args:  cobra.NoArgs,
		RunE:  runReset,
	}
)

func init() {
	rootCmd.AddCommand(addCmd, removeCmd, listCmd, refreshCmd, statusCmd, resetCmd)
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "do not ask for confirmation")
}

func runAdd(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(newLogger())
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	added, err := s.Add(args)
	if err != nil {
		return err
	}
	for _, e := range added {
		cmd.Printf("Added %s as %s (texture %s)\n", e.DisplayName, e.TrackingID, e.WorldID)
	}
	if skipped := len(args) - len(added); skipped > 0 {
		cmd.Printf("%d file(s) could not be loaded\n", skipped)
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(newLogger())
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	var id uuid.UUID
	if len(args) == 1 {
		if id, err = s.Resolve(args[0]); err != nil {
			return err
		}
	} else {
		entries := s.Entries()
		if len(entries) == 0 {
			return errors.NewValidationError("no bitmaps are tracked")
		}
		picked, err := selectBitmap(entries)
		if err != nil {
			return errors.NewGenericError("could not select a bitmap", err)
		}
		id = picked.TrackingID
	}

	name := s.Bitmaps().LookupFilename(id)
	if err := s.Remove(id); err != nil {
		return err
	}
	cmd.Printf("Removed %s\n", name)
	return nil
}

func runList(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(newLogger())
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	console.WriteEntries(cmd.OutOrStdout(), s.Entries())
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(newLogger())
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	console.WriteReport(cmd.OutOrStdout(), s.Refresh())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(newLogger())
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	st := s.Status()
	console.WriteStatus(cmd.OutOrStdout(), st)
	if debug {
		console.WriteAssets(cmd.OutOrStdout(), st.AssetIDs)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(newLogger())
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	count := len(s.Entries())
	if count == 0 {
		cmd.Println("No bitmaps tracked.")
		return nil
	}
	if !resetConfirmed {
		ok, err := confirm(fmt.Sprintf("Stop tracking %d bitmap(s)?", count), false)
		if err != nil {
			return errors.NewGenericError("could not read confirmation", err)
		}
		if !ok {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := s.Reset(); err != nil {
		return err
	}
	cmd.Printf("Stopped tracking %d bitmap(s)\n", count)
	return nil
}
