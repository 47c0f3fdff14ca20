package console

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/session"
)

// WriteEntries prints tracked bitmaps as a table
func WriteEntries(w io.Writer, entries []session.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No bitmaps tracked.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTRACKING ID\tWORLD ID\tFORMAT\tLINK\tREFS\tFILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.DisplayName, e.TrackingID, e.WorldID, e.Format, e.Status, e.References, e.Filename)
	}
	tw.Flush()
}

// WriteReport prints the outcome of a refresh cycle
func WriteReport(w io.Writer, r interfaces.CycleReport) {
	recomposed := "no"
	if r.Recomposed {
		recomposed = "yes"
	}
	fmt.Fprintf(w, "checked %d, changed %d, broken %d, recomposed %s\n",
		r.Checked, r.Changed, r.Broken, recomposed)
}

// WriteAssets prints the ids held by the asset registry
func WriteAssets(w io.Writer, ids []uuid.UUID) {
	fmt.Fprintf(w, "Registered assets (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
}

// WriteStatus prints a session summary
func WriteStatus(w io.Writer, st session.Status) {
	timer := "stopped"
	if st.Running {
		timer = fmt.Sprintf("running every %s", st.Period)
	}
	watching := "off"
	if st.Watching {
		watching = "on"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Project:\t%s\n", st.Root)
	fmt.Fprintf(tw, "World:\t%s\n", st.WorldFile)
	fmt.Fprintf(tw, "Bitmaps:\t%d tracked, %d broken\n", st.Bitmaps, st.Broken)
	fmt.Fprintf(tw, "Assets:\t%d registered\n", st.Assets)
	fmt.Fprintf(tw, "Timer:\t%s\n", timer)
	fmt.Fprintf(tw, "Watcher:\t%s\n", watching)
	fmt.Fprintf(tw, "Scene:\t%d objects, %d faces, %d wearables\n", st.Scene.Objects, st.Scene.Faces, st.Scene.Wearables)
	fmt.Fprintf(tw, "Updates:\t%d syncs, %d wearable updates, %d recompositions\n",
		st.Scene.Syncs, st.Scene.WearableUpdates, st.Scene.Recompositions)
	if st.LastCycle.Timestamp.IsZero() {
		fmt.Fprintf(tw, "Last cycle:\tnever\n")
	} else {
		fmt.Fprintf(tw, "Last cycle:\t%s (checked %d, changed %d, broken %d)\n",
			st.LastCycle.Timestamp.Format("2006-01-02 15:04:05"), st.LastCycle.Checked, st.LastCycle.Changed, st.LastCycle.Broken)
	}
	tw.Flush()
}
