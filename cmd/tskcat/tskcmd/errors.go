package tskcmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tskcat/engine/errorlog"
)

var errorsCommand = &cobra.Command{
	Use:   "errors <case-location> <image-id>",
	Short: "List the errors a prior ingest recorded for an image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		imageID, perr := strconv.ParseInt(args[1], 10, 64)
		if perr != nil {
			return fatalUsage("invalid image id %q: %v", args[1], perr)
		}
		return runErrors(args[0], imageID)
	},
}

func runErrors(caseLocation string, imageID int64) error {
	store, err := errorlog.Open(errorLogPath(caseLocation))
	if err != nil {
		return fatalUsage("open error log: %v", err)
	}
	defer store.Close()

	lines, lerr := store.Load(imageID)
	if lerr != nil {
		return fatalUsage("read error log: %v", lerr)
	}
	if len(lines) == 0 {
		fmt.Printf("image %d: no recorded errors\n", imageID)
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

// errorLogPath derives the sidecar bbolt file a case's errors are kept
// in from its location, the same way the sqlite backend treats
// Location as a plain filesystem path.
func errorLogPath(caseLocation string) string {
	return caseLocation + ".errors.bolt"
}
