package tskcmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tskcat/engine/casemgr"
	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"
	"github.com/tskcat/engine/errorlog"
	"github.com/tskcat/engine/ingest"
	"github.com/tskcat/engine/rawreader"
)

var (
	caseLocationFlag string
	backendFlag      string
	newCaseFlag      bool

	pgHostFlag     string
	pgPortFlag     int
	pgUserFlag     string
	pgPasswordFlag string
	pgDBNameFlag   string

	imageTypeFlag   string
	sectorSizeFlag  int
	deviceIDFlag    string
	timezoneFlag    string

	recordBlockMapFlag    bool
	hashFilesFlag         bool
	skipFatOrphansFlag    bool
	recordUnallocFlag     bool
	minChunkBytesFlag     int64
	maxChunkBytesFlag     int64
	addFileSystemsFlag    bool
	imageWriterPathFlag   string
)

var ingestCommand = &cobra.Command{
	Use:   "ingest <case-location> <image-part...>",
	Short: "Ingest a disk image into a case",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		caseLocationFlag = args[0]
		imageParts := args[1:]
		return runIngest(cmd.Context(), imageParts)
	},
}

func init() {
	flags := ingestCommand.Flags()
	flags.StringVar(&backendFlag, "backend", "sqlite", fmt.Sprintf("case database backend (%v)", engine.BackendNames()))
	flags.BoolVar(&newCaseFlag, "new-case", false, "create the case database instead of opening an existing one")

	flags.StringVar(&pgHostFlag, "pg-host", "", "postgres host (backend=postgres)")
	flags.IntVar(&pgPortFlag, "pg-port", 0, "postgres port (backend=postgres)")
	flags.StringVar(&pgUserFlag, "pg-user", "", "postgres user (backend=postgres)")
	flags.StringVar(&pgPasswordFlag, "pg-password", "", "postgres password (backend=postgres)")
	flags.StringVar(&pgDBNameFlag, "pg-dbname", "", "postgres database name (backend=postgres)")

	flags.StringVar(&imageTypeFlag, "image-type", "raw", "image format tag passed to the image reader")
	flags.IntVar(&sectorSizeFlag, "sector-size", 512, "image sector size in bytes")
	flags.StringVar(&deviceIDFlag, "device-id", "", "opaque device identifier to stamp on the image row")
	flags.StringVar(&timezoneFlag, "timezone", "UTC", "timezone to interpret file-system timestamps in")

	flags.BoolVar(&recordBlockMapFlag, "record-block-map", false, "record layout ranges for non-resident default attributes (none are recorded without it)")
	flags.BoolVar(&hashFilesFlag, "hash-files", false, "compute MD5 of each regular file's default attribute")
	flags.BoolVar(&skipFatOrphansFlag, "skip-fat-orphans", false, "skip the synthetic $OrphanFiles directory on FAT file systems")
	flags.BoolVar(&recordUnallocFlag, "record-unallocated", false, "run the unallocated-block coalescer after the walk")
	flags.Int64Var(&minChunkBytesFlag, "min-chunk-bytes", 0, "minimum unallocated chunk size before emitting (0 = never emit early, <0 = per contiguous run)")
	flags.Int64Var(&maxChunkBytesFlag, "max-chunk-bytes", -1, "maximum unallocated chunk size (<0 = unbounded)")
	flags.BoolVar(&addFileSystemsFlag, "add-file-systems", true, "walk volumes/file systems (false catalogues the image row only)")
	flags.StringVar(&imageWriterPathFlag, "image-writer-path", "", "if set, also write a cache copy of the image to this path as it is read")
}

func runIngest(ctx context.Context, imageParts []string) error {
	mgr := casemgr.New(rawreader.New(), nil, noDecoder{}, sharedMetrics)

	var c *casemgr.Case
	var err *engine.Error
	if newCaseFlag {
		c, err = mgr.NewCase(ctx, backendOptions(), backendFlag)
	} else {
		c, err = mgr.OpenCase(ctx, backendOptions(), backendFlag)
	}
	if err != nil {
		return fatalUsage("open case: %v", err)
	}
	defer c.Close()

	drv := c.BeginIngest()
	drv.Configure(ingest.Options{
		RecordBlockMap:    recordBlockMapFlag,
		HashFiles:         hashFilesFlag,
		SkipFatOrphans:    skipFatOrphansFlag,
		RecordUnallocated: recordUnallocFlag,
		MinChunkBytes:     minChunkBytesFlag,
		MaxChunkBytes:     maxChunkBytesFlag,
		DeviceID:          deviceIDFlag,
		Timezone:          timezoneFlag,
		AddFileSystems:    addFileSystemsFlag,
		ImageWriterPath:   imageWriterPathFlag,
	})
	defer drv.Close(ctx)

	status, serr := drv.Start(ctx, imageParts, engine.ImageType(imageTypeFlag), sectorSizeFlag)
	if serr != nil {
		return fatalUsage("ingest failed before a savepoint could be established: %v", serr)
	}

	switch status {
	case ingest.StatusCriticalError:
		for _, e := range drv.Errors.Snapshot() {
			enginelog.Errorf(caseLocationFlag, "%v", e)
		}
		return exitError{code: 1, msg: "critical error, image not catalogued"}
	case ingest.StatusRecoverableErrors:
		imgID, cerr := drv.Commit(ctx)
		if cerr != nil {
			return fatalUsage("commit failed: %v", cerr)
		}
		for _, e := range drv.Errors.Snapshot() {
			enginelog.Logf(caseLocationFlag, "%v", e)
		}
		saveErrorLog(imgID, drv.Errors.Snapshot())
		fmt.Printf("catalogued image %d with %d recoverable errors\n", imgID, drv.Errors.Len())
		return exitError{code: 2, msg: "catalogued with recoverable errors"}
	default:
		imgID, cerr := drv.Commit(ctx)
		if cerr != nil {
			return fatalUsage("commit failed: %v", cerr)
		}
		fmt.Printf("catalogued image %d\n", imgID)
		return nil
	}
}

// saveErrorLog persists a committed ingest's error list so `tskcat
// errors` can retrieve it from a later process; a failure here is
// logged but never turns a successful ingest into a failed one.
func saveErrorLog(imageID int64, errs []*engine.Error) {
	store, err := errorlog.Open(errorLogPath(caseLocationFlag))
	if err != nil {
		enginelog.Errorf(caseLocationFlag, "error log open failed: %v", err)
		return
	}
	defer store.Close()
	if err := store.Save(imageID, errs); err != nil {
		enginelog.Errorf(caseLocationFlag, "error log save failed: %v", err)
	}
}

// exitError carries the process exit code spec.md §6 requires (0/1/2)
// through cobra's plain error-returning RunE, since cobra itself has
// no notion of an exit code.
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

func (e exitError) ExitCode() int { return e.code }
