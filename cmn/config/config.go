// Package config parses the four runtime-reserved launch flags of spec
// section 6 that a launcher forwards. It does not read environment
// variables; task.LoadConfig parses those.
package config

import "flag"

// Flags holds the four launch flags spec section 6 names.
type Flags struct {
	DartID            int
	DartSize          int
	DartSyncareaID    int
	DartSyncareaSize  int64
}

// Parse parses args (typically os.Args[1:]) into Flags using the
// standard library flag package, the way aistore's cmd/cli parses its
// own daemon flags.
func Parse(args []string) (Flags, error) {
	fs := flag.NewFlagSet("dart", flag.ContinueOnError)
	var f Flags
	fs.IntVar(&f.DartID, "dart-id", 0, "caller's global unit id")
	fs.IntVar(&f.DartSize, "dart-size", 1, "universe size")
	fs.IntVar(&f.DartSyncareaID, "dart-syncarea-id", 0, "pre-created shared memory sync-area id")
	var syncareaSize int
	fs.IntVar(&syncareaSize, "dart-syncarea-size", 0, "sync-area size in bytes")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	f.DartSyncareaSize = int64(syncareaSize)
	return f, nil
}
