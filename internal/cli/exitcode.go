package cli

// ExitCode is the closed set spec.md §6 assigns to cmd/atra's process
// exit status.
type ExitCode int

const (
	ExitSuccess              ExitCode = 0
	ExitUnknown              ExitCode = 1
	ExitFilesystem           ExitCode = 2
	ExitBadConfig            ExitCode = 3
	ExitConfigDeserialization ExitCode = 4
	ExitDirectoryExists      ExitCode = 5

	// 10-18: context/initialization failures, one per collaborator that
	// can fail to construct.
	ExitInitFrontier  ExitCode = 10
	ExitInitLinkState ExitCode = 11
	ExitInitRobots    ExitCode = 12
	ExitInitBlacklist ExitCode = 13
	ExitInitWarcSink  ExitCode = 14
	ExitInitSeed      ExitCode = 18

	ExitWorkerInit ExitCode = 40
	ExitQueueFill  ExitCode = 50

	// 100-109: per-step failures surfaced from a fatal worker.WorkerError.
	ExitStepCrawl      ExitCode = 100
	ExitStepLinkRead   ExitCode = 101
	ExitStepLinkWrite  ExitCode = 102
	ExitStepQueueIO    ExitCode = 103
	ExitStepClient     ExitCode = 104
	ExitStepRequest    ExitCode = 105
	ExitStepFilesystem ExitCode = 106
)
