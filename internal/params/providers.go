package params

import "context"

// StatSource answers event/stage counters (%stc).
type StatSource interface {
	Stat(ctx context.Context, event, typ uint32) (int64, error)
}

// GlobalSource answers the dynamic global key/value store
// (%global_dyna_data, %global_dyna_data_str).
type GlobalSource interface {
	GlobalInt(ctx context.Context, dataset, index uint32) (int64, error)
	GlobalString(ctx context.Context, dataset, index uint32) (string, error)
}

// TaskSource answers per-task counters (%task_data).
type TaskSource interface {
	TaskField(ctx context.Context, task, field uint32) (int64, error)
}

// RandomSource draws integers in [0, n) for %random.
type RandomSource interface {
	Intn(n int) int
}

// Providers bundles the data sources the resolver queries. A nil source
// resolves every token of its family to the neutral default.
// A miss is reported as a zero value with a nil error.
type Providers struct {
	Stats   StatSource
	Globals GlobalSource
	Tasks   TaskSource
	Random  RandomSource
}
