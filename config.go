package ecsrt

// WorldConfig configures a World at construction time.
type WorldConfig struct {
	measureSystemTime bool
	workerPoolSize    int
	introspectAddr    string
	verbose           bool
}

// Option configures a WorldConfig.
type Option func(*WorldConfig)

// WithSystemTimeMeasurement enables per-system wall-clock accounting,
// surfaced through scheduler.SystemStats and introspection frames.
func WithSystemTimeMeasurement() Option {
	return func(c *WorldConfig) { c.measureSystemTime = true }
}

// WithWorkerPool sets the fixed worker-pool size used to partition a
// system's row range across goroutines (internal/jobs). size <= 1 disables
// parallel dispatch; systems always run on the calling goroutine instead.
func WithWorkerPool(size int) Option {
	return func(c *WorldConfig) { c.workerPoolSize = size }
}

// WithVerboseLogging logs phase timings, stage merges, and table growth to
// stderr. Intended for development; off by default.
func WithVerboseLogging() Option {
	return func(c *WorldConfig) { c.verbose = true }
}

// WithIntrospection starts a websocket monitor on addr, streaming per-tick
// stats to any connected client.
func WithIntrospection(addr string) Option {
	return func(c *WorldConfig) { c.introspectAddr = addr }
}

func newConfig(opts []Option) WorldConfig {
	var c WorldConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
