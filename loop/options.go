package loop

// defaultStatWorkers bounds concurrent off-loop stat calls when the
// caller doesn't override it with WithStatWorkers.
const defaultStatWorkers = 8

// Option configures a Loop at construction time. Grounded on
// eventloop/options.go's functional-options pattern (LoopOption /
// loopOptionImpl / resolveLoopOptions), trimmed to the knobs this loop
// actually exposes.
type Option interface {
	apply(*config)
}

type config struct {
	logger      *Logger
	fatalHook   FatalHook
	statWorkers int
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithStatWorkers overrides how many fspoll stat calls may run
// concurrently across every handle sharing this loop (spec.md §4.2.2's
// asynchronous stat operation). Values less than 1 are treated as 1.
func WithStatWorkers(n int) Option {
	return optionFunc(func(c *config) {
		if n < 1 {
			n = 1
		}
		c.statWorkers = n
	})
}

// WithLogger overrides the Loop's structured logger. The default, used
// when this option is omitted, logs via log/slog's default handler.
func WithLogger(logger *Logger) Option {
	return optionFunc(func(c *config) { c.logger = logger })
}

// WithFatalHook overrides the hook invoked when the loop detects an
// invariant violation it cannot recover from (spec.md §7's "process
// terminates" class of error). The default hook logs and calls os.Exit(2).
func WithFatalHook(hook FatalHook) Option {
	return optionFunc(func(c *config) { c.fatalHook = hook })
}

func resolveOptions(opts []Option) *config {
	c := &config{
		logger:      defaultLogger(),
		fatalHook:   defaultFatalHook,
		statWorkers: defaultStatWorkers,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(c)
	}
	return c
}
