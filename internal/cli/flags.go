package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// SyncCommand runs one sync pass against the object store.
type SyncCommand struct {
	Max int `long:"max" description:"Maximum new imports this run (0 = unlimited)" default:"0"`

	globals *GlobalFlags
	version string
}

// ServeCommand runs the periodic scheduler plus the admin HTTP endpoint.
type ServeCommand struct {
	Port     int    `long:"port" description:"Override admin HTTP port"`
	Interval int    `long:"interval" description:"Override sync interval in minutes"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows database statistics and configuration summary.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}
