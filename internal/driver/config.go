package driver

import "time"

// Config controls driver supervision.
type Config struct {
	WorkerURL      string        // value substituted for the worker URL placeholder
	RuntimeHome    string        // driver runtime installation, resolves bare program names
	TerminateGrace time.Duration // grace period before a kill escalates
	Retention      time.Duration // how long terminal drivers stay queryable
	SweepInterval  time.Duration // how often retired drivers are swept out
}

func (c Config) withDefaults() Config {
	if c.TerminateGrace <= 0 {
		c.TerminateGrace = 10 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}
