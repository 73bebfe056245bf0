package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/atrium-hq/atrium/internal/deploy"
)

// DeployCLI wraps the post-deploy sweep for command-line use.
type DeployCLI struct {
	service *deploy.Service
}

// NewDeployCLI initialises the CLI helper.
func NewDeployCLI(service *deploy.Service) *DeployCLI {
	return &DeployCLI{service: service}
}

// Run executes the deploy sweep and prints the resulting process table.
func (c *DeployCLI) Run(ctx context.Context, out io.Writer) error {
	if c == nil || c.service == nil {
		return errors.New("deploy cli: service not configured")
	}
	if err := c.service.Deploy(ctx); err != nil {
		return err
	}
	return c.Status(ctx, out)
}

// Status prints one line per registered task.
func (c *DeployCLI) Status(ctx context.Context, out io.Writer) error {
	if c == nil || c.service == nil {
		return errors.New("deploy cli: service not configured")
	}
	processes, err := c.service.Processes(ctx)
	if err != nil {
		return err
	}
	for _, p := range processes {
		lastRun := "never"
		if p.LastRun != nil {
			lastRun = p.LastRun.Format("2006-01-02 15:04:05")
		}
		line := fmt.Sprintf("%-30s priority=%-3d status=%-8s last_run=%s version=%s", p.TaskName, p.Priority, p.Status, lastRun, p.LastRunVersion)
		if p.LastError != "" {
			line += " error=" + p.LastError
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
