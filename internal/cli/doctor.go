package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stockwatch/internal/datasource/rest"
	"stockwatch/internal/resilience"
)

func newDoctorCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the data source and storage are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := app.output(cmd)
			ctx := cmd.Context()

			if err := app.open(ctx); err != nil {
				return err
			}

			health := app.healthChecker().Check(ctx)
			if output.IsJSON() {
				_ = output.JSON(health)
			} else {
				table := NewTable(output, "COMPONENT", "STATUS", "LATENCY", "DETAIL")
				for _, c := range health.Components {
					table.AddRow(c.Name, formatHealth(output, c.Status), c.Latency.Round(100*time.Microsecond).String(), c.Message)
				}
				table.Render()
			}

			if health.Status == resilience.HealthStatusUnhealthy {
				return fmt.Errorf("watchlist is %s", health.Status)
			}
			return nil
		},
	}
}

// healthChecker registers a check for every component the app opened.
func (a *App) healthChecker() *resilience.HealthChecker {
	h := resilience.NewHealthChecker(a.Config.Source.Timeout)

	h.RegisterComponent("source", resilience.APIHealthCheck(func(ctx context.Context) error {
		_, err := a.Source.List(ctx)
		return err
	}))
	if client, ok := a.Source.(*rest.Client); ok {
		h.RegisterComponent("breaker", resilience.BreakerHealthCheck(client.Breaker()))
	}
	if a.slot != nil {
		slot := a.slot
		h.RegisterComponent("storage", resilience.StorageHealthCheck(func(ctx context.Context) error {
			_, _, err := slot.Load(ctx)
			return err
		}))
	}
	return h
}

func formatHealth(out *Output, s resilience.HealthStatus) string {
	switch s {
	case resilience.HealthStatusHealthy:
		return out.Green(string(s))
	case resilience.HealthStatusDegraded:
		return out.Yellow(string(s))
	case resilience.HealthStatusUnhealthy:
		return out.Red(string(s))
	}
	return string(s)
}
