package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/TaxFlow/pkg/client"
)

type healthView client.HealthReport

func (v healthView) TableHeaders() []string { return []string{"CHECK", "STATUS", "VALUE", "MESSAGE"} }
func (v healthView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Checks)+1)
	rows = append(rows, []string{"overall", v.Overall, "", v.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")})
	for _, c := range v.Checks {
		rows = append(rows, []string{c.Name, c.Status, strconv.FormatInt(c.Value, 10), c.Message})
	}
	return rows
}

func newHealthCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the filing health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			rep, err := cliCtx.Client.Reports().FilingHealth(ctx, refresh)
			if err != nil {
				return err
			}
			return PrintResult(cmd, healthView(*rep))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute instead of using the cached report")
	return cmd
}

type deadlineView []client.Deadline

func (v deadlineView) TableHeaders() []string {
	return []string{"JURISDICTION", "FORM", "YEAR", "DUE", "DAYS", "STATE"}
}

func (v deadlineView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, d := range v {
		rows = append(rows, []string{
			d.Jurisdiction, d.FormType, strconv.Itoa(d.TaxYear),
			d.DueDate.Format("2006-01-02"), strconv.Itoa(d.DaysUntil), d.State,
		})
	}
	return rows
}

func newDeadlinesCmd() *cobra.Command {
	var jurisdiction, formType string
	cmd := &cobra.Command{
		Use:   "deadlines",
		Short: "List upcoming and overdue filing deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			items, err := cliCtx.Client.Reports().UpcomingDeadlines(ctx, jurisdiction, formType)
			if err != nil {
				return err
			}
			return PrintResult(cmd, deadlineView(items))
		},
	}
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "filter by jurisdiction")
	cmd.Flags().StringVar(&formType, "form-type", "", "filter by form type")
	return cmd
}
