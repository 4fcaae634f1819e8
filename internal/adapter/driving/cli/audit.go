package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/homevault/internal/application"
	"github.com/ericfisherdev/homevault/internal/domain/model"
)

func (c *cli) auditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and append to the audit log",
	}
	cmd.AddCommand(c.auditListCommand(), c.auditRecordCommand())
	return cmd
}

func (c *cli) auditListCommand() *cobra.Command {
	var (
		action     string
		targetType string
		since      string
		until      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show audit entries, newest first",
		Long: `Show audit entries, newest first.

--since and --until take an RFC 3339 time, a date (2006-01-02) or a
duration back from now (24h, 90m).

Examples:
  homevault audit list --action credential_access_failed
  homevault audit list --target-type vm --since 24h -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			filter := model.AuditFilter{
				Action:     model.AuditAction(action),
				TargetType: targetType,
				Limit:      limit,
			}
			var err error
			if filter.Since, err = parseWhen(since, now); err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			if filter.Until, err = parseWhen(until, now); err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}

			entries, err := c.svc.Audit.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []model.AuditEntry{}
			}
			if ok, err := c.structured(entries); ok {
				return err
			}

			if len(entries) == 0 {
				fmt.Fprintln(c.out(), "No audit entries.")
				return nil
			}

			w := c.table()
			fmt.Fprintln(w, "ID\tTIME\tACTION\tTARGET\tUSER\tRESULT\tDETAILS")
			for _, e := range entries {
				result := okFmt("ok")
				if !e.Success {
					result = errFmt("failed")
				}
				target := "-"
				if e.TargetType != "" || e.TargetID != "" {
					target = e.TargetType + ":" + e.TargetID
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID,
					formatTime(e.Timestamp),
					e.Action,
					target,
					e.User,
					result,
					dimFmt(orDash(e.Details)))
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&action, "action", "", "Only entries with this action")
	f.StringVar(&targetType, "target-type", "", "Only entries for this target type")
	f.StringVar(&since, "since", "", "Only entries at or after this time")
	f.StringVar(&until, "until", "", "Only entries before this time")
	f.IntVar(&limit, "limit", model.DefaultAuditLimit, "Maximum entries to show")
	return cmd
}

// parseWhen reads an absolute time or a duration before now. Empty is the
// zero time.
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("%q is not a time, date or positive duration", s)
}

func (c *cli) auditRecordCommand() *cobra.Command {
	var (
		req    application.RecordRequest
		action string
		failed bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append an administrative event to the audit log",
		Long: `Append an event on behalf of another homelab tool.

Examples:
  homevault audit record --action vm_created --target-type vm --target-id k3s-worker-2
  homevault audit record --action vm_status_updated --target-type vm --target-id 112 --details "running -> stopped"
  homevault audit record --action host_created --target-type host --target-id pve2 --failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Action = model.AuditAction(action)
			req.User = c.actor
			req.Success = !failed

			id, err := c.svc.Audit.Record(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ok, err := c.structured(map[string]int64{"id": id}); ok {
				return err
			}
			fmt.Fprintf(c.out(), "%s audit entry %d recorded\n", okFmt("✓"), id)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&action, "action", "", "Event name, e.g. host_created (required)")
	f.StringVar(&req.TargetType, "target-type", "", "Kind of entity the event concerns")
	f.StringVar(&req.TargetID, "target-id", "", "Entity identifier")
	f.StringVar(&req.Details, "details", "", "Free-form details; never include secrets")
	f.BoolVar(&failed, "failed", false, "Record the event as unsuccessful")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}
