package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/TaxFlow/pkg/client"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

func newSubmissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "submissions",
		Aliases: []string{"sub"},
		Short:   "Work with tax submissions",
	}
	cmd.AddCommand(
		newCreateCmd(),
		newGetCmd(),
		newListCmd(),
		newUpdateCmd(),
		newTransitionCmd(),
		newBatchTransitionCmd(),
		newGenerateCmd(),
		newValidateCmd(),
		newAuditCmd(),
	)
	return cmd
}

type submissionView client.Submission

func (v submissionView) TableHeaders() []string {
	return []string{"ID", "FORM", "YEAR", "JURISDICTION", "STATUS", "SCORE", "VERSION"}
}

func (v submissionView) TableRows() [][]string {
	return [][]string{submissionRow(client.Submission(v))}
}

func submissionRow(s client.Submission) []string {
	score := "-"
	if s.ConfidenceScore != nil {
		score = strconv.Itoa(*s.ConfidenceScore)
	}
	return []string{s.ID, s.FormType, strconv.Itoa(s.TaxYear), s.Jurisdiction, s.Status, score, strconv.Itoa(s.Version)}
}

type submissionPageView client.SubmissionPage

func (v submissionPageView) TableHeaders() []string { return submissionView{}.TableHeaders() }
func (v submissionPageView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Items))
	for _, s := range v.Items {
		rows = append(rows, submissionRow(s))
	}
	return rows
}

func newCreateCmd() *cobra.Command {
	var (
		req      client.CreateSubmissionRequest
		dataFile string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a DRAFT submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataFile != "" {
				raw, err := os.ReadFile(dataFile)
				if err != nil {
					return errors.InvalidParam("cannot read form data file").WithDetail(err.Error())
				}
				if err := json.Unmarshal(raw, &req.FormData); err != nil {
					return errors.InvalidParam("form data file must hold a JSON object").WithDetail(err.Error())
				}
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			sub, err := cliCtx.Client.Submissions().Create(ctx, &req)
			if err != nil {
				return err
			}
			return PrintResult(cmd, submissionView(*sub))
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.TaxYear, "tax-year", 0, "tax year")
	f.StringVar(&req.FormType, "form-type", "", "form type, e.g. ANLAGE_KAP")
	f.StringVar(&req.Jurisdiction, "jurisdiction", "", "jurisdiction code")
	f.StringVar(&req.LegalForm, "legal-form", "", "legal form of the subject")
	f.StringVar(&req.SubjectRef, "subject", "", "subject reference")
	f.StringVar(&dataFile, "data", "", "path to a JSON file with the form data")
	_ = cmd.MarkFlagRequired("tax-year")
	_ = cmd.MarkFlagRequired("form-type")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			sub, err := cliCtx.Client.Submissions().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, submissionView(*sub))
		},
	}
}

func newListCmd() *cobra.Command {
	var opts client.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = strings.ToUpper(opts.Status)
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			page, err := cliCtx.Client.Submissions().List(ctx, &opts)
			if err != nil {
				return err
			}
			if err := PrintResult(cmd, submissionPageView(*page)); err != nil {
				return err
			}
			if cliCtx.OutputFormat != "json" {
				fmt.Fprintf(cmd.ErrOrStderr(), "page %d/%d, %d total\n", page.Page, page.TotalPages, page.Total)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Status, "status", "", "filter by status")
	f.StringVar(&opts.FormType, "form-type", "", "filter by form type")
	f.StringVar(&opts.SubjectRef, "subject", "", "filter by subject reference")
	f.IntVar(&opts.TaxYear, "tax-year", 0, "filter by tax year")
	f.IntVar(&opts.Page, "page", 1, "page number")
	f.IntVar(&opts.PageSize, "page-size", 20, "page size")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		sets     []string
		unsets   []string
		dataFile string
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Correct the form data of an unfiled submission",
		Long: "Fields not mentioned keep their value. A --set value is read as JSON when it parses " +
			"(numbers, booleans, null) and as a plain string otherwise. The generated document and " +
			"validation findings are discarded; run generate and validate again afterwards.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := formDataPatch(dataFile, sets, unsets)
			if err != nil {
				return err
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			sub, err := cliCtx.Client.Submissions().Update(ctx, args[0], &client.UpdateSubmissionRequest{
				FormData: patch,
				Reason:   reason,
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, submissionView(*sub))
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&sets, "set", nil, "field=value to set, repeatable")
	f.StringArrayVar(&unsets, "unset", nil, "field to remove, repeatable")
	f.StringVar(&dataFile, "data", "", "path to a JSON file with the fields to change")
	f.StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	return cmd
}

// formDataPatch merges the data file with --set and --unset; flags win.
func formDataPatch(dataFile string, sets, unsets []string) (map[string]interface{}, error) {
	patch := map[string]interface{}{}
	if dataFile != "" {
		raw, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, errors.InvalidParam("cannot read form data file").WithDetail(err.Error())
		}
		if err := json.Unmarshal(raw, &patch); err != nil {
			return nil, errors.InvalidParam("form data file must hold a JSON object").WithDetail(err.Error())
		}
	}
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.InvalidParam(fmt.Sprintf("--set expects field=value, got %q", kv))
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		patch[key] = v
	}
	for _, key := range unsets {
		patch[strings.TrimSpace(key)] = nil
	}
	if len(patch) == 0 {
		return nil, errors.InvalidParam("nothing to update; use --set, --unset or --data")
	}
	return patch, nil
}

type transitionView client.TransitionResult

func (v transitionView) TableHeaders() []string {
	return []string{"ID", "FROM", "TO", "ACTION", "VERSION"}
}

func (v transitionView) TableRows() [][]string {
	id, version := "", ""
	if v.Submission != nil {
		id, version = v.Submission.ID, strconv.Itoa(v.Submission.Version)
	}
	return [][]string{{id, v.From, v.To, v.Action, version}}
}

func newTransitionCmd() *cobra.Command {
	var reason, ticket string
	cmd := &cobra.Command{
		Use:   "transition <id> <target-status>",
		Short: "Move a submission to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			res, err := cliCtx.Client.Submissions().Transition(ctx, args[0], &client.TransitionRequest{
				Target:         strings.ToUpper(args[1]),
				Reason:         reason,
				TransferTicket: ticket,
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, transitionView(*res))
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	cmd.Flags().StringVar(&ticket, "ticket", "", "transfer ticket issued by the tax authority")
	return cmd
}

type batchView client.BatchTransitionResult

func (v batchView) TableHeaders() []string { return []string{"ID", "RESULT", "FROM", "TO", "ERROR"} }
func (v batchView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Results))
	for _, r := range v.Results {
		result, msg := "ok", ""
		if !r.Success {
			result = "failed"
			if r.Error != nil {
				msg = r.Error.Kind + ": " + r.Error.Message
			}
		}
		rows = append(rows, []string{r.ID, result, r.FromStatus, r.ToStatus, msg})
	}
	return rows
}

func newBatchTransitionCmd() *cobra.Command {
	var (
		target, reason, idsFile string
	)
	cmd := &cobra.Command{
		Use:   "batch-transition [id...]",
		Short: "Move many submissions to one target status",
		Long:  "Each id is processed independently. The command fails with a non-zero exit when any item failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := append([]string(nil), args...)
			if idsFile != "" {
				raw, err := os.ReadFile(idsFile)
				if err != nil {
					return errors.InvalidParam("cannot read ids file").WithDetail(err.Error())
				}
				ids = append(ids, strings.Fields(string(raw))...)
			}
			if len(ids) == 0 {
				return errors.InvalidParam("no submission ids given")
			}
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			res, err := cliCtx.Client.Submissions().BatchTransition(ctx, &client.BatchTransitionRequest{
				IDs:    ids,
				Target: strings.ToUpper(target),
				Reason: reason,
			})
			if err != nil {
				return err
			}
			if err := PrintResult(cmd, batchView(*res)); err != nil {
				return err
			}
			if res.FailCount > 0 {
				return fmt.Errorf("batch %s: %d of %d items failed", res.BatchID, res.FailCount, res.SuccessCount+res.FailCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "target status")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	cmd.Flags().StringVar(&idsFile, "ids-file", "", "file with whitespace-separated submission ids")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

type documentView client.DocumentResult

func (v documentView) TableHeaders() []string {
	return []string{"ID", "SOURCE", "REGENERATED", "BYTES", "ARCHIVE"}
}

func (v documentView) TableRows() [][]string {
	id := ""
	if v.Submission != nil {
		id = v.Submission.ID
	}
	return [][]string{{id, v.Source, strconv.FormatBool(v.Regenerated), strconv.Itoa(v.Bytes), v.ArchiveLocation}}
}

func newGenerateCmd() *cobra.Command {
	var xmlOut string
	cmd := &cobra.Command{
		Use:   "generate <id>",
		Short: "Generate the filing XML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			res, err := cliCtx.Client.Submissions().GenerateDocument(ctx, args[0])
			if err != nil {
				return err
			}
			if xmlOut != "" && res.Submission != nil && res.Submission.XMLContent != nil {
				if err := os.WriteFile(xmlOut, []byte(*res.Submission.XMLContent), 0o644); err != nil {
					return errors.Wrap(err, errors.ErrCodeInternal, "failed to write document")
				}
			}
			return PrintResult(cmd, documentView(*res))
		},
	}
	cmd.Flags().StringVar(&xmlOut, "xml-out", "", "write the generated XML to this file")
	return cmd
}

type validationView client.ValidationResult

func (v validationView) TableHeaders() []string {
	return []string{"FIELD", "SEVERITY", "CHANNEL", "ACTION", "MESSAGE"}
}

func (v validationView) TableRows() [][]string {
	all := append(append([]client.Issue(nil), v.Issues...), v.AdvisoryIssues...)
	rows := make([][]string, 0, len(all)+1)
	rows = append(rows, []string{"(score)", strconv.Itoa(v.Score), "", "", "ready for filing: " + strconv.FormatBool(v.IsReadyForFiling)})
	for _, is := range all {
		action := ""
		if is.ActionRequired {
			action = "required"
		}
		rows = append(rows, []string{is.Field, is.Severity, is.Channel, action, is.Message})
	}
	return rows
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <id>",
		Short: "Run the plausibility check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			res, err := cliCtx.Client.Submissions().Validate(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, validationView(*res))
		},
	}
}

type auditView []client.AuditEvent

func (v auditView) TableHeaders() []string { return []string{"AT", "ACTION", "BY", "SUMMARY"} }
func (v auditView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, e := range v {
		rows = append(rows, []string{e.PerformedAt.UTC().Format("2006-01-02T15:04:05Z"), e.Action, e.PerformedBy, e.Summary})
	}
	return rows
}

func newAuditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit <id>",
		Short: "Show the audit trail of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, ctx, cancel, err := commandContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			events, err := cliCtx.Client.Submissions().AuditTrail(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return PrintResult(cmd, auditView(events))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 = server default)")
	return cmd
}
