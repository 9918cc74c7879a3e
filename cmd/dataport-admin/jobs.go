package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/filterspec"
)

type createOptions struct {
	Direction  string
	Resource   string
	Args       string
	Format     string
	SourceFile string
	CreatedBy  string
	Filters    []string
	Search     string
	Ordering   string
	Dispatch   bool
}

func newCreateCmd(a *app) *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a transfer job and optionally dispatch it",
		Long: `Create a transfer job in CREATED. Filters use the same name__lookup=value
syntax as the HTTP query string.

Examples:
  dataport-admin create --resource artists --filter active=true --ordering -born
  dataport-admin create --direction import --resource artists --source-file uploads/artists.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				return runCreate(ctx, a, s, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Direction, "direction", string(model.DirectionExport), "export or import")
	f.StringVar(&opts.Resource, "resource", "", "registered resource key")
	f.StringVar(&opts.Args, "args", "", "resource arguments as a JSON object")
	f.StringVar(&opts.Format, "format", "csv", "file format")
	f.StringVar(&opts.SourceFile, "source-file", "", "artifact key of the file to import")
	f.StringVar(&opts.CreatedBy, "created-by", "", "record the job as created by this requester")
	f.StringArrayVar(&opts.Filters, "filter", nil, "filter as name__lookup=value, repeatable")
	f.StringVar(&opts.Search, "search", "", "free-text search term")
	f.StringVar(&opts.Ordering, "ordering", "", "comma separated ordering fields, - for descending")
	f.BoolVar(&opts.Dispatch, "dispatch", true, "enqueue the job after creating it")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func runCreate(ctx context.Context, a *app, s *session, opts *createOptions) error {
	req, err := buildCreateRequest(s, opts)
	if err != nil {
		return err
	}
	job, err := s.Jobs.Create(ctx, req)
	if err != nil {
		return err
	}
	if opts.Dispatch {
		if err := s.Jobs.Dispatch(ctx, job.ID); err != nil {
			return err
		}
	}
	a.logger.InfoContext(ctx, "job created", "id", job.ID, "dispatched", opts.Dispatch)
	return a.writeJSON(model.NewJobView(job, nil))
}

func buildCreateRequest(s *session, opts *createOptions) (*model.CreateJobRequest, error) {
	params, err := queryParams(opts)
	if err != nil {
		return nil, err
	}
	resolver, err := s.Resolvers.Resolver(strings.TrimSpace(opts.Resource))
	if err != nil {
		return nil, err
	}
	query, err := resolver.Resolve(params)
	if err != nil {
		return nil, err
	}

	req := &model.CreateJobRequest{
		Direction:  model.Direction(strings.ToLower(strings.TrimSpace(opts.Direction))),
		Resource:   model.ResourceDescriptor{Key: opts.Resource},
		Query:      query,
		FileFormat: opts.Format,
		SourceFile: optional(opts.SourceFile),
		CreatedBy:  optional(opts.CreatedBy),
	}
	if opts.Args != "" {
		if !json.Valid([]byte(opts.Args)) {
			return nil, apperrors.ValidationField("args", "Resource arguments must be valid JSON.")
		}
		req.Resource.Args = json.RawMessage(opts.Args)
	}
	return req, nil
}

func queryParams(opts *createOptions) (url.Values, error) {
	params := url.Values{}
	for _, raw := range opts.Filters {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, apperrors.Validationf("Invalid filter %q. Expected name__lookup=value.", raw)
		}
		params.Add(strings.TrimSpace(name), value)
	}
	if opts.Search != "" {
		params.Set(filterspec.SearchParam, opts.Search)
	}
	if opts.Ordering != "" {
		params.Set(filterspec.OrderingParam, opts.Ordering)
	}
	return params, nil
}

func newDispatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <job-id>",
		Short: "Enqueue a CREATED job; a no-op for jobs already dispatched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				id := args[0]
				if err := s.Jobs.Dispatch(ctx, id); err != nil {
					return err
				}
				view, err := ownerView(ctx, s, id)
				if err != nil {
					return err
				}
				return a.writeJSON(*view)
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the status view of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				view, err := ownerView(ctx, s, args[0])
				if err != nil {
					return err
				}
				return a.writeJSON(*view)
			})
		},
	}
}

func newCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a created or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				owner, err := jobOwner(ctx, s, args[0])
				if err != nil {
					return err
				}
				view, err := s.Jobs.Cancel(ctx, args[0], owner)
				if err != nil {
					return err
				}
				a.logger.InfoContext(ctx, "job cancelled", "id", view.ID)
				return a.writeJSON(*view)
			})
		},
	}
}

// ownerView reads the status as the job's creator so requester scoping never hides it from operators.
func ownerView(ctx context.Context, s *session, id string) (*model.JobView, error) {
	owner, err := jobOwner(ctx, s, id)
	if err != nil {
		return nil, err
	}
	return s.Jobs.GetStatus(ctx, id, owner)
}

func jobOwner(ctx context.Context, s *session, id string) (string, error) {
	job, err := s.Lookup.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", apperrors.NotFoundf("Job %s not found.", id)
		}
		return "", fmt.Errorf("get job %s: %w", id, err)
	}
	if job.CreatedBy == nil {
		return "", nil
	}
	return *job.CreatedBy, nil
}

// writeJSON prints v as indented JSON.
func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
