package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

// SubmissionsClient covers the /api/v1/submissions resource.
type SubmissionsClient struct {
	client *Client
}

const submissionsPath = "/api/v1/submissions"

func (s *SubmissionsClient) Create(ctx context.Context, req *CreateSubmissionRequest) (*Submission, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	var out Submission
	if err := s.client.post(ctx, submissionsPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SubmissionsClient) Get(ctx context.Context, id string) (*Submission, error) {
	if id == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	var out Submission
	if err := s.client.get(ctx, submissionsPath+"/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update corrects the form data of a submission that has not been filed yet.
func (s *SubmissionsClient) Update(ctx context.Context, id string, req *UpdateSubmissionRequest) (*Submission, error) {
	if id == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	if req == nil || len(req.FormData) == 0 {
		return nil, errors.InvalidParam("form data is required")
	}
	var out Submission
	if err := s.client.patch(ctx, submissionsPath+"/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SubmissionsClient) List(ctx context.Context, opts *ListOptions) (*SubmissionPage, error) {
	q := url.Values{}
	if opts != nil {
		setIf(q, "status", opts.Status)
		setIf(q, "form_type", opts.FormType)
		setIf(q, "subject_ref", opts.SubjectRef)
		setIntIf(q, "tax_year", opts.TaxYear)
		setIntIf(q, "page", opts.Page)
		setIntIf(q, "page_size", opts.PageSize)
	}
	path := submissionsPath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out SubmissionPage
	if err := s.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SubmissionsClient) Transition(ctx context.Context, id string, req *TransitionRequest) (*TransitionResult, error) {
	if id == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	if req == nil || req.Target == "" {
		return nil, errors.InvalidParam("target status is required")
	}
	var out TransitionResult
	if err := s.client.post(ctx, submissionsPath+"/"+url.PathEscape(id)+"/transitions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchTransition returns the itemised result. A nil error does not mean
// every item succeeded; check FailCount.
func (s *SubmissionsClient) BatchTransition(ctx context.Context, req *BatchTransitionRequest) (*BatchTransitionResult, error) {
	if req == nil || len(req.IDs) == 0 {
		return nil, errors.InvalidParam("at least one submission id is required")
	}
	var out BatchTransitionResult
	if err := s.client.post(ctx, submissionsPath+"/batch-transitions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SubmissionsClient) GenerateDocument(ctx context.Context, id string) (*DocumentResult, error) {
	if id == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	var out DocumentResult
	if err := s.client.post(ctx, submissionsPath+"/"+url.PathEscape(id)+"/document", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SubmissionsClient) Validate(ctx context.Context, id string) (*ValidationResult, error) {
	if id == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	var out ValidationResult
	if err := s.client.post(ctx, submissionsPath+"/"+url.PathEscape(id)+"/validation", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditTrail lists the audit events of a submission; limit 0 means the
// server default.
func (s *SubmissionsClient) AuditTrail(ctx context.Context, id string, limit int) ([]AuditEvent, error) {
	if id == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	path := submissionsPath + "/" + url.PathEscape(id) + "/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []AuditEvent `json:"items"`
	}
	if err := s.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func setIf(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func setIntIf(q url.Values, key string, v int) {
	if v != 0 {
		q.Set(key, strconv.Itoa(v))
	}
}
