package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/casebook/internal/adapter/fsm"
	"github.com/neomorfeo/casebook/internal/app"
	"github.com/neomorfeo/casebook/internal/domain"
)

// DiagramRenderer draws a domain's lifecycle and lists the events each
// state accepts.
type DiagramRenderer interface {
	Diagram(d domain.Domain, format fsm.Format) (string, error)
	Available(d domain.Domain, current domain.Status) ([]domain.Event, error)
}

// RecordResponse is the API representation of a case record.
type RecordResponse struct {
	ID              string          `json:"id" doc:"Unique identifier"`
	Domain          string          `json:"domain" doc:"Business domain"`
	Status          string          `json:"status" doc:"Lifecycle state"`
	Data            json.RawMessage `json:"data" doc:"Domain payload as stored"`
	AvailableEvents []string        `json:"available_events" doc:"Events accepted from the current state"`
	CreatedAt       string          `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt       string          `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toRecordResponse(engine *domain.Engine, r domain.Record) RecordResponse {
	events := engine.Available(r.Domain, r.Status)
	available := make([]string, len(events))
	for i, e := range events {
		available[i] = string(e)
	}
	return RecordResponse{
		ID:              r.ID,
		Domain:          string(r.Domain),
		Status:          string(r.Status),
		Data:            r.Body,
		AvailableEvents: available,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// --- Create / Update Record ---

type CreateRecordInput struct {
	Domain         string `path:"domain" enum:"offense,payment,appeal,appeal_acceptance,deduction" doc:"Business domain"`
	IdempotencyKey string `header:"Idempotency-Key" required:"false" maxLength:"255" doc:"Deduplicates retried requests"`
	RawBody        []byte `contentType:"application/json"`
}

type UpdateRecordInput struct {
	Domain         string `path:"domain" enum:"offense,payment,appeal,appeal_acceptance,deduction" doc:"Business domain"`
	ID             string `path:"id" doc:"Record ID"`
	IdempotencyKey string `header:"Idempotency-Key" required:"false" maxLength:"255" doc:"Deduplicates retried requests"`
	RawBody        []byte `contentType:"application/json"`
}

type RecordOutput struct {
	Body RecordResponse
}

// --- Get / List Records ---

type GetRecordInput struct {
	Domain string `path:"domain" enum:"offense,payment,appeal,appeal_acceptance,deduction" doc:"Business domain"`
	ID     string `path:"id" doc:"Record ID"`
}

type ListRecordsInput struct {
	Domain string `path:"domain" enum:"offense,payment,appeal,appeal_acceptance,deduction" doc:"Business domain"`
	Status string `query:"status" required:"false" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" minimum:"0" maximum:"500" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListRecordsOutput struct {
	Body []RecordResponse
}

// --- Transition ---

type TransitionInput struct {
	Domain string `path:"domain" enum:"offense,payment,appeal,appeal_acceptance,deduction" doc:"Business domain"`
	ID     string `path:"id" doc:"Record ID"`
	Body   struct {
		Event string `json:"event" minLength:"1" doc:"Lifecycle event to trigger"`
	}
}

// --- Machine ---

type MachineInput struct {
	Domain string `path:"domain" enum:"offense,payment,appeal,appeal_acceptance,deduction" doc:"Business domain"`
	Format string `query:"format" required:"false" enum:"mermaid,graphviz" doc:"Diagram syntax"`
}

type TransitionResponse struct {
	Event string `json:"event"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type MachineResponse struct {
	Domain      string               `json:"domain"`
	Initial     string               `json:"initial"`
	States      []string             `json:"states"`
	Events      []string             `json:"events"`
	Transitions []TransitionResponse `json:"transitions"`
	Available   map[string][]string  `json:"available_events" doc:"Events accepted from each state"`
	Format      string               `json:"format"`
	Diagram     string               `json:"diagram"`
}

type MachineOutput struct {
	Body MachineResponse
}

// --- Idempotency History ---

type HistoryInput struct {
	Key string `path:"key" doc:"Idempotency key"`
}

type HistoryResponse struct {
	Key            string  `json:"key"`
	BusinessType   string  `json:"business_type"`
	BusinessAction string  `json:"business_action"`
	BusinessID     string  `json:"business_id,omitempty"`
	Status         string  `json:"status"`
	Attempts       int     `json:"attempts"`
	CreatedAt      string  `json:"created_at"`
	ReservedAt     string  `json:"reserved_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

type HistoryOutput struct {
	Body HistoryResponse
}

func toHistoryResponse(h domain.HistoryEntry) HistoryResponse {
	resp := HistoryResponse{
		Key:            h.Key,
		BusinessType:   h.BusinessType,
		BusinessAction: h.BusinessAction,
		BusinessID:     h.BusinessID,
		Status:         string(h.Status),
		Attempts:       h.Attempts,
		CreatedAt:      h.CreatedAt.Format(time.RFC3339Nano),
		ReservedAt:     h.ReservedAt.Format(time.RFC3339Nano),
		ErrorMessage:   h.ErrorMessage,
	}
	if h.CompletedAt != nil {
		s := h.CompletedAt.Format(time.RFC3339Nano)
		resp.CompletedAt = &s
	}
	return resp
}

// --- Event Ingestion ---

type PublishEventInput struct {
	Domain         string `path:"domain" enum:"offense,payment,appeal,appeal_acceptance,deduction" doc:"Business domain"`
	Action         string `path:"action" enum:"create,update" doc:"Business action"`
	IdempotencyKey string `header:"Idempotency-Key" required:"false" maxLength:"255" doc:"Events without a key are dropped by the consumer"`
	RawBody        []byte `contentType:"application/json"`
}

type PublishEventOutput struct {
	Body struct {
		Topic          string `json:"topic"`
		IdempotencyKey string `json:"idempotency_key,omitempty"`
	}
}

// Register adds all case API routes to the Huma API.
func Register(api huma.API, svc *app.CaseService, publisher domain.EventPublisher, renderer DiagramRenderer) {
	engine := svc.Engine()

	huma.Register(api, huma.Operation{
		OperationID:   "create-record",
		Method:        http.MethodPost,
		Path:          "/api/v1/records/{domain}",
		Summary:       "Create a case record",
		Tags:          []string{"Records"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateRecordInput) (*RecordOutput, error) {
		d, e, err := decode(input.Domain, input.RawBody)
		if err != nil {
			return nil, toHumaError(err)
		}
		rec, err := svc.Create(ctx, d, input.IdempotencyKey, e)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordOutput{Body: toRecordResponse(engine, rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-record",
		Method:      http.MethodPut,
		Path:        "/api/v1/records/{domain}/{id}",
		Summary:     "Update a case record",
		Description: "Replaces the record payload. A payload `event` applies that lifecycle event; " +
			"a changed `status` must be one transition away.",
		Tags: []string{"Records"},
	}, func(ctx context.Context, input *UpdateRecordInput) (*RecordOutput, error) {
		d, e, err := decode(input.Domain, input.RawBody)
		if err != nil {
			return nil, toHumaError(err)
		}
		e.Header().ID = input.ID
		rec, err := svc.Update(ctx, d, input.IdempotencyKey, e)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordOutput{Body: toRecordResponse(engine, rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-record",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{domain}/{id}",
		Summary:     "Get a case record by ID",
		Tags:        []string{"Records"},
	}, func(ctx context.Context, input *GetRecordInput) (*RecordOutput, error) {
		rec, err := svc.Get(ctx, domain.Domain(input.Domain), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordOutput{Body: toRecordResponse(engine, rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-records",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{domain}",
		Summary:     "List case records",
		Tags:        []string{"Records"},
	}, func(ctx context.Context, input *ListRecordsInput) (*ListRecordsOutput, error) {
		d := domain.Domain(input.Domain)
		filter := domain.ListFilter{
			Domain: d,
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			m, _ := domain.MachineFor(d)
			s := domain.Status(input.Status)
			if !m.HasState(s) {
				return nil, toHumaError(&domain.ForeignValueError{Domain: d, Kind: "status", Value: input.Status})
			}
			filter.Status = &s
		}

		recs, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]RecordResponse, len(recs))
		for i, r := range recs {
			resp[i] = toRecordResponse(engine, r)
		}
		return &ListRecordsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-record",
		Method:      http.MethodPost,
		Path:        "/api/v1/records/{domain}/{id}/events",
		Summary:     "Trigger a lifecycle event",
		Tags:        []string{"Records"},
	}, func(ctx context.Context, input *TransitionInput) (*RecordOutput, error) {
		rec, err := svc.Transition(ctx, domain.Domain(input.Domain), input.ID, domain.Event(input.Body.Event))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordOutput{Body: toRecordResponse(engine, rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "describe-machine",
		Method:      http.MethodGet,
		Path:        "/api/v1/machines/{domain}",
		Summary:     "Describe a domain lifecycle",
		Tags:        []string{"Machines"},
	}, func(_ context.Context, input *MachineInput) (*MachineOutput, error) {
		d, err := domain.ParseDomain(input.Domain)
		if err != nil {
			return nil, toHumaError(err)
		}
		format, err := fsm.ParseFormat(input.Format)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		diagram, err := renderer.Diagram(d, format)
		if err != nil {
			return nil, toHumaError(err)
		}

		m, _ := domain.MachineFor(d)
		resp := MachineResponse{
			Domain:  string(m.Domain),
			Initial: string(m.Initial),
			Format:  string(format),
			Diagram: diagram,
		}
		resp.Available = make(map[string][]string, len(m.States))
		for _, s := range m.States {
			resp.States = append(resp.States, string(s))

			events, err := renderer.Available(d, s)
			if err != nil {
				return nil, toHumaError(err)
			}
			names := make([]string, len(events))
			for i, e := range events {
				names[i] = string(e)
			}
			resp.Available[string(s)] = names
		}
		for _, e := range m.Events {
			resp.Events = append(resp.Events, string(e))
		}
		for _, t := range m.Transitions {
			resp.Transitions = append(resp.Transitions, TransitionResponse{
				Event: string(t.Event),
				From:  string(t.Src),
				To:    string(t.Dst),
			})
		}
		return &MachineOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idempotency-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/idempotency/{key}",
		Summary:     "Look up the outcome of an idempotency key",
		Tags:        []string{"Idempotency"},
	}, func(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
		h, err := svc.History(ctx, input.Key)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &HistoryOutput{Body: toHistoryResponse(h)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "publish-event",
		Method:        http.MethodPost,
		Path:          "/api/v1/events/{domain}/{action}",
		Summary:       "Enqueue a business event for asynchronous processing",
		Tags:          []string{"Events"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *PublishEventInput) (*PublishEventOutput, error) {
		d, err := domain.ParseDomain(input.Domain)
		if err != nil {
			return nil, toHumaError(err)
		}
		env := domain.Envelope{
			IdempotencyKey: input.IdempotencyKey,
			Domain:         d,
			Action:         domain.Action(input.Action),
			Payload:        json.RawMessage(input.RawBody),
		}
		if err := publisher.Publish(ctx, env); err != nil {
			return nil, toHumaError(err)
		}

		out := &PublishEventOutput{}
		out.Body.Topic = env.Topic()
		out.Body.IdempotencyKey = env.IdempotencyKey
		return out, nil
	})
}

func decode(rawDomain string, body []byte) (domain.Domain, domain.Entity, error) {
	d, err := domain.ParseDomain(rawDomain)
	if err != nil {
		return "", nil, err
	}
	e, err := app.Decode(d, body)
	if err != nil {
		return "", nil, err
	}
	return d, e, nil
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrRecordNotFound) {
		return huma.Error404NotFound("record not found")
	}
	if errors.Is(err, domain.ErrHistoryNotFound) {
		return huma.Error404NotFound("idempotency key not found")
	}

	var fvErr *domain.ForeignValueError
	if errors.As(err, &fvErr) {
		if fvErr.Kind == "domain" {
			return huma.Error404NotFound(fvErr.Error())
		}
		return huma.Error422UnprocessableEntity(fvErr.Error())
	}

	var inFlight *domain.InFlightError
	if errors.As(err, &inFlight) {
		return huma.Error409Conflict(inFlight.Error())
	}

	var stale *domain.StaleRecordError
	if errors.As(err, &stale) {
		return huma.Error409Conflict(stale.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return huma.Error422UnprocessableEntity(valErr.Error())
	}

	var mpErr *domain.MalformedPayloadError
	if errors.As(err, &mpErr) {
		return huma.Error400BadRequest(mpErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
