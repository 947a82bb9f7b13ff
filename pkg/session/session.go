// Package session is one user's editing session over a pipeline graph:
// hydrate, reconcile on request, edit, then validate and submit once.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/client"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

// ErrValidationFailed indicates a submission rejected before it was sent.
var ErrValidationFailed = errors.New("pipeline failed validation")

// ValidationFailedError carries the full batch of violations.
type ValidationFailedError struct {
	Violations []pipeline.Violation
}

func (e *ValidationFailedError) Error() string {
	kinds := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		kinds = append(kinds, string(v.Kind))
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed.Error(), strings.Join(kinds, ", "))
}

func (e *ValidationFailedError) Unwrap() error { return ErrValidationFailed }

// Submitter is the pipeline store boundary.
type Submitter interface {
	SubmitPipeline(ctx context.Context, sub pipeline.Submission) (pipeline.Record, error)
}

// Session owns one Graph. It is not safe for concurrent use.
type Session struct {
	defs  catalog.Reader
	graph *pipeline.Graph
}

// Open starts a session. A nil doc starts from an empty, unnamed graph.
// The hydrated graph is not reconciled; call Reconcile for that.
func Open(ctx context.Context, defs catalog.Reader, doc *pipeline.Document) (*Session, error) {
	if doc == nil {
		return &Session{defs: defs, graph: pipeline.New("")}, nil
	}
	g, err := pipeline.Deserialize(*doc)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &Session{defs: defs, graph: g}, nil
}

// Graph exposes the graph for read-only inspection.
func (s *Session) Graph() *pipeline.Graph { return s.graph }

// Reconcile brings every instance in line with the current catalog.
func (s *Session) Reconcile(ctx context.Context) ([]pipeline.ReconcileResult, error) {
	return s.graph.ReconcileAll(ctx, s.defs)
}

func (s *Session) Rename(name string) { s.graph.Rename(name) }

func (s *Session) AddNode(ctx context.Context, definitionID string, pos pipeline.Position) (string, error) {
	return s.graph.AddNode(ctx, s.defs, definitionID, pos)
}

func (s *Session) RemoveNode(id string) error { return s.graph.RemoveNode(id) }

func (s *Session) MoveNode(id string, pos pipeline.Position) error { return s.graph.MoveNode(id, pos) }

func (s *Session) Connect(c pipeline.Connection) error { return s.graph.Connect(c) }

func (s *Session) Disconnect(c pipeline.Connection) { s.graph.Disconnect(c) }

func (s *Session) SetStatus(id string, status pipeline.Status) error {
	return s.graph.SetStatus(id, status)
}

// Validate runs the validator without reconciling.
func (s *Session) Validate() pipeline.Report { return pipeline.Validate(s.graph) }

// Submit reconciles, validates and, if the graph is valid, sends it to sub
// exactly once. On any failure the graph is left as it was before the call.
func (s *Session) Submit(ctx context.Context, sub Submitter, trigger pipeline.Trigger) (pipeline.Record, error) {
	trigger, err := trigger.Normalize()
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("submit: %w", err)
	}

	// Reconcile a copy so that a rejected submission leaves the session untouched.
	working, err := pipeline.Deserialize(pipeline.Serialize(s.graph))
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("submit: %w", err)
	}
	if _, err := working.ReconcileAll(ctx, s.defs); err != nil {
		return pipeline.Record{}, fmt.Errorf("submit: %w", err)
	}

	report := pipeline.Validate(working)
	if !report.OK {
		return pipeline.Record{}, &ValidationFailedError{Violations: report.Violations}
	}

	rec, err := sub.SubmitPipeline(ctx, pipeline.Submission{
		Document: pipeline.Serialize(working),
		Trigger:  trigger,
	})
	if err != nil {
		if errors.Is(err, client.ErrNetworkFailure) {
			return pipeline.Record{}, err
		}
		return pipeline.Record{}, fmt.Errorf("%w: %w", client.ErrNetworkFailure, err)
	}

	s.graph = working
	return rec, nil
}
