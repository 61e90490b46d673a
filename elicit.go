// Copyright 2026 Socotra, Inc.

package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/socotra/mcp-go/code"
)

// Elicitation mode literals, as carried on the wire in ElicitParams.Mode.
const (
	ElicitModeForm = "form"
	ElicitModeURL  = "url"
)

// Elicitation outcome literals, as carried on the wire in
// ElicitResult.Action.
const (
	ElicitAccept  = "accept"
	ElicitDecline = "decline"
	ElicitCancel  = "cancel"
)

// ElicitParams are the parameters of an elicitation/create request, sent
// server to client.
type ElicitParams struct {
	Mode            string         `json:"mode,omitempty"` // defaults to ElicitModeForm
	Message         string         `json:"message"`
	RequestedSchema map[string]any `json:"requestedSchema,omitempty"`
	ElicitationID   string         `json:"elicitationId,omitempty"`
	URL             string         `json:"url,omitempty"`
}

// ElicitResult is the response to an elicitation/create request.
type ElicitResult struct {
	Action    string         `json:"action"`
	Content   map[string]any `json:"content,omitempty"`
	OpenedURL *bool          `json:"openedUrl,omitempty"` // url mode only
}

// ElicitationCompleteParams is the payload of
// notifications/elicitation/complete, the out-of-band signal that a
// url-mode elicitation has finished.
type ElicitationCompleteParams struct {
	ElicitationID    string `json:"elicitationId"`
	RelatedRequestID string `json:"relatedRequestId,omitempty"`
}

// elicitationRecord is the server-side bookkeeping entry described in §3:
// created when elicitInput sends a url-mode request, consulted (and
// removed) when the completion notifier fires.
type elicitationRecord struct {
	id               string
	mode             string
	relatedRequestID string
}

// ElicitInputOptions configures a single elicitInput call.
type ElicitInputOptions struct {
	Mode             string
	RelatedRequestID string
}

// ElicitInput implements component G's elicitInput operation (§4.G). For
// mode=form it sends elicitation/create, awaits the result, and on
// action=accept validates Content against RequestedSchema using the
// server's configured Validator. For mode=url it sends the request with a
// freshly minted elicitation id and registers an elicitationRecord so a
// later out-of-band notification can be correlated.
func (s *Server) ElicitInput(ctx context.Context, message string, requestedSchema map[string]any, opts *ElicitInputOptions) (*ElicitResult, error) {
	mode := ElicitModeForm
	var relatedRequestID string
	if opts != nil {
		if opts.Mode != "" {
			mode = opts.Mode
		}
		relatedRequestID = opts.RelatedRequestID
	}

	caps := s.peerCapabilities()
	if !elicitationModeCapability(caps, mode) {
		return nil, fmt.Errorf("client does not support %s elicitation", mode)
	}

	params := ElicitParams{Mode: mode, Message: message, RequestedSchema: requestedSchema}
	if mode == ElicitModeURL {
		params.ElicitationID = uuid.NewString()
		s.recordElicitation(params.ElicitationID, mode, relatedRequestID)
	}

	var result ElicitResult
	if err := s.callClient(ctx, "elicitation/create", params, &result); err != nil {
		return nil, err
	}

	if mode == ElicitModeForm && result.Action == ElicitAccept && requestedSchema != nil {
		compiled, err := s.opts.validator().Compile(requestedSchema)
		if err != nil {
			return nil, Errorf(code.InternalError, "error validating elicitation response: %v", err)
		}
		if ok, msg := compiled.Validate(result.Content); !ok {
			return nil, Errorf(code.InvalidParams, "elicitation response content does not match requested schema: %s", msg)
		}
	}
	return &result, nil
}

// createElicitationCompletionNotifier returns a closure that, when invoked,
// emits notifications/elicitation/complete for the given elicitation id,
// forwarding relatedRequestID if set. Construction fails if the client did
// not declare url-mode elicitation support.
func (s *Server) createElicitationCompletionNotifier(elicitationID string, opts *ElicitInputOptions) (func(context.Context) error, error) {
	if !elicitationModeCapability(s.peerCapabilities(), ElicitModeURL) {
		return nil, fmt.Errorf("client does not support url elicitation")
	}
	var related string
	if opts != nil {
		related = opts.RelatedRequestID
	}
	return func(ctx context.Context) error {
		return s.notifyClient(ctx, "notifications/elicitation/complete", ElicitationCompleteParams{
			ElicitationID:    elicitationID,
			RelatedRequestID: related,
		})
	}, nil
}
