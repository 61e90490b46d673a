// Copyright 2026 Socotra, Inc.

package mcp

import (
	"context"

	"github.com/socotra/mcp-go/code"
)

// CreateMessage asks the client to sample from its configured model,
// provided the client declared sampling support during initialize.
func (s *Server) CreateMessage(ctx context.Context, params CreateMessageParams) (*CreateMessageResult, error) {
	if required, satisfied := requiredClientCapability("sampling/createMessage", s.peerCapabilities()); required && !satisfied {
		return nil, capabilityError("client", "sampling/createMessage", "sampling")
	}
	var result CreateMessageResult
	if err := s.callClient(ctx, "sampling/createMessage", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRoots asks the client for its current filesystem roots, provided the
// client declared the roots capability during initialize.
func (s *Server) ListRoots(ctx context.Context) (*ListRootsResult, error) {
	if required, satisfied := requiredClientCapability("roots/list", s.peerCapabilities()); required && !satisfied {
		return nil, capabilityError("client", "roots/list", "roots")
	}
	var result ListRootsResult
	if err := s.callClient(ctx, "roots/list", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendLoggingMessage emits notifications/message, honoring the minimum
// severity most recently set by the client via logging/setLevel.
func (s *Server) SendLoggingMessage(ctx context.Context, level LogLevel, logger string, data any) error {
	s.mu.Lock()
	min := s.logLevel
	s.mu.Unlock()
	if !level.atLeast(min) {
		return nil
	}
	return s.notifyClient(ctx, "notifications/message", LoggingMessageParams{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
}

// SendResourceUpdated notifies subscribers that uri has changed.
func (s *Server) SendResourceUpdated(ctx context.Context, uri string) error {
	return s.notifyClient(ctx, "notifications/resources/updated", ResourceUpdatedParams{URI: uri})
}

// SendToolsListChanged notifies the client that the tool catalog changed,
// debounced per ServerOptions.DebounceMethods.
func (s *Server) SendToolsListChanged(ctx context.Context) {
	s.NotifyDebounced(ctx, "notifications/tools/list_changed", nil)
}

// SendResourcesListChanged notifies the client that the resource catalog
// changed, debounced per ServerOptions.DebounceMethods.
func (s *Server) SendResourcesListChanged(ctx context.Context) {
	s.NotifyDebounced(ctx, "notifications/resources/list_changed", nil)
}

// SendPromptsListChanged notifies the client that the prompt catalog
// changed, debounced per ServerOptions.DebounceMethods.
func (s *Server) SendPromptsListChanged(ctx context.Context) {
	s.NotifyDebounced(ctx, "notifications/prompts/list_changed", nil)
}

// NotifyElicitationComplete builds and immediately sends the out-of-band
// notifications/elicitation/complete signal for a url-mode elicitation
// previously started by ElicitInput, consuming its bookkeeping record.
func (s *Server) NotifyElicitationComplete(ctx context.Context, elicitationID string) error {
	rec, ok := s.takeElicitation(elicitationID)
	if !ok {
		return Errorf(code.InvalidParams, "no pending elicitation with id %q", elicitationID)
	}
	notify, err := s.createElicitationCompletionNotifier(rec.id, &ElicitInputOptions{
		Mode:             rec.mode,
		RelatedRequestID: rec.relatedRequestID,
	})
	if err != nil {
		return err
	}
	return notify(ctx)
}
