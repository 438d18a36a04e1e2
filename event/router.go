package event

import (
	"context"
	"errors"
	"strings"

	"github.com/ncobase/modulith/merr"
)

// ExpressionEvaluator resolves a "#{...}" routing expression against root,
// the event payload. Implementations live in the sibling expr package.
type ExpressionEvaluator interface {
	Evaluate(expression string, root any) (string, error)
}

// ExternalizationMode selects how the Router hands a message off once it
// has decided to externalize an event.
type ExternalizationMode string

const (
	// ModeImmediate calls the Sender directly, inline with the listener
	// invocation.
	ModeImmediate ExternalizationMode = "immediate"
	// ModeOutbox writes to the Outbox within the business transaction and
	// returns immediately; an external worker later drains the Outbox.
	ModeOutbox ExternalizationMode = "outbox"
)

// RouterConfig controls one Router instance's behavior.
type RouterConfig struct {
	Enabled                  bool
	Mode                     ExternalizationMode
	SerializeExternalization bool
}

// MarkerFunc reports the raw RoutingTarget marker string for event, and
// whether event is externalizable at all; the default Supports predicate
// is built from it.
type MarkerFunc func(event any) (marker string, ok bool)

// MapFunc transforms event into its wire payload. Identity (JSON
// serialization) is used when nil.
type MapFunc func(event any) ([]byte, error)

// HeaderFunc derives headers to attach to event, augmenting but never
// overwriting producer-supplied headers.
type HeaderFunc func(event any) map[string]string

// Router is a distinguished Listener that externalizes events carrying a
// routing marker to a broker, or to an Outbox in "outbox" mode.
type Router struct {
	cfg RouterConfig

	marker  MarkerFunc
	mapFn   MapFunc
	headers HeaderFunc

	evaluator  ExpressionEvaluator
	serializer Serializer
	sender     Sender
	outbox     Outbox
}

// NewRouter builds a Router. marker is required; mapFn/headers/outbox may
// be nil (outbox is required only when cfg.Mode is ModeOutbox).
func NewRouter(cfg RouterConfig, marker MarkerFunc, evaluator ExpressionEvaluator, serializer Serializer, sender Sender, outbox Outbox) *Router {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	return &Router{
		cfg:        cfg,
		marker:     marker,
		evaluator:  evaluator,
		serializer: serializer,
		sender:     sender,
		outbox:     outbox,
	}
}

// WithMap attaches a custom payload mapping function.
func (r *Router) WithMap(fn MapFunc) *Router { r.mapFn = fn; return r }

// WithHeaders attaches a custom header-derivation function.
func (r *Router) WithHeaders(fn HeaderFunc) *Router { r.headers = fn; return r }

// Supports reports whether event carries a routing marker at all. It is
// the Router's `supports` selection predicate (§4.7); the Multicaster
// consults it before registering the Router as a listener for event.
func (r *Router) Supports(event any) bool {
	if !r.cfg.Enabled || r.marker == nil {
		return false
	}
	_, ok := r.marker(event)
	return ok
}

// ListenerFunc adapts Router to the Multicaster's ListenerFunc shape.
func (r *Router) ListenerFunc(ctx context.Context, event any) error {
	marker, ok := r.marker(event)
	if !ok {
		return nil
	}

	parsed := ParseRoutingTarget(marker)
	target, err := parsed.ToRoutingTarget()
	if err != nil {
		return merr.NewExpressionError("routing target", err)
	}

	target, err = r.resolveExpressions(target, event)
	if err != nil {
		return err
	}

	payload, headers, err := r.buildMessage(event)
	if err != nil {
		return err
	}

	if r.cfg.Mode == ModeOutbox {
		if r.outbox == nil {
			return merr.NewConfigurationError("router: outbox mode selected but no Outbox configured")
		}
		return r.outbox.Schedule(ctx, OutboxEntry{Target: target, Payload: payload, Headers: headers})
	}

	if r.sender == nil {
		return merr.NewTransportError("router", errNoSender)
	}
	_, err = r.sender.Send(ctx, target, payload, headers)
	if err != nil {
		return merr.NewTransportError("router: send", err)
	}
	return nil
}

var errNoSender = errors.New("router: no Sender configured")

func (r *Router) resolveExpressions(target RoutingTarget, event any) (RoutingTarget, error) {
	resolvedTarget := target.Target()
	if target.HasTargetExpression() && r.evaluator != nil {
		v, err := r.evaluator.Evaluate(strings.TrimSuffix(strings.TrimPrefix(resolvedTarget, "#{"), "}"), event)
		if err != nil {
			return RoutingTarget{}, merr.NewExpressionError("target", err)
		}
		resolvedTarget = v
	}

	out := ForTarget(resolvedTarget)

	if key, ok := target.Key(); ok {
		resolvedKey := key
		if target.HasKeyExpression() && r.evaluator != nil {
			v, err := r.evaluator.Evaluate(strings.TrimSuffix(strings.TrimPrefix(key, "#{"), "}"), event)
			if err != nil {
				return RoutingTarget{}, merr.NewExpressionError("key", err)
			}
			resolvedKey = v
		}
		out = out.AndKey(resolvedKey)
	}

	return out, nil
}

func (r *Router) buildMessage(event any) ([]byte, map[string]string, error) {
	var payload []byte
	var err error

	if r.mapFn != nil {
		payload, err = r.mapFn(event)
	} else if r.cfg.SerializeExternalization {
		var s string
		s, err = r.serializer.Serialize(event)
		payload = []byte(s)
	} else {
		payload, err = defaultMarshal(event)
	}
	if err != nil {
		return nil, nil, merr.NewStorageError("router: map payload", err)
	}

	headers := map[string]string{}
	if r.headers != nil {
		for k, v := range r.headers(event) {
			if _, exists := headers[k]; !exists {
				headers[k] = v
			}
		}
	}

	return payload, headers, nil
}

func defaultMarshal(event any) ([]byte, error) {
	s, err := (JSONSerializer{}).Serialize(event)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
