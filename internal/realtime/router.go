package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/kazak5205/mebelplace-sub009/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, s *Session, data json.RawMessage) error

// Router dispatches inbound frames by event tag.
type Router struct {
	handlers map[EventType]HandlerFunc
	validate *validator.Validate
	log      *zap.Logger
}

func newRouter(log *zap.Logger) *Router {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Router{handlers: make(map[EventType]HandlerFunc), validate: v, log: log}
}

// register binds fn to event. The payload is decoded into T and validated
// before fn runs.
func register[T any](r *Router, event EventType, fn func(ctx context.Context, s *Session, in *T) error) {
	if _, dup := r.handlers[event]; dup {
		panic("realtime: duplicate handler for " + string(event))
	}
	r.handlers[event] = func(ctx context.Context, s *Session, data json.RawMessage) error {
		if len(data) == 0 {
			return &service.DomainError{Kind: service.ErrValidation, Msg: "missing data"}
		}
		var in T
		if err := sonic.Unmarshal(data, &in); err != nil {
			return &service.DomainError{Kind: service.ErrValidation, Msg: "malformed payload"}
		}
		if err := r.validate.Struct(&in); err != nil {
			return &service.DomainError{Kind: service.ErrValidation, Msg: describeValidation(err)}
		}
		return fn(ctx, s, &in)
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid payload"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Events lists the tags with a handler.
func (r *Router) Events() []EventType {
	out := make([]EventType, 0, len(r.handlers))
	for ev := range r.handlers {
		out = append(out, ev)
	}
	return out
}

// Dispatch runs the handler for one inbound frame. Failures, panics
// included, are reported to the sender as an error event and the session
// stays open.
func (r *Router) Dispatch(ctx context.Context, s *Session, frame []byte) {
	env, err := Decode(frame)
	if err != nil {
		s.EmitError("", CodeValidation, "malformed frame")
		telemetry.RecordInboundError(ctx, "", CodeValidation)
		return
	}
	h, ok := r.handlers[env.Event]
	if !ok {
		s.EmitError(env.Event, CodeValidation, "unknown event")
		telemetry.RecordInboundError(ctx, "unknown", CodeValidation)
		return
	}

	ctx, span := otel.Tracer("realtime").Start(ctx, "realtime."+string(env.Event),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("session_id", s.SessionID()),
			attribute.Int64("user_id", s.UserID()),
		))
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			span.SetStatus(codes.Error, "panic")
			r.log.Error("event handler panicked",
				zap.String("event", string(env.Event)),
				zap.String("session_id", s.SessionID()),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			telemetry.RecordInboundError(ctx, string(env.Event), CodeInternal)
			s.EmitError(env.Event, CodeInternal, "internal error")
		}
	}()

	if err := h(ctx, s, env.Data); err != nil {
		code, msg := errorCode(err)
		if code == CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Error("event handler failed",
				zap.String("event", string(env.Event)),
				zap.String("session_id", s.SessionID()),
				zap.Error(err))
		}
		telemetry.RecordInboundError(ctx, string(env.Event), code)
		s.EmitError(env.Event, code, msg)
	}
}

func errorCode(err error) (string, string) {
	switch service.Kind(err) {
	case service.ErrValidation:
		return CodeValidation, err.Error()
	case service.ErrAuth:
		return CodeAuth, err.Error()
	case service.ErrPermission:
		return CodeForbidden, err.Error()
	case service.ErrNotFound:
		return CodeNotFound, err.Error()
	case service.ErrInvalidTransition, service.ErrPrecondition:
		return CodeConflict, err.Error()
	}
	return CodeInternal, "internal error"
}
