package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/iksnae/feed-collector/internal"
	"github.com/iksnae/feed-collector/internal/export"
)

const tracerName = "github.com/iksnae/feed-collector/internal/bus"

// Request is a command sent over the bus. Format selects the artifact
// encoding for export commands.
type Request struct {
	internal.Command
	Format string `json:"format,omitempty"`
}

// Reply answers a Request. Export commands carry the rendered artifact
// instead of the raw document.
type Reply struct {
	internal.Response
	Artifact *export.Artifact `json:"artifact,omitempty"`
	Instance string           `json:"instance"`
}

// StatusEvent is published for every status notification
type StatusEvent struct {
	Message  string            `json:"message"`
	Severity internal.Severity `json:"severity"`
	Instance string            `json:"instance"`
	At       time.Time         `json:"at"`
}

// ProgressEvent is published for every progress notification
type ProgressEvent struct {
	Count        int            `json:"count"`
	AuthorCounts map[string]int `json:"authorCounts"`
	Instance     string         `json:"instance"`
}

// EndedEvent is published when a session ends
type EndedEvent struct {
	Count    int    `json:"count"`
	Instance string `json:"instance"`
}

// Handler executes commands; *internal.Engine satisfies it
type Handler interface {
	Handle(cmd internal.Command) internal.Response
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(cmd internal.Command) internal.Response

func (f HandlerFunc) Handle(cmd internal.Command) internal.Response {
	return f(cmd)
}

// Server answers bus commands with a Handler and publishes notifications
type Server struct {
	nc       *nats.Conn
	subjects Subjects
	handler  Handler
	format   string
	instance string
	log      *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewServer creates a server; defaultFormat applies when a request names none
func NewServer(nc *nats.Conn, prefix string, handler Handler, defaultFormat string) *Server {
	instance := uuid.NewString()
	return &Server{
		nc:       nc,
		subjects: NewSubjects(prefix),
		handler:  handler,
		format:   defaultFormat,
		instance: instance,
		log:      internal.Logger().Named("bus").With(zap.String("instance", instance)),
	}
}

// Instance identifies this server in replies and events
func (s *Server) Instance() string {
	return s.instance
}

// Notifier returns a notifier publishing under this server's prefix
func (s *Server) Notifier() *Notifier {
	return NewNotifier(s.nc, s.subjects.Prefix, s.instance)
}

// Start subscribes to the command subject
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil
	}
	sub, err := s.nc.Subscribe(s.subjects.Command(), s.serve)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subjects.Command(), err)
	}
	s.sub = sub
	s.log.Info("listening for commands", zap.String("subject", s.subjects.Command()))
	return nil
}

// Stop drains the command subscription
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Drain()
	s.sub = nil
	return err
}

func (s *Server) serve(msg *nats.Msg) {
	ctx, span := otel.Tracer(tracerName).Start(messageContext(msg), "collector.command")
	defer span.End()

	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed request")
		s.respond(ctx, msg, Reply{Response: internal.Response{Error: "malformed request: " + err.Error()}})
		return
	}
	span.SetAttributes(attribute.String("collector.action", req.Action))

	reply := s.Execute(req)
	if !reply.Success {
		span.SetStatus(codes.Error, reply.Error)
	}
	s.respond(ctx, msg, reply)
}

// Execute runs req against the handler and renders export documents
func (s *Server) Execute(req Request) Reply {
	resp := s.handler.Handle(req.Command)
	reply := Reply{Response: resp, Instance: s.instance}
	if resp.Document == nil {
		return reply
	}

	format := req.Format
	if format == "" {
		format = s.format
	}
	artifact, err := export.Render(resp.Document, format)
	if err != nil {
		reply.Success = false
		reply.Error = err.Error()
		return reply
	}
	reply.Document = nil
	reply.Artifact = artifact
	return reply
}

func (s *Server) respond(ctx context.Context, msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		s.log.Debug("command without reply subject", zap.Bool("success", reply.Success))
		return
	}
	reply.Instance = s.instance
	out, err := newMsg(ctx, msg.Reply, reply)
	if err != nil {
		s.log.Error("encode reply", zap.Error(err))
		return
	}
	if err := msg.RespondMsg(out); err != nil {
		s.log.Warn("send reply", zap.Error(err))
	}
}

// Notifier publishes engine notifications as bus events
type Notifier struct {
	nc       *nats.Conn
	subjects Subjects
	instance string
	log      *zap.Logger
}

// NewNotifier publishes under prefix, tagging events with instance
func NewNotifier(nc *nats.Conn, prefix, instance string) *Notifier {
	return &Notifier{
		nc:       nc,
		subjects: NewSubjects(prefix),
		instance: instance,
		log:      internal.Logger().Named("bus"),
	}
}

func (n *Notifier) Status(message string, severity internal.Severity) {
	n.send(n.subjects.Status(), StatusEvent{
		Message:  message,
		Severity: severity,
		Instance: n.instance,
		At:       time.Now().UTC(),
	})
}

func (n *Notifier) Progress(count int, authorCounts map[string]int) {
	n.send(n.subjects.Progress(), ProgressEvent{Count: count, AuthorCounts: authorCounts, Instance: n.instance})
}

func (n *Notifier) SessionEnded(count int) {
	n.send(n.subjects.Ended(), EndedEvent{Count: count, Instance: n.instance})
}

// send never blocks on the network; nats buffers the publish
func (n *Notifier) send(subject string, v any) {
	if err := publish(context.Background(), n.nc, subject, v); err != nil {
		n.log.Warn("publish event", zap.String("subject", subject), zap.Error(err))
	}
}
