package orchestrator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/compose"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/observability"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/resilience"
)

// OrchestratorClient manages the gRPC connection to the Cognitive Orchestrator
type OrchestratorClient struct {
	timeout        time.Duration
	conn           *grpc.ClientConn
	mu             sync.RWMutex
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewOrchestratorClient creates a new Orchestrator gRPC client. The
// connection is established lazily on the first call; extra dial options are
// appended after the defaults.
func NewOrchestratorClient(cfg *config.Config, breaker *resilience.CircuitBreaker, logger zerolog.Logger, extra ...grpc.DialOption) (*OrchestratorClient, error) {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("orchestrator", cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	}

	// Configure connection options
	var opts []grpc.DialOption
	if cfg.OrchestratorTLSEnabled {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	// Keepalive settings for long-lived connections
	opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             3 * time.Second,
		PermitWithoutStream: true,
	}))
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.OrchestratorURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator client for %s: %w", cfg.OrchestratorURL, err)
	}

	timeout := time.Duration(cfg.OrchestratorTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OrchestratorClient{
		timeout:        timeout,
		conn:           conn,
		circuitBreaker: breaker,
		logger:         logger.With().Str("component", "orchestrator").Str("target", cfg.OrchestratorURL).Logger(),
	}, nil
}

// Answer implements compose.Backend
func (c *OrchestratorClient) Answer(ctx context.Context, req compose.BackendRequest) (string, error) {
	answerReq := AnswerRequest{
		ConversationID: req.SessionID,
		Text:           req.Text,
		Context:        req.Context,
		IncludeRAG:     true,
	}
	for _, a := range req.Attachments {
		answerReq.Attachments = append(answerReq.Attachments, Attachment{
			Name:         a.Name,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
			IsScreenshot: a.IsScreenshot,
		})
	}

	resp, err := c.Ask(ctx, answerReq)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Ask sends one request to the Orchestrator through the circuit breaker.
// Failed calls are not retried.
func (c *OrchestratorClient) Ask(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return AnswerResponse{}, fmt.Errorf("failed to build orchestrator request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := &structpb.Struct{}
	err = c.circuitBreaker.Call(func() error {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return errors.New("orchestrator client is closed")
		}
		return conn.Invoke(ctx, AnswerMethod, in, out)
	})

	// Update circuit breaker metrics
	observability.UpdateCircuitBreakerState("orchestrator", int(c.circuitBreaker.GetState()))
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			observability.IncrementCircuitBreakerFailures("orchestrator")
		}
		c.logger.Warn().
			Err(err).
			Bool("retryable", isRetryableError(err)).
			Msg("Orchestrator call failed")
		return AnswerResponse{}, fmt.Errorf("failed to call Answer: %w", err)
	}

	resp := responseFromStruct(out)
	if resp.Error != nil {
		return resp, resp.Error
	}

	c.logger.Debug().
		Str("conversation_id", req.ConversationID).
		Int32("total_tokens", resp.TotalTokens).
		Msg("Orchestrator answered")
	return resp, nil
}

// HealthCheck checks if the Orchestrator is healthy using the standard gRPC
// health service
func (c *OrchestratorClient) HealthCheck(ctx context.Context) (bool, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return false, errors.New("orchestrator client is closed")
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}

	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the gRPC connection
func (c *OrchestratorClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// isRetryableError reports whether a failure looks transient. The reply path
// does not retry; the flag is logged for operators.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused", "connection reset", "connection closed",
		"transport is closing", "unavailable", "deadline exceeded", "resource exhausted",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
