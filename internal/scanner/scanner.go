package scanner

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/logpoison-tool/internal/catalog"
	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/internal/transport"
	"github.com/logpoison-tool/pkg/models"
	"github.com/logpoison-tool/pkg/utils"
)

// Observer receives scan progress. Implementations must not block.
type Observer interface {
	OnClass(class catalog.LogClass)
	OnProbeStart(path string)
	OnProbeDone(path string, readable bool)
}

// Scanner detects log files readable through the LFI parameter
type Scanner struct {
	transport transport.Transport
	target    string
	param     string
	config    *config.Config
	log       logger.Logger
	observer  Observer
}

// New creates a new readability scanner
func New(t transport.Transport, target, param string, cfg *config.Config, log logger.Logger) *Scanner {
	return &Scanner{
		transport: t,
		target:    target,
		param:     param,
		config:    cfg,
		log:       log,
	}
}

// SetObserver registers a progress observer
func (s *Scanner) SetObserver(o Observer) {
	s.observer = o
}

// TestReadability includes path once and classifies the response. Any
// transport failure or non-200 status yields (false, "").
func (s *Scanner) TestReadability(ctx context.Context, path string) (bool, string) {
	testURL := utils.BuildInclusionURL(s.target, s.param, path)

	resp, err := s.transport.Get(ctx, testURL, nil)
	if err != nil {
		s.log.Debug("Probe failed", "path", path, "error", err)
		return false, ""
	}

	if !resp.OK() {
		s.log.Debug("Probe rejected", "path", path, "status", resp.StatusCode)
		return false, ""
	}

	if indicator, ok := matchIndicator(resp.Body, s.config.Indicators); ok {
		s.log.Debug("Log readable", "path", path, "indicator", indicator)
		return true, resp.Body
	}

	return false, ""
}

// ScanAll tests every candidate path of every catalog class, in catalog
// order then path order, and returns the readable ones. A cancelled
// context ends the scan early with the results found so far.
func (s *Scanner) ScanAll(ctx context.Context) []models.VulnerableLog {
	s.log.Debug("Scanning for readable log files",
		"target", s.target,
		"param", s.param,
		"candidates", s.config.Catalog.PathCount())

	vulnerableLogs := make([]models.VulnerableLog, 0)

	for _, class := range s.config.Catalog {
		if ctx.Err() != nil {
			break
		}
		if s.observer != nil {
			s.observer.OnClass(class)
		}

		for _, path := range class.Paths {
			if ctx.Err() != nil {
				break
			}
			if s.observer != nil {
				s.observer.OnProbeStart(path)
			}

			readable, content := s.TestReadability(ctx, path)

			if s.observer != nil {
				s.observer.OnProbeDone(path, readable)
			}
			if !readable {
				continue
			}

			vulnerableLogs = append(vulnerableLogs, models.VulnerableLog{
				Path:           path,
				LogType:        class.Name,
				Method:         class.Method,
				Description:    class.Description,
				ContentPreview: Preview(content, s.config.Exploit.MaxContentPreview),
			})
		}
	}

	s.log.Debug("Scan finished", "readable", len(vulnerableLogs))

	return vulnerableLogs
}

// Preview returns the first n characters of content
func Preview(content string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(content) <= n {
		return content
	}

	count := 0
	for i := range content {
		if count == n {
			return content[:i]
		}
		count++
	}
	return content
}

func matchIndicator(body string, indicators []string) (string, bool) {
	for _, indicator := range indicators {
		if strings.Contains(body, indicator) {
			return indicator, true
		}
	}
	return "", false
}
