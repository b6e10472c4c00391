package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const renderedPage = `<!DOCTYPE html>
<html>
<head>
  <title>Inlane Freight</title>
  <style>body { color: #333; }</style>
  <script>var banner = "uid=fake";</script>
</head>
<body>
  <nav>Home | About | root: menu</nav>
  <header>Containers</header>
  <div class="content">
    <p>Inlane Freight moves containers worldwide</p>
    <p>Select a language</p>
    <pre>10.10.14.2 - - [17/Oct/2026:10:00:00 +0000] "GET /index.php HTTP/1.1" 200 512 "-" "uid=0(root) gid=0(root) groups=0(root)
&lt;html lang="en"&gt;
hostname: web01</pre>
  </div>
  <footer>&copy; 2026 Inlane Freight</footer>
</body>
</html>`

func TestParseFindsIdentityOutput(t *testing.T) {
	out := Parse(renderedPage, "id", 50)

	assert.Contains(t, out, "uid=0(root) gid=0(root) groups=0(root)")
	assert.Contains(t, out, "hostname: web01")
	assert.NotContains(t, out, "Inlane Freight")
	assert.NotContains(t, out, "containers")
	assert.NotContains(t, out, `<html lang="en">`)
	assert.NotContains(t, out, "uid=fake")
	assert.NotContains(t, out, "root: menu")
	assert.NotContains(t, out, "Select a language")
}

func TestParseNoLines(t *testing.T) {
	assert.Equal(t, NoOutput, Parse("", "id", 50))
	assert.Equal(t, NoOutput, Parse("<html><body>  \n\t </body></html>", "id", 50))
	assert.Equal(t, NoOutput, Parse("<html><script>uid=0(root)</script></html>", "id", 50))
}

func TestParseFallsBackToPageText(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "<p>paragraph %d</p>\n", i)
	}
	b.WriteString("</body></html>")

	out := Parse(b.String(), "whoami", 50)
	lines := strings.Split(out, "\n")

	assert.Len(t, lines, FallbackLines)
	assert.Equal(t, "paragraph 0", lines[0])
	assert.Equal(t, "paragraph 29", lines[29])
}

func TestParseTruncatesToMaxLines(t *testing.T) {
	var b strings.Builder
	b.WriteString("<pre>total 64\n")
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "-rw-r--r-- 1 www-data www-data 0 Oct 17 10:00 file%d\n", i)
	}
	b.WriteString("</pre>")

	out := Parse(b.String(), "ls -l", 10)
	lines := strings.Split(out, "\n")

	assert.Len(t, lines, 10)
	assert.Equal(t, "total 64", lines[0])
}

func TestFindOutput(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		command string
		want    []string
	}{
		{
			name:    "command echoed",
			lines:   []string{"Welcome", "$ whoami", "www-data"},
			command: "whoami",
			want:    []string{"$ whoami", "www-data"},
		},
		{
			name:    "passwd",
			lines:   []string{"Welcome", "root:x:0:0:root:/root:/bin/bash", "daemon:x:1:1::/usr/sbin:/usr/sbin/nologin"},
			command: "cat /etc/passwd",
			want:    []string{"root:x:0:0:root:/root:/bin/bash", "daemon:x:1:1::/usr/sbin:/usr/sbin/nologin"},
		},
		{
			name:    "noise never flips",
			lines:   []string{`<html data-uid="uid=1">`, "plain text"},
			command: "id",
			want:    []string{},
		},
		{
			name:    "long lines dropped after flip",
			lines:   []string{"uid=33(www-data)", strings.Repeat("x", MaxLineLength), "short"},
			command: "id",
			want:    []string{"uid=33(www-data)", "short"},
		},
		{
			name:    "multi-byte line counted in characters",
			lines:   []string{"uid=0(root)", strings.Repeat("é", 300)},
			command: "id",
			want:    []string{"uid=0(root)", strings.Repeat("é", 300)},
		},
		{
			name:    "multi-byte line at the limit dropped",
			lines:   []string{"uid=0(root)", strings.Repeat("é", MaxLineLength), "ok"},
			command: "id",
			want:    []string{"uid=0(root)", "ok"},
		},
		{
			name:    "no signal",
			lines:   []string{"Welcome", "About"},
			command: "hostname",
			want:    []string{},
		},
		{
			name:    "empty command does not match everything",
			lines:   []string{"Welcome"},
			command: "",
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindOutput(tt.lines, tt.command, DefaultSignals))
		})
	}
}

func TestLinesTrimsAndDropsEmpty(t *testing.T) {
	assert.Equal(t,
		[]string{"one", "two"},
		Lines("<div>\n   one  \n\n\t two\n</div>"))
}
