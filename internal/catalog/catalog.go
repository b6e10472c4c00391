package catalog

import (
	"fmt"

	"github.com/logpoison-tool/pkg/models"
)

// LogClass is a named entry of the catalog
type LogClass struct {
	Name               string `json:"name" yaml:"name"`
	models.LogLocation `yaml:",inline"`
}

// Catalog is the ordered set of known log classes. Order is significant:
// scanning walks classes in slice order, then paths in slice order.
type Catalog []LogClass

// DefaultIndicators are substrings typical of web, server and auth log syntax
var DefaultIndicators = []string{
	"GET /",
	"POST /",
	"User-Agent:",
	"Mozilla",
	"HTTP/",
	"Connection:",
	"Accept:",
	"[error]",
	"[notice]",
	"Failed password",
	"Accepted password",
}

// Default returns the built-in catalog of common log locations
func Default() Catalog {
	return Catalog{
		{
			Name: "apache_access",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/var/log/apache2/access.log",
					"/var/log/apache/access.log",
					"/var/log/httpd/access_log",
					"/var/log/httpd-access.log",
					`C:\xampp\apache\logs\access.log`,
					`C:\Apache24\logs\access.log`,
					"/usr/local/apache2/logs/access_log",
					"/var/www/logs/access_log",
					"/opt/lampp/logs/access_log",
				},
				Method:      models.MethodUserAgent,
				Description: "Apache Access Log (User-Agent)",
			},
		},
		{
			Name: "nginx_access",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/var/log/nginx/access.log",
					"/var/log/nginx/access_log",
					`C:\nginx\logs\access.log`,
					"/usr/local/nginx/logs/access.log",
					"/var/www/logs/nginx_access.log",
				},
				Method:      models.MethodUserAgent,
				Description: "Nginx Access Log (User-Agent)",
			},
		},
		{
			Name: "apache_error",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/var/log/apache2/error.log",
					"/var/log/apache/error.log",
					"/var/log/httpd/error_log",
					"/var/log/httpd-error.log",
					`C:\xampp\apache\logs\error.log`,
					`C:\Apache24\logs\error.log`,
					"/usr/local/apache2/logs/error_log",
					"/var/www/logs/error_log",
				},
				Method:      models.MethodMalformedRequest,
				Description: "Apache Error Log (Malformed Request)",
			},
		},
		{
			Name: "nginx_error",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/var/log/nginx/error.log",
					"/var/log/nginx/error_log",
					`C:\nginx\logs\error.log`,
					"/usr/local/nginx/logs/error.log",
				},
				Method:      models.MethodMalformedRequest,
				Description: "Nginx Error Log (Malformed Request)",
			},
		},
		{
			Name: "ssh",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/var/log/auth.log",
					"/var/log/secure",
					"/var/log/sshd.log",
					`C:\Windows\System32\winevt\Logs\Security.evtx`,
				},
				Method:      models.MethodSSHUsername,
				Description: "SSH Log (Username)",
			},
		},
		{
			Name: "ftp",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/var/log/vsftpd.log",
					"/var/log/proftpd/proftpd.log",
					"/var/log/ftp.log",
					"/var/log/xferlog",
				},
				Method:      models.MethodFTPUsername,
				Description: "FTP Log (Username)",
			},
		},
		{
			Name: "mail",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/var/log/mail.log",
					"/var/log/mail",
					"/var/log/maillog",
					"/var/mail/www-data",
				},
				Method:      models.MethodMailField,
				Description: "Mail Log (Email fields)",
			},
		},
		{
			Name: "proc_environ",
			LogLocation: models.LogLocation{
				Paths: []string{
					"/proc/self/environ",
					"/proc/self/fd/0",
					"/proc/self/fd/1",
					"/proc/self/fd/2",
				},
				Method:      models.MethodUserAgent,
				Description: "Process Environment (User-Agent)",
			},
		},
	}
}

// Lookup returns the first class listing path among its candidates
func (c Catalog) Lookup(path string) (LogClass, bool) {
	for _, class := range c {
		for _, p := range class.Paths {
			if p == path {
				return class, true
			}
		}
	}
	return LogClass{}, false
}

// PathCount returns the total number of candidate paths
func (c Catalog) PathCount() int {
	n := 0
	for _, class := range c {
		n += len(class.Paths)
	}
	return n
}

// Validate checks that the catalog is usable by the scanner
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalog is empty")
	}

	seen := make(map[string]bool, len(c))
	for _, class := range c {
		if class.Name == "" {
			return fmt.Errorf("catalog entry without name")
		}
		if seen[class.Name] {
			return fmt.Errorf("duplicate log class: %s", class.Name)
		}
		seen[class.Name] = true

		if len(class.Paths) == 0 {
			return fmt.Errorf("log class %s has no paths", class.Name)
		}
		if !class.Method.Valid() {
			return fmt.Errorf("log class %s: unknown poisoning method: %s", class.Name, class.Method)
		}
	}

	return nil
}
