package models

import (
	"fmt"
)

// Method identifies how a payload is persisted into a given log class
type Method string

const (
	MethodUserAgent        Method = "user_agent"
	MethodReferer          Method = "referer"
	MethodMalformedRequest Method = "malformed_request"
	MethodSSHUsername      Method = "ssh_username"
	MethodFTPUsername      Method = "ftp_username"
	MethodMailField        Method = "mail_field"
)

// KnownMethods lists every poisoning method tag in resolution order
var KnownMethods = []Method{
	MethodUserAgent,
	MethodReferer,
	MethodMalformedRequest,
	MethodSSHUsername,
	MethodFTPUsername,
	MethodMailField,
}

// Valid reports whether m is one of the known method tags
func (m Method) Valid() bool {
	for _, known := range KnownMethods {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMethod converts a raw tag into a Method
func ParseMethod(raw string) (Method, error) {
	m := Method(raw)
	if !m.Valid() {
		return "", fmt.Errorf("unknown poisoning method: %s", raw)
	}
	return m, nil
}

// LogLocation describes a class of log files and how to poison them
type LogLocation struct {
	Paths       []string `json:"paths" yaml:"paths"`
	Method      Method   `json:"method" yaml:"method"`
	Description string   `json:"description" yaml:"description"`
}

// CustomLogType is the class assigned to paths that match no catalog entry
const CustomLogType = "custom"

// VulnerableLog is a log file confirmed (or assumed) readable through the LFI
type VulnerableLog struct {
	Path           string `json:"path" yaml:"path"`
	LogType        string `json:"log_type" yaml:"log_type"`
	Method         Method `json:"method" yaml:"method"`
	Description    string `json:"description" yaml:"description"`
	ContentPreview string `json:"content_preview,omitempty" yaml:"content_preview,omitempty"`
}
