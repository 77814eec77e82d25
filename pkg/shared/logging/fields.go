// Package logging provides a small chainable set of standard field
// names shared by the logrus-backed Memory Abstraction Layer loggers
// and the zap-backed Sprint Automation Daemon loggers, so both
// subsystems emit the same vocabulary (component, operation, resource,
// duration, error) regardless of backend.
package logging

import "time"

// Fields is a chainable builder over a plain field map. Both logrus
// (WithFields(logrus.Fields(f))) and zap (via ToZap) consume it.
type Fields map[string]interface{}

func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(kind, name string) Fields {
	f["resource_type"] = kind
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) Source(name string) Fields {
	f["source"] = name
	return f
}

func (f Fields) IssueKey(key string) Fields {
	f["issue_key"] = key
	return f
}
