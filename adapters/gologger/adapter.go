package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const RootLoggerName = "rfp"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = RootLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// Component returns the named child logger, e.g. rfp.inbound, from a resolved provider.
func Component(provider glog.LoggerProvider, fallback glog.Logger, component string) glog.Logger {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if provider == nil {
		return glog.Ensure(fallback)
	}
	name := RootLoggerName
	if component != "" {
		name += "." + component
	}
	return glog.Ensure(provider.GetLogger(name))
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the engine logger and returns the go-job bridge for bus workers.
func ResolveForJob(
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(RootLoggerName+".bus", provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
