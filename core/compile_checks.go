package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Store             = (*MemoryStore)(nil)
	_ MetricsRecorder   = (*Observer)(nil)
	_ NegotiationLocker = (*MemoryNegotiationLocker)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
