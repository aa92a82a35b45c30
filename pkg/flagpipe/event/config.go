package event

import (
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/config"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
)

// EventsConfigFromConfig builds an EventsConfig from a loaded configuration
// section. Recognized keys:
//
//	capacity                     int
//	flush_interval               duration ("5s")
//	context_keys_capacity        int
//	context_keys_flush_interval  duration ("5m")
//	all_attributes_private       bool
//	private_attributes           list of attribute references
//	omit_anonymous_contexts      bool
//	shutdown_timeout             duration
//
// Unset keys fall back to the package defaults. Invalid private attribute
// references are dropped with an error naming the offender.
func EventsConfigFromConfig(cfg config.Config) (EventsConfig, error) {
	out := EventsConfig{
		Capacity:                 cfg.Int("capacity", DefaultCapacity),
		FlushInterval:            cfg.Duration("flush_interval", DefaultFlushInterval),
		ContextKeysCapacity:      cfg.Int("context_keys_capacity", DefaultContextKeysCapacity),
		ContextKeysFlushInterval: cfg.Duration("context_keys_flush_interval", DefaultContextKeysFlushInterval),
		AllAttributesPrivate:     cfg.Bool("all_attributes_private", false),
		OmitAnonymousContexts:    cfg.Bool("omit_anonymous_contexts", false),
		ShutdownTimeout:          cfg.Duration("shutdown_timeout", DefaultShutdownTimeout),
	}

	for _, raw := range cfg.StringSlice("private_attributes", nil) {
		ref := contexts.NewReference(raw)
		if !ref.Valid() {
			return EventsConfig{}, &ConfigError{
				Field:   "private_attributes",
				Message: "invalid attribute reference " + raw,
			}
		}
		out.PrivateAttributes = append(out.PrivateAttributes, ref)
	}
	return out, nil
}
