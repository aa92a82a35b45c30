package event

import (
	"sort"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
)

// Output event kinds as they appear on the wire.
const (
	outputKindIndex       = "index"
	outputKindFeature     = "feature"
	outputKindDebug       = "debug"
	outputKindIdentify    = "identify"
	outputKindCustom      = "custom"
	outputKindSummary     = "summary"
	outputKindMigrationOp = "migration_op"
)

type indexOutput struct {
	Kind         string `json:"kind"`
	CreationDate int64  `json:"creationDate"`
	Context      any    `json:"context"`
}

type identifyOutput struct {
	Kind         string `json:"kind"`
	CreationDate int64  `json:"creationDate"`
	Context      any    `json:"context"`
}

type featureOutput struct {
	Kind         string            `json:"kind"`
	CreationDate int64             `json:"creationDate"`
	Key          string            `json:"key"`
	Value        any               `json:"value"`
	Variation    *int              `json:"variation,omitempty"`
	Default      any               `json:"default,omitempty"`
	Version      *int              `json:"version,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	ContextKeys  map[string]string `json:"contextKeys,omitempty"`
	Context      any               `json:"context,omitempty"`
}

type customOutput struct {
	Kind         string            `json:"kind"`
	CreationDate int64             `json:"creationDate"`
	Key          string            `json:"key"`
	ContextKeys  map[string]string `json:"contextKeys"`
	Data         any               `json:"data,omitempty"`
	MetricValue  *float64          `json:"metricValue,omitempty"`
}

type summaryOutput struct {
	Kind      string                       `json:"kind"`
	StartDate int64                        `json:"startDate"`
	EndDate   int64                        `json:"endDate"`
	Features  map[string]summaryFlagOutput `json:"features"`
}

type summaryFlagOutput struct {
	Default      any                    `json:"default"`
	ContextKinds []string               `json:"contextKinds"`
	Counters     []summaryCounterOutput `json:"counters"`
}

type summaryCounterOutput struct {
	Value     any   `json:"value"`
	Variation *int  `json:"variation,omitempty"`
	Version   *int  `json:"version,omitempty"`
	Count     int64 `json:"count"`
	Unknown   bool  `json:"unknown,omitempty"`
}

type migrationOpOutput struct {
	Kind          string              `json:"kind"`
	CreationDate  int64               `json:"creationDate"`
	Operation     string              `json:"operation"`
	ContextKeys   map[string]string   `json:"contextKeys"`
	Evaluation    evaluationOutput    `json:"evaluation"`
	Measurements  []measurementOutput `json:"measurements,omitempty"`
	SamplingRatio *int64              `json:"samplingRatio,omitempty"`
}

type evaluationOutput struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Default   string `json:"default"`
	Reason    string `json:"reason,omitempty"`
	Variation *int   `json:"variation,omitempty"`
	Version   *int   `json:"version,omitempty"`
}

type measurementOutput struct {
	Key           string         `json:"key"`
	Values        map[string]any `json:"values,omitempty"`
	Value         *bool          `json:"value,omitempty"`
	SamplingRatio *int64         `json:"samplingRatio,omitempty"`
}

// contextKeys maps each constituent kind to its key.
func contextKeys(c contexts.Context) map[string]string {
	keys := make(map[string]string)
	for _, ind := range c.Individual() {
		keys[string(ind.Kind())] = ind.Key()
	}
	return keys
}

// makeIndexOutput builds an index event describing a first-seen context.
// Returns ok=false when the context is omitted entirely.
func makeIndexOutput(e BaseEvent, cfg redactionConfig) (indexOutput, bool) {
	ctx, ok := redactContext(e.Context, cfg)
	if !ok {
		return indexOutput{}, false
	}
	return indexOutput{
		Kind:         outputKindIndex,
		CreationDate: toMillis(e.CreationDate),
		Context:      ctx,
	}, true
}

// makeIdentifyOutput builds an identify event.
// Returns ok=false when the context is omitted entirely.
func makeIdentifyOutput(e IdentifyEvent, cfg redactionConfig) (identifyOutput, bool) {
	ctx, ok := redactContext(e.Context, cfg)
	if !ok {
		return identifyOutput{}, false
	}
	return identifyOutput{
		Kind:         outputKindIdentify,
		CreationDate: toMillis(e.CreationDate),
		Context:      ctx,
	}, true
}

// makeFeatureOutput builds a feature or debug event. Debug events inline the
// full redacted context; feature events only reference it by key. Anonymous
// omission applies to index and identify events, not here.
func makeFeatureOutput(e FeatureRequestEvent, debug bool, cfg redactionConfig) featureOutput {
	out := featureOutput{
		Kind:         outputKindFeature,
		CreationDate: toMillis(e.CreationDate),
		Key:          e.Key,
		Value:        e.Value,
		Variation:    e.Variation,
		Default:      e.Default,
		Version:      e.Version,
		Reason:       e.Reason,
	}
	if debug {
		cfg.omitAnonymousContexts = false
		out.Kind = outputKindDebug
		out.Context, _ = redactContext(e.Context, cfg)
	} else {
		out.ContextKeys = contextKeys(e.Context)
	}
	return out
}

func makeCustomOutput(e CustomEvent) customOutput {
	return customOutput{
		Kind:         outputKindCustom,
		CreationDate: toMillis(e.CreationDate),
		Key:          e.Key,
		ContextKeys:  contextKeys(e.Context),
		Data:         e.Data,
		MetricValue:  e.MetricValue,
	}
}

// makeSummaryOutput serializes one closed summary window.
func makeSummaryOutput(state summaryState) summaryOutput {
	features := make(map[string]summaryFlagOutput, len(state.flags))
	for flagKey, summary := range state.flags {
		kinds := make([]string, 0, len(summary.contextKinds))
		for kind := range summary.contextKinds {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		counters := make([]summaryCounterOutput, 0, len(summary.counters))
		for key, counter := range summary.counters {
			out := summaryCounterOutput{
				Value:   counter.value,
				Count:   counter.count,
				Unknown: counter.unknown,
			}
			if key.hasVariation {
				variation := key.variation
				out.Variation = &variation
			}
			if key.hasVersion {
				version := key.version
				out.Version = &version
			}
			counters = append(counters, out)
		}
		sort.Slice(counters, func(i, j int) bool {
			vi, vj := -1, -1
			if counters[i].Variation != nil {
				vi = *counters[i].Variation
			}
			if counters[j].Variation != nil {
				vj = *counters[j].Variation
			}
			if vi != vj {
				return vi < vj
			}
			ni, nj := -1, -1
			if counters[i].Version != nil {
				ni = *counters[i].Version
			}
			if counters[j].Version != nil {
				nj = *counters[j].Version
			}
			return ni < nj
		})

		features[flagKey] = summaryFlagOutput{
			Default:      summary.dflt,
			ContextKinds: kinds,
			Counters:     counters,
		}
	}

	return summaryOutput{
		Kind:      outputKindSummary,
		StartDate: toMillis(state.startDate),
		EndDate:   toMillis(state.endDate),
		Features:  features,
	}
}

// makeMigrationOpOutput serializes a migration operation event with its
// measurements.
func makeMigrationOpOutput(e MigrationOpEvent) migrationOpOutput {
	out := migrationOpOutput{
		Kind:         outputKindMigrationOp,
		CreationDate: toMillis(e.CreationDate),
		Operation:    e.Operation,
		ContextKeys:  contextKeys(e.Context),
		Evaluation: evaluationOutput{
			Key:       e.Key,
			Value:     e.Evaluation.Value,
			Default:   e.Evaluation.Default,
			Reason:    e.Evaluation.Reason,
			Variation: e.Evaluation.Variation,
			Version:   e.Evaluation.Version,
		},
		SamplingRatio: e.SamplingRatio,
	}

	if len(e.Invoked) > 0 {
		values := make(map[string]any, len(e.Invoked))
		for _, origin := range e.Invoked {
			values[string(origin)] = true
		}
		out.Measurements = append(out.Measurements, measurementOutput{
			Key:    "invoked",
			Values: values,
		})
	}

	if len(e.Latency) > 0 {
		values := make(map[string]any, len(e.Latency))
		for origin, latency := range e.Latency {
			values[string(origin)] = latency.Milliseconds()
		}
		out.Measurements = append(out.Measurements, measurementOutput{
			Key:    "latency_ms",
			Values: values,
		})
	}

	if len(e.Errors) > 0 {
		values := make(map[string]any, len(e.Errors))
		for origin := range e.Errors {
			values[string(origin)] = true
		}
		out.Measurements = append(out.Measurements, measurementOutput{
			Key:    "error",
			Values: values,
		})
	}

	if e.ConsistencyCheck != nil {
		out.Measurements = append(out.Measurements, measurementOutput{
			Key:           "consistent",
			Value:         e.ConsistencyCheck,
			SamplingRatio: e.ConsistencyCheckRatio,
		})
	}

	return out
}
