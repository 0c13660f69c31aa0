package models

// Mode selects how a routed request is resolved.
type Mode string

const (
	ModeTemplateOnly       Mode = "template_only"
	ModeGenerativeFallback Mode = "generative_fallback"
	ModeKnowledgeLookup    Mode = "knowledge_lookup"
	ModeFreeform           Mode = "freeform"
)

// Intent is the closed set of question categories the router emits.
type Intent string

const (
	IntentSessionListing   Intent = "session_listing"
	IntentSessionDetail    Intent = "session_detail"
	IntentTrendSummary     Intent = "trend_summary"
	IntentPersonalPlan     Intent = "personal_plan"
	IntentKnowledgeAnswer  Intent = "knowledge_answer"
	IntentPersonalAnalysis Intent = "personal_analysis"
	IntentGeneralHelp      Intent = "general_help"
	IntentGeneral          Intent = "general"
)

// Parameter keys carried by a RoutedRequest.
const (
	ParamSessionID  = "session_id"
	ParamLatest     = "latest"
	ParamWindowSize = "window_size"
	ParamGoal       = "goal"
)

const (
	DefaultWindowSize = 10
	DefaultGoal       = "core strength"
)

// IntentSpec declares the mode, accepted parameters and defaults of an intent.
type IntentSpec struct {
	Intent   Intent
	Mode     Mode
	Params   []string
	Defaults map[string]interface{}
	// Fallbacks maps a missing parameter to the parameter whose default
	// replaces it, e.g. a missing session_id is replaced by latest.
	Fallbacks map[string]string
}

var intentSpecs = map[Intent]IntentSpec{
	IntentSessionListing: {
		Intent:   IntentSessionListing,
		Mode:     ModeTemplateOnly,
		Params:   []string{ParamWindowSize},
		Defaults: map[string]interface{}{ParamWindowSize: DefaultWindowSize},
	},
	IntentSessionDetail: {
		Intent:    IntentSessionDetail,
		Mode:      ModeTemplateOnly,
		Params:    []string{ParamSessionID, ParamLatest},
		Defaults:  map[string]interface{}{ParamLatest: true},
		Fallbacks: map[string]string{ParamSessionID: ParamLatest},
	},
	IntentTrendSummary: {
		Intent:   IntentTrendSummary,
		Mode:     ModeGenerativeFallback,
		Params:   []string{ParamWindowSize},
		Defaults: map[string]interface{}{ParamWindowSize: DefaultWindowSize},
	},
	IntentPersonalPlan: {
		Intent: IntentPersonalPlan,
		Mode:   ModeGenerativeFallback,
		Params: []string{ParamGoal, ParamWindowSize},
		Defaults: map[string]interface{}{
			ParamGoal:       DefaultGoal,
			ParamWindowSize: DefaultWindowSize,
		},
	},
	IntentPersonalAnalysis: {
		Intent:   IntentPersonalAnalysis,
		Mode:     ModeGenerativeFallback,
		Params:   []string{ParamSessionID, ParamLatest, ParamWindowSize},
		Defaults: map[string]interface{}{ParamWindowSize: DefaultWindowSize},
	},
	IntentKnowledgeAnswer: {Intent: IntentKnowledgeAnswer, Mode: ModeKnowledgeLookup},
	IntentGeneralHelp:     {Intent: IntentGeneralHelp, Mode: ModeFreeform},
	IntentGeneral:         {Intent: IntentGeneral, Mode: ModeFreeform},
}

// SpecFor returns the declaration for an intent.
func SpecFor(intent Intent) (IntentSpec, bool) {
	s, ok := intentSpecs[intent]
	return s, ok
}

// Valid reports whether the intent belongs to the closed enumeration.
func (i Intent) Valid() bool {
	_, ok := intentSpecs[i]
	return ok
}

func (m Mode) Valid() bool {
	switch m {
	case ModeTemplateOnly, ModeGenerativeFallback, ModeKnowledgeLookup, ModeFreeform:
		return true
	}
	return false
}

// Accepts reports whether param is declared for the intent.
func (s IntentSpec) Accepts(param string) bool {
	for _, p := range s.Params {
		if p == param {
			return true
		}
	}
	return false
}

// Substitute returns req with the default that covers the missing parameter.
// ok is false when the intent declares no default for it.
func (s IntentSpec) Substitute(req RoutedRequest, missing string) (RoutedRequest, bool) {
	key := missing
	if fb, ok := s.Fallbacks[missing]; ok {
		key = fb
	}
	v, ok := s.Defaults[key]
	if !ok {
		return req, false
	}
	return req.WithParam(key, v), true
}
