package supervisor

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/supervision/pkg/types"
)

// Rule phrase markers that enable a detector category.
const (
	RuleNoProfanity      = "no profanity"
	RuleNoPersonalInfo   = "no personal info"
	RuleNoHarmfulContent = "no harmful content"
)

// Decision reasons and confidences of the built-in detectors.
const (
	ReasonProfanity     = "Content contains inappropriate language"
	ReasonPersonalInfo  = "Content contains personal information"
	ReasonHarmful       = "Content may be harmful"
	ReasonGuardianBlock = "Content blocked by guardian"
	ReasonModified      = "Content modified by guardian"

	ConfidenceProfanity    = 0.9
	ConfidencePersonalInfo = 0.8
	ConfidenceHarmful      = 0.7
)

// Redaction placeholders.
const (
	RedactedProfanity = "[FILTERED]"
	RedactedEmail     = "[EMAIL]"
	RedactedPhone     = "[PHONE]"
	RedactedSSN       = "[SSN]"
)

var (
	profanityRe = regexp.MustCompile(`(?i)\b(damn|hell|shit|fuck|fucking|bitch|bastard|crap|asshole)\b`)

	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// 555-123-4567, 555.123.4567, 555 123 4567, (555) 123-4567,
	// +1 555 123 4567, +15551234567. A bare run of ten digits needs the +.
	phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?(?:\(\d{3}\)\s?|\d{3}[-.\s]?)\d{3}[-.\s]?\d{4}|\(\d{3}\)\s?\d{3}[-.\s]?\d{4}|\b\d{3}[-.\s]\d{3}[-.\s]\d{4})\b`)

	// Dash-delimited social security number shape.
	ssnRe = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	harmfulKeywords = []string{"violence", "self-harm", "illegal activities"}
)

// GuardianBlockLogSize bounds the block log kept by each guardian.
const GuardianBlockLogSize = 100

// GuardianLogEntry records one guardian decision.
type GuardianLogEntry struct {
	Time       int64   `json:"time"`
	SessionID  string  `json:"sessionID,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

// GuardianStats summarizes guardian decisions.
type GuardianStats struct {
	Allowed  int `json:"allowed"`
	Blocked  int `json:"blocked"`
	Modified int `json:"modified"`
}

// GuardianOptions configures a Guardian.
type GuardianOptions struct {
	// Rules are free-text policy phrases, evaluated in order.
	Rules []string
	// Redact makes allowed content that ApplyGuardrails would change come
	// back as a modify result. Needs a permission that can modify messages.
	Redact bool
	// CheckResponses applies the decision to responses as well.
	CheckResponses bool
}

// Guardian enforces keyword/pattern content policy.
type Guardian struct {
	Base

	mu       sync.RWMutex
	rules    []string
	redact   bool
	checkOut bool
	blockLog []GuardianLogEntry // ring of the latest blocks
	next     int
	allowed  int
	blocked  int
	modified int
}

// NewGuardian creates a guardian supervisor.
func NewGuardian(id, name string, perms Permissions, opts GuardianOptions) *Guardian {
	return &Guardian{
		Base:     NewBase(id, name, perms),
		rules:    append([]string(nil), opts.Rules...),
		redact:   opts.Redact,
		checkOut: opts.CheckResponses,
	}
}

// Kind returns KindGuardian.
func (g *Guardian) Kind() Kind { return KindGuardian }

// SetGuardrailRules replaces the rule phrases.
func (g *Guardian) SetGuardrailRules(rules []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append([]string(nil), rules...)
}

// GetGuardrailRules returns a copy of the rule phrases.
func (g *Guardian) GetGuardrailRules() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.rules...)
}

// CheckContent decides whether a message passes the configured rules. An
// allowed decision carries the redacted text in ModifiedContent when the
// guardian redacts and redaction changes something.
func (g *Guardian) CheckContent(msg *types.Message) GuardianDecision {
	if !msg.HasText() {
		return GuardianDecision{Allowed: true, Confidence: 1.0}
	}
	return g.checkText(msg.Content)
}

func (g *Guardian) checkText(text string) GuardianDecision {
	if text == "" {
		return GuardianDecision{Allowed: true, Confidence: 1.0}
	}

	rules := g.GetGuardrailRules()
	content := strings.ToLower(text)

	if hasRule(rules, RuleNoProfanity) && containsProfanity(content) {
		return GuardianDecision{Allowed: false, Reason: ReasonProfanity, Confidence: ConfidenceProfanity}
	}
	if hasRule(rules, RuleNoPersonalInfo) && containsPersonalInfo(content) {
		return GuardianDecision{Allowed: false, Reason: ReasonPersonalInfo, Confidence: ConfidencePersonalInfo}
	}
	if hasRule(rules, RuleNoHarmfulContent) && containsHarmful(content) {
		return GuardianDecision{Allowed: false, Reason: ReasonHarmful, Confidence: ConfidenceHarmful}
	}

	d := GuardianDecision{Allowed: true, Confidence: 1.0}
	if redacted, ok := g.redacted(text); ok {
		d.ModifiedContent = redacted
	}
	return d
}

// hasRule reports whether any phrase names the detector category.
func hasRule(rules []string, marker string) bool {
	for _, rule := range rules {
		if strings.Contains(strings.ToLower(rule), marker) {
			return true
		}
	}
	return false
}

func containsProfanity(content string) bool {
	return profanityRe.MatchString(content)
}

func containsPersonalInfo(content string) bool {
	return emailRe.MatchString(content) || phoneRe.MatchString(content) || ssnRe.MatchString(content)
}

func containsHarmful(content string) bool {
	for _, kw := range harmfulKeywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// ApplyGuardrails redacts profanity, email addresses, phone numbers and
// SSN-shaped strings. It does not consult the rule phrases.
func (g *Guardian) ApplyGuardrails(text string) string {
	return Redact(text)
}

// Redact is the rule-independent redaction transform behind ApplyGuardrails.
func Redact(text string) string {
	text = profanityRe.ReplaceAllString(text, RedactedProfanity)
	text = emailRe.ReplaceAllString(text, RedactedEmail)
	text = ssnRe.ReplaceAllString(text, RedactedSSN)
	text = phoneRe.ReplaceAllString(text, RedactedPhone)
	return text
}

// ProcessRequest checks the last message.
func (g *Guardian) ProcessRequest(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
	last := types.LastMessage(messages)
	if last == nil {
		return AllowRequest(nil), nil
	}

	decision := g.CheckContent(last)
	if !decision.Allowed {
		g.recordBlock(session, decision)
		return BlockRequest(blockReason(decision), map[string]any{MetaConfidence: decision.Confidence}), nil
	}

	if decision.ModifiedContent != "" {
		modified := last.WithContent(decision.ModifiedContent)
		g.recordModified()
		return &RequestResult{
			Action:       ActionModify,
			FinalMessage: &modified,
			Reasons:      []string{ReasonModified},
		}, nil
	}

	g.recordAllow()
	return AllowRequest(last), nil
}

// ProcessResponse applies the same policy to the response when the guardian
// was configured to check responses.
func (g *Guardian) ProcessResponse(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
	if !g.checkOut || !response.HasText() {
		return AllowResponse(response), nil
	}

	decision := g.checkText(response.Content)
	if !decision.Allowed {
		g.recordBlock(session, decision)
		return BlockResponse(blockReason(decision), map[string]any{MetaConfidence: decision.Confidence}), nil
	}

	if decision.ModifiedContent != "" {
		modified := response.WithContent(decision.ModifiedContent)
		g.recordModified()
		return &ResponseResult{
			Action:        ActionModify,
			FinalResponse: &modified,
			Reasons:       []string{ReasonModified},
		}, nil
	}

	g.recordAllow()
	return AllowResponse(response), nil
}

// redacted returns the redacted text when redaction is enabled, permitted
// and changes something.
func (g *Guardian) redacted(text string) (string, bool) {
	if !g.redact || !g.Permissions().CanModifyMessages() {
		return "", false
	}
	out := g.ApplyGuardrails(text)
	return out, out != text
}

func blockReason(d GuardianDecision) string {
	if d.Reason == "" {
		return ReasonGuardianBlock
	}
	return d.Reason
}

func (g *Guardian) recordBlock(session *types.Session, d GuardianDecision) {
	entry := GuardianLogEntry{
		Time:       time.Now().UnixMilli(),
		Reason:     d.Reason,
		Confidence: d.Confidence,
	}
	if session != nil {
		entry.SessionID = session.ID
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked++
	if len(g.blockLog) < GuardianBlockLogSize {
		g.blockLog = append(g.blockLog, entry)
		return
	}
	g.blockLog[g.next] = entry
	g.next = (g.next + 1) % GuardianBlockLogSize
}

func (g *Guardian) recordAllow() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed++
}

func (g *Guardian) recordModified() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modified++
}

// BlockLog returns the latest blocked decisions, oldest first. At most
// GuardianBlockLogSize entries are kept.
func (g *Guardian) BlockLog() []GuardianLogEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]GuardianLogEntry, 0, len(g.blockLog))
	out = append(out, g.blockLog[g.next:]...)
	return append(out, g.blockLog[:g.next]...)
}

// Stats summarizes decisions taken so far.
func (g *Guardian) Stats() GuardianStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GuardianStats{
		Allowed:  g.allowed,
		Blocked:  g.blocked,
		Modified: g.modified,
	}
}

// Cleanup clears the decision logs.
func (g *Guardian) Cleanup(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockLog = nil
	g.next = 0
	g.allowed, g.blocked, g.modified = 0, 0, 0
	return nil
}
