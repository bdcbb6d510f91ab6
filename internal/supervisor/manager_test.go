package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/supervision/internal/event"
	"github.com/opencode-ai/supervision/pkg/types"
)

func addAndRegister(t *testing.T, m *Manager, sessionID string, sups ...Supervisor) {
	t.Helper()
	for _, s := range sups {
		require.NoError(t, m.AddSupervisor(context.Background(), s))
		require.NoError(t, m.RegisterSupervisor(sessionID, s))
	}
}

func TestManager_EmptyRosterAllows(t *testing.T) {
	m := NewManager()
	messages := []types.Message{userMessage("m1", "first"), userMessage("m2", "last")}

	res, err := m.ProcessRequest(context.Background(), testSession(), messages)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
	require.NotNil(t, res.FinalMessage)
	assert.Equal(t, messages[1], *res.FinalMessage)
	assert.Empty(t, res.Reasons)
	assert.Equal(t, 0, res.Metadata[MetaSupervisorsProcessed])
}

func TestManager_ModifyThenAllow(t *testing.T) {
	m := NewManager()
	redactor := NewGuardian("redactor", "", NewPermissions(PermModifyMessages), GuardianOptions{Redact: true})
	allower := NewPassThrough("allower", "", nil)
	addAndRegister(t, m, "ses_1", redactor, allower)

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "secret@example.com")})
	require.NoError(t, err)
	assert.Equal(t, ActionModify, res.Action)
	assert.Equal(t, "[EMAIL]", res.FinalMessage.Content)
	assert.Equal(t, []string{"Content modified by guardian"}, res.Reasons)
	assert.Equal(t, map[string]any{
		MetaModificationsApplied: 1,
		MetaSupervisorsProcessed: 2,
	}, res.Metadata)
}

func TestManager_LaterSupervisorSeesRewrite(t *testing.T) {
	m := NewManager()
	redactor := NewGuardian("a", "", NewPermissions(PermModifyMessages), GuardianOptions{Redact: true})

	var seen []types.Message
	observer := newFuncSupervisor("b")
	observer.onRequest = func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		seen = append([]types.Message(nil), messages...)
		return AllowRequest(types.LastMessage(messages)), nil
	}
	addAndRegister(t, m, "ses_1", redactor, observer)

	input := []types.Message{userMessage("m1", "keep"), userMessage("m2", "a@b.com")}
	_, err := m.ProcessRequest(context.Background(), testSession(), input)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "keep", seen[0].Content)
	assert.Equal(t, "[EMAIL]", seen[1].Content)
	assert.Equal(t, "a@b.com", input[1].Content)
}

func TestManager_BlockDiscardsEarlierReasons(t *testing.T) {
	m := NewManager()
	modifier := newFuncSupervisor("modifier", PermModifyMessages)
	modifier.onRequest = func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		msg := types.LastMessage(messages).WithContent("rewritten")
		return &RequestResult{Action: ActionModify, FinalMessage: &msg, Reasons: []string{"rewrote it"}}, nil
	}

	blocked := BlockRequest("not allowed", map[string]any{MetaConfidence: 0.5})
	blocker := newFuncSupervisor("blocker")
	blocker.onRequest = func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		return blocked, nil
	}

	ran := false
	after := newFuncSupervisor("after")
	after.onRequest = func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		ran = true
		return AllowRequest(nil), nil
	}
	addAndRegister(t, m, "ses_1", modifier, blocker, after)

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Same(t, blocked, res)
	assert.Equal(t, []string{"not allowed"}, res.Reasons)
	assert.NotContains(t, res.Reasons, "rewrote it")
	assert.False(t, ran)
}

func TestManager_RegisterWithoutAdd(t *testing.T) {
	m := NewManager()
	s := NewPassThrough("ghost", "", nil)

	require.NoError(t, m.RegisterSupervisor("ses_1", s))
	assert.Empty(t, m.GetSessionSupervisors("ses_1"))

	ids, ok := m.SessionRoster("ses_1")
	assert.True(t, ok)
	assert.Equal(t, []string{"ghost"}, ids)

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
}

func TestManager_StrictRegistration(t *testing.T) {
	m := NewManager(WithStrictRegistration())
	s := NewPassThrough("ghost", "", nil)

	err := m.RegisterSupervisor("ses_1", s)
	assert.ErrorIs(t, err, ErrSupervisorNotFound)

	require.NoError(t, m.AddSupervisor(context.Background(), s))
	assert.NoError(t, m.RegisterSupervisor("ses_1", s))
}

func TestManager_RegisterIsOrderedSet(t *testing.T) {
	m := NewManager()
	a := NewPassThrough("a", "", nil)
	b := NewPassThrough("b", "", nil)
	addAndRegister(t, m, "ses_1", b, a)
	require.NoError(t, m.RegisterSupervisor("ses_1", b))

	ids, _ := m.SessionRoster("ses_1")
	assert.Equal(t, []string{"b", "a"}, ids)

	chain := m.GetSessionSupervisors("ses_1")
	require.Len(t, chain, 2)
	assert.Equal(t, "b", chain[0].ID())
	assert.Equal(t, "a", chain[1].ID())
}

func TestManager_RemovePurgesRosters(t *testing.T) {
	m := NewManager()
	a := newFuncSupervisor("a")
	b := newFuncSupervisor("b")
	require.NoError(t, m.AddSupervisor(context.Background(), a))
	require.NoError(t, m.AddSupervisor(context.Background(), b))
	require.NoError(t, m.RegisterSupervisor("ses_1", a))
	require.NoError(t, m.RegisterSupervisor("ses_2", a))
	require.NoError(t, m.RegisterSupervisor("ses_2", b))

	require.NoError(t, m.RemoveSupervisor(context.Background(), "a"))

	assert.Equal(t, 1, a.cleanups)
	_, ok := m.GetSupervisor("a")
	assert.False(t, ok)

	assert.Empty(t, m.GetSessionSupervisors("ses_1"))
	_, ok = m.SessionRoster("ses_1")
	assert.False(t, ok, "empty roster should be deleted")

	ids, ok := m.SessionRoster("ses_2")
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, ids)
}

func TestManager_RemoveUnknownIsNoop(t *testing.T) {
	m := NewManager()
	assert.NoError(t, m.RemoveSupervisor(context.Background(), "missing"))
}

func TestManager_RemoveIgnoresCleanupFailure(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithPublisher(rec))
	s := newFuncSupervisor("a")
	s.cleanupErr = errors.New("stuck")
	require.NoError(t, m.AddSupervisor(context.Background(), s))

	require.NoError(t, m.RemoveSupervisor(context.Background(), "a"))
	_, ok := m.GetSupervisor("a")
	assert.False(t, ok)

	failed := rec.ofType(event.SupervisorFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, event.PhaseCleanup, failed[0].Phase)
}

func TestManager_UnregisterDeletesEmptyRoster(t *testing.T) {
	m := NewManager()
	a := NewPassThrough("a", "", nil)
	addAndRegister(t, m, "ses_1", a)

	m.UnregisterSupervisor("ses_1", "a")
	_, ok := m.SessionRoster("ses_1")
	assert.False(t, ok)

	m.UnregisterSupervisor("ses_unknown", "a")
}

func TestManager_InitializeFailureKeepsEntry(t *testing.T) {
	m := NewManager()
	s := newFuncSupervisor("broken")
	s.initErr = errors.New("no backend")

	err := m.AddSupervisor(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backend")

	got, ok := m.GetSupervisor("broken")
	assert.True(t, ok)
	assert.Same(t, s, got)
}

func TestManager_AddReplacesAndCleansUp(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithPublisher(rec))
	first := newFuncSupervisor("dup")
	first.cleanupErr = errors.New("still busy")
	second := newFuncSupervisor("dup")

	require.NoError(t, m.AddSupervisor(context.Background(), first))
	require.NoError(t, m.AddSupervisor(context.Background(), first))
	assert.Equal(t, 0, first.cleanups)

	require.NoError(t, m.AddSupervisor(context.Background(), second))
	assert.Equal(t, 1, first.cleanups)
	assert.Equal(t, 0, second.cleanups)
	assert.Len(t, rec.ofType(event.SupervisorFailed), 1)

	got, ok := m.GetSupervisor("dup")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Len(t, m.GetAllSupervisors(), 1)
}

func TestManager_GetAllSupervisorsSorted(t *testing.T) {
	m := NewManager()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.AddSupervisor(context.Background(), NewPassThrough(id, "", nil)))
	}

	var ids []string
	for _, s := range m.GetAllSupervisors() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestManager_RequestErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager()
	failing := newFuncSupervisor("failing")
	failing.onRequest = func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		return nil, boom
	}
	addAndRegister(t, m, "ses_1", failing)

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestManager_ResponseFailOpen(t *testing.T) {
	m := NewManager()
	failing := newFuncSupervisor("failing")
	failing.onResponse = func(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
		return nil, errors.New("rejected")
	}
	addAndRegister(t, m, "ses_1", failing)

	resp := &types.MessageUpdate{ID: "r1", Content: "original"}
	res, err := m.ProcessResponse(context.Background(), testSession(), resp)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
	assert.Same(t, resp, res.FinalResponse)
	assert.Equal(t, "original", res.FinalResponse.Content)
}

func TestManager_ResponseSkipsFailingStepOnly(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithPublisher(rec))

	failing := newFuncSupervisor("failing")
	failing.onResponse = func(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
		return nil, errors.New("rejected")
	}
	redactor := NewGuardian("redactor", "", NewPermissions(PermModifyMessages), GuardianOptions{Redact: true, CheckResponses: true})
	addAndRegister(t, m, "ses_1", failing, redactor)

	resp := &types.MessageUpdate{ID: "r1", Content: "reach me at a@b.com"}
	res, err := m.ProcessResponse(context.Background(), testSession(), resp)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
	assert.Equal(t, "reach me at [EMAIL]", res.FinalResponse.Content)
	assert.Equal(t, []string{ReasonModified}, res.Reasons)
	assert.Equal(t, 2, res.Metadata[MetaSupervisorsProcessed])

	assert.Len(t, rec.ofType(event.SupervisorFailed), 1)
	modified := rec.ofType(event.ResponseModified)
	require.Len(t, modified, 1)
	assert.NotEmpty(t, modified[0].Diff)
}

func TestManager_ResponseBlockShortCircuits(t *testing.T) {
	m := NewManager()
	blocker := NewGuardian("blocker", "", nil, GuardianOptions{Rules: []string{"no harmful content"}, CheckResponses: true})
	ran := false
	after := newFuncSupervisor("after")
	after.onResponse = func(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
		ran = true
		return AllowResponse(response), nil
	}
	addAndRegister(t, m, "ses_1", blocker, after)

	res, err := m.ProcessResponse(context.Background(), testSession(), &types.MessageUpdate{Content: "graphic violence"})
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, res.Action)
	assert.Equal(t, []string{ReasonHarmful}, res.Reasons)
	assert.False(t, ran)
}

func TestManager_Events(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithPublisher(rec))
	g := NewGuardian("g", "Guard", nil, GuardianOptions{Rules: []string{"no profanity"}})
	addAndRegister(t, m, "ses_1", g)

	_, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "damn")})
	require.NoError(t, err)
	require.NoError(t, m.RemoveSupervisor(context.Background(), "g"))

	added := rec.ofType(event.SupervisorAdded)
	require.Len(t, added, 1)
	assert.Equal(t, "Guard", added[0].Supervisor)
	assert.Equal(t, string(KindGuardian), added[0].Kind)

	blocked := rec.ofType(event.RequestBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, "ses_1", blocked[0].SessionID)
	assert.Equal(t, []string{ReasonProfanity}, blocked[0].Reasons)

	assert.Len(t, rec.ofType(event.SupervisorRemoved), 1)
}

func slowSupervisor(id string, d time.Duration) *funcSupervisor {
	s := newFuncSupervisor(id)
	s.onRequest = func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		select {
		case <-time.After(d):
			return BlockRequest("too late", nil), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.onResponse = func(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
		select {
		case <-time.After(d):
			return BlockResponse("too late", nil), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s
}

func TestManager_TimeoutFallbackAllow(t *testing.T) {
	m := NewManager(WithSupervisorTimeout(20*time.Millisecond, ActionAllow))
	addAndRegister(t, m, "ses_1", slowSupervisor("slow", time.Second))

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
	assert.Equal(t, "hi", res.FinalMessage.Content)

	resp := &types.MessageUpdate{Content: "ok"}
	rres, err := m.ProcessResponse(context.Background(), testSession(), resp)
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, rres.Action)
	assert.Same(t, resp, rres.FinalResponse)
}

func TestManager_TimeoutFallbackBlock(t *testing.T) {
	m := NewManager(WithSupervisorTimeout(20*time.Millisecond, ActionBlock))
	addAndRegister(t, m, "ses_1", slowSupervisor("slow", time.Second))

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, res.Action)
	assert.Equal(t, []string{"Supervisor slow timed out"}, res.Reasons)

	rres, err := m.ProcessResponse(context.Background(), testSession(), &types.MessageUpdate{Content: "ok"})
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, rres.Action)
}

func TestManager_TimeoutDoesNotMaskFastResults(t *testing.T) {
	m := NewManager(WithSupervisorTimeout(time.Second, ActionBlock))
	addAndRegister(t, m, "ses_1", NewPassThrough("fast", "", nil))

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
}

func TestManager_PermissionEnforcement(t *testing.T) {
	rewrite := func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		msg := types.LastMessage(messages).WithContent("rewritten")
		return &RequestResult{Action: ActionModify, FinalMessage: &msg, Reasons: []string{"rewrote"}}, nil
	}

	advisory := NewManager()
	s := newFuncSupervisor("readonly")
	s.onRequest = rewrite
	addAndRegister(t, advisory, "ses_1", s)

	res, err := advisory.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Equal(t, ActionModify, res.Action)
	assert.Equal(t, "rewritten", res.FinalMessage.Content)

	enforced := NewManager(WithPermissionEnforcement())
	addAndRegister(t, enforced, "ses_1", s)

	res, err = enforced.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
	assert.Equal(t, "hi", res.FinalMessage.Content)
	assert.Empty(t, res.Reasons)
}

func TestManager_ModifyWithoutMessageIsIgnored(t *testing.T) {
	m := NewManager()
	s := newFuncSupervisor("vague", PermFullControl)
	s.onRequest = func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
		return &RequestResult{Action: ActionModify, Reasons: []string{"meant to"}}, nil
	}
	addAndRegister(t, m, "ses_1", s)

	res, err := m.ProcessRequest(context.Background(), testSession(), []types.Message{userMessage("m1", "hi")})
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, res.Action)
	assert.Empty(t, res.Reasons)
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	a := newFuncSupervisor("a")
	addAndRegister(t, m, "ses_1", a)

	require.NoError(t, m.Close(context.Background()))
	assert.Empty(t, m.GetAllSupervisors())
	assert.Equal(t, 1, a.cleanups)
}

func TestManager_SetGuardianRules(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithPublisher(rec))
	g := NewGuardian("guard", "Guard", nil, GuardianOptions{Rules: []string{RuleNoProfanity}})
	pt := NewPassThrough("pt", "", nil)
	require.NoError(t, m.AddSupervisor(context.Background(), g))
	require.NoError(t, m.AddSupervisor(context.Background(), pt))

	require.NoError(t, m.SetGuardianRules("guard", []string{RuleNoPersonalInfo}))
	assert.Equal(t, []string{RuleNoPersonalInfo}, g.GetGuardrailRules())

	updates := rec.ofType(event.RulesUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, "guard", updates[0].SupervisorID)
	assert.Equal(t, []string{RuleNoPersonalInfo}, updates[0].Metadata["rules"])

	assert.ErrorIs(t, m.SetGuardianRules("missing", nil), ErrSupervisorNotFound)
	assert.ErrorIs(t, m.SetGuardianRules("pt", nil), ErrNotGuardian)
}

func TestManager_SetGuardianRulesInCollection(t *testing.T) {
	m := NewManager()
	nested := NewGuardian("nested", "", nil, GuardianOptions{Rules: []string{RuleNoProfanity}})
	inner := NewCollection("inner", "", nil, nested)
	outer := NewCollection("outer", "", nil, NewPassThrough("pt", "", nil), inner)
	require.NoError(t, m.AddSupervisor(context.Background(), outer))

	require.NoError(t, m.SetGuardianRules("nested", []string{RuleNoHarmfulContent}))
	assert.Equal(t, []string{RuleNoHarmfulContent}, nested.GetGuardrailRules())

	assert.ErrorIs(t, m.SetGuardianRules("pt", nil), ErrNotGuardian)
	assert.ErrorIs(t, m.SetGuardianRules("inner", nil), ErrNotGuardian)
}
