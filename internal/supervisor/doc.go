// Package supervisor implements the supervision layer: policy agents that
// inspect, modify, or block chat requests before the provider is called and
// chat responses after it replies.
//
// # Supervisors
//
// Every policy agent implements Supervisor. The closed set of kinds is:
//
//   - PassThrough: allows everything
//   - Guardian: keyword and pattern content policy with fixed detectors
//   - Agent: delegates review to a chat model with a restricted tool set
//   - Collection: runs an ordered group of supervisors as a nested chain
//
// Kinds embed Base, which carries identity and permissions and allows by
// default. Permissions are advisory: each supervisor checks its own grants
// before returning a modify.
//
// # Manager
//
// Manager holds the registry (id to Supervisor) and the session rosters
// (session id to an ordered set of supervisor ids). Rosters store ids only;
// ids without a registry entry are skipped when a chain is resolved.
//
//	m := supervisor.NewManager(supervisor.WithLogger(logger), supervisor.WithPublisher(bus))
//	g := supervisor.NewGuardian("guard", "Guardian", nil, supervisor.GuardianOptions{
//		Rules: []string{"no personal info"},
//	})
//	_ = m.AddSupervisor(ctx, g)
//	_ = m.RegisterSupervisor(session.ID, g)
//
//	res, err := m.ProcessRequest(ctx, session, messages)
//
// # Chains
//
// Both chains run the session's supervisors in order, each seeing the output
// of the previous one. A block ends the chain and is returned as is. A modify
// replaces the working message (or response) and its reasons accumulate.
//
// The request chain fails closed: a supervisor error aborts it. The response
// chain fails open: a supervisor error is logged and that step is skipped.
package supervisor
