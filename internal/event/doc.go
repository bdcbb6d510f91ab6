/*
Package event provides the typed notification channel of the supervision layer.

Components never broadcast implicitly. The Manager, the guardian rule
reloader and the HTTP server each receive a Publisher at construction time
and emit Event values with a fixed Type:

Supervisor lifecycle:
  - supervisor.added: a supervisor entered the registry and initialized
  - supervisor.removed: a supervisor was cleaned up and purged from rosters
  - supervisor.failed: a supervisor call failed; Phase names where

Chain outcomes:
  - request.blocked / response.blocked: a supervisor short-circuited the chain
  - request.modified / response.modified: the chain rewrote content; response
    events carry a unified diff of the body

Guardian:
  - guardian.rules.updated: rule phrases were replaced

Tool gate:
  - tool.confirmation.required: a tool call waits for user confirmation
  - tool.confirmation.resolved: the user answered; Granted holds the outcome

# Transport

Bus carries events over a watermill gochannel on the single topic Topic.
Events are JSON encoded, so subscribers receive copies. Publishing with no
subscribers drops the event.

	bus := event.NewBus()
	defer bus.Close()

	events, _ := bus.Subscribe(ctx, event.RequestBlocked)
	for e := range events {
		log.Printf("%s blocked session %s: %v", e.Supervisor, e.SessionID, e.Reasons)
	}

Use Discard where no notifications are wanted.
*/
package event
