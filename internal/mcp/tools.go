package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmail/agentmaild/internal/buildslots"
	"github.com/agentmail/agentmaild/internal/contacts"
	"github.com/agentmail/agentmaild/internal/identity"
	"github.com/agentmail/agentmaild/internal/messaging"
	"github.com/agentmail/agentmaild/internal/products"
	"github.com/agentmail/agentmaild/internal/reservations"
	"github.com/agentmail/agentmaild/internal/search"
	"github.com/agentmail/agentmaild/internal/store"
)

// Services wires every business component so the tool registry can bind
// them to the fixed MCP vocabulary (spec.md §4.9, §2 data flow: "decodes
// arguments, opens a store transaction, business component ... executes
// within the transaction").
type Services struct {
	Store        *store.Store
	Messaging    *messaging.Service
	Reservations *reservations.Manager
	BuildSlots   *buildslots.Manager
	Contacts     *contacts.Manager
	Products     *products.Manager
	Search       *search.Service
}

// simpleTool adapts a plain (ctx, args) -> (any, error) function to the
// Tool interface, keeping marshaling/error-wrapping in one place instead
// of repeating it across 24 tool implementations.
type simpleTool struct {
	name        string
	description string
	permission  Permission
	schema      json.RawMessage
	fn          func(ctx context.Context, raw json.RawMessage) (any, error)
}

func (t *simpleTool) Name() string                { return t.name }
func (t *simpleTool) Description() string          { return t.description }
func (t *simpleTool) Permission() Permission       { return t.permission }
func (t *simpleTool) InputSchema() json.RawMessage { return t.schema }

func (t *simpleTool) Execute(ctx context.Context, raw json.RawMessage) (*ToolsCallResult, error) {
	data, err := t.fn(ctx, raw)
	if err != nil {
		return ErrorResult(describeError(err)), nil
	}
	return JSONResult(data)
}

// describeError renders a business failure as the short explanatory text
// spec.md §7 requires in isError results, without leaking raw internal
// detail for ErrInternal.
func describeError(err error) string {
	se, ok := err.(*store.Error)
	if !ok {
		return err.Error()
	}
	if se.Kind == store.ErrInternal {
		return "internal error"
	}
	return se.Error()
}

func schema(props string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":"object","properties":%s}`, props))
}

// resolveAgent looks up an agent by (project human key, name) within a
// read transaction, a pattern every tool needs since the wire protocol
// addresses agents by name, not internal id.
func resolveAgent(ctx context.Context, s *store.Store, projectKey, name string) (projectID, agentID int64, err error) {
	err = s.WithRead(ctx, func(tx *store.Tx) error {
		p, err := tx.EnsureProject(projectKey)
		if err != nil {
			return err
		}
		projectID = p.ID
		a, err := tx.AgentByName(p.ID, name)
		if err != nil {
			return err
		}
		agentID = a.ID
		return nil
	})
	return
}

// RegisterAll binds every tool in the fixed vocabulary (spec.md §4.9:
// "a static registry (≥20 tools)") plus the four resources (spec.md §6).
func RegisterAll(reg *Registry, svc *Services) {
	reg.Register(healthCheckTool())
	reg.Register(ensureProjectTool(svc))
	reg.Register(registerAgentTool(svc))
	reg.Register(sendMessageTool(svc))
	reg.Register(replyMessageTool(svc))
	reg.Register(fetchInboxTool(svc))
	reg.Register(markReadTool(svc))
	reg.Register(acknowledgeMessageTool(svc))
	reg.Register(summarizeThreadTool(svc))
	reg.Register(searchMessagesTool(svc))
	reg.Register(fileReservationPathsTool(svc))
	reg.Register(renewFileReservationsTool(svc))
	reg.Register(releaseFileReservationsTool(svc))
	reg.Register(forceReleaseFileReservationTool(svc))
	reg.Register(acquireBuildSlotTool(svc))
	reg.Register(renewBuildSlotTool(svc))
	reg.Register(releaseBuildSlotTool(svc))
	reg.Register(requestContactTool(svc))
	reg.Register(respondContactTool(svc))
	reg.Register(setContactPolicyTool(svc))
	reg.Register(ensureProductTool(svc))
	reg.Register(productsLinkTool(svc))
	reg.Register(fetchInboxProductTool(svc))
	reg.Register(searchMessagesProductTool(svc))

	reg.RegisterResource("projects", &projectsResource{store: svc.Store})
	reg.RegisterResource("agents", &agentsResource{store: svc.Store})
	reg.RegisterResource("inbox", &inboxResource{store: svc.Store, messaging: svc.Messaging})
	reg.RegisterResource("tooling", &toolingResource{registry: reg})
}

func healthCheckTool() Tool {
	return &simpleTool{
		name: "health_check", description: "Report server liveness", permission: PermissionRead,
		schema: schema(`{}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			return map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	}
}

func ensureProjectTool(svc *Services) Tool {
	type args struct {
		HumanKey string `json:"human_key"`
	}
	return &simpleTool{
		name: "ensure_project", description: "Create or return the project identified by human_key", permission: PermissionWrite,
		schema: schema(`{"human_key":{"type":"string"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			var p *store.Project
			err := svc.Store.WithWrite(ctx, func(tx *store.Tx) error {
				var err error
				p, err = tx.EnsureProject(a.HumanKey)
				return err
			})
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

func registerAgentTool(svc *Services) Tool {
	type args struct {
		Project         string `json:"project"`
		Name            string `json:"name"`
		Program         string `json:"program"`
		Model           string `json:"model"`
		TaskDescription string `json:"task_description"`
	}
	return &simpleTool{
		name: "register_agent", description: "Register or update an agent identity within a project", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"name":{"type":"string"},"program":{"type":"string"},"model":{"type":"string"},"task_description":{"type":"string"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			var agent *store.Agent
			err := svc.Store.WithWrite(ctx, func(tx *store.Tx) error {
				project, err := tx.EnsureProject(a.Project)
				if err != nil {
					return err
				}

				name := a.Name
				adjIdx, nounIdx := 0, 0
				if name == "" {
					used, err := tx.UsedNameIndexes(project.ID)
					if err != nil {
						return err
					}
					n, err := identity.Allocate(used)
					if err != nil {
						return store.NewError(store.ErrInternal, "allocate name: %v", err)
					}
					name, adjIdx, nounIdx = n.String(), n.AdjIndex, n.NounIndex
				} else if parsed, err := identity.Parse(name); err == nil {
					adjIdx, nounIdx = parsed.AdjIndex, parsed.NounIndex
				} else {
					return store.NewError(store.ErrInvalidArgument, "invalid agent name: %v", err)
				}

				agent, err = tx.UpsertAgent(project.ID, name, a.Program, a.Model, a.TaskDescription, adjIdx, nounIdx)
				return err
			})
			if err != nil {
				return nil, err
			}
			return agent, nil
		},
	}
}

func sendMessageTool(svc *Services) Tool {
	type args struct {
		Project     string   `json:"project"`
		Sender      string   `json:"sender"`
		To          []string `json:"to"`
		CC          []string `json:"cc"`
		BCC         []string `json:"bcc"`
		Subject     string   `json:"subject"`
		BodyMD      string   `json:"body_md"`
		ThreadID    string   `json:"thread_id"`
		Importance  string   `json:"importance"`
		AckRequired bool     `json:"ack_required"`
	}
	return &simpleTool{
		name: "send_message", description: "Send a message from one agent to a set of recipients", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"sender":{"type":"string"},"to":{"type":"array","items":{"type":"string"}},"cc":{"type":"array","items":{"type":"string"}},"bcc":{"type":"array","items":{"type":"string"}},"subject":{"type":"string"},"body_md":{"type":"string"},"thread_id":{"type":"string"},"importance":{"type":"string"},"ack_required":{"type":"boolean"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, senderID, err := resolveAgent(ctx, svc.Store, a.Project, a.Sender)
			if err != nil {
				return nil, err
			}
			recipients, err := resolveRecipients(ctx, svc.Store, projectID, a.To, a.CC, a.BCC)
			if err != nil {
				return nil, err
			}
			importance := store.ImportanceNormal
			if a.Importance != "" {
				importance = store.Importance(a.Importance)
			}
			return svc.Messaging.Send(ctx, messaging.SendRequest{
				ProjectID: projectID, SenderID: senderID, Recipients: recipients,
				Subject: a.Subject, BodyMD: a.BodyMD, ThreadID: a.ThreadID,
				Importance: importance, AckRequired: a.AckRequired,
			})
		},
	}
}

func resolveRecipients(ctx context.Context, s *store.Store, projectID int64, to, cc, bcc []string) ([]messaging.Recipient, error) {
	var recipients []messaging.Recipient
	err := s.WithRead(ctx, func(tx *store.Tx) error {
		add := func(names []string, kind store.RecipientKind) error {
			for _, name := range names {
				agent, err := tx.AgentByName(projectID, name)
				if err != nil {
					return err
				}
				recipients = append(recipients, messaging.Recipient{AgentID: agent.ID, Kind: kind})
			}
			return nil
		}
		if err := add(to, store.RecipientTo); err != nil {
			return err
		}
		if err := add(cc, store.RecipientCC); err != nil {
			return err
		}
		return add(bcc, store.RecipientBCC)
	})
	return recipients, err
}

func replyMessageTool(svc *Services) Tool {
	type args struct {
		Project         string   `json:"project"`
		Sender          string   `json:"sender"`
		ParentMessageID int64    `json:"parent_message_id"`
		To              []string `json:"to"`
		CC              []string `json:"cc"`
		BCC             []string `json:"bcc"`
		BodyMD          string   `json:"body_md"`
		Importance      string   `json:"importance"`
		AckRequired     bool     `json:"ack_required"`
	}
	return &simpleTool{
		name: "reply_message", description: "Reply to a message, inheriting its thread", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"sender":{"type":"string"},"parent_message_id":{"type":"integer"},"to":{"type":"array","items":{"type":"string"}},"cc":{"type":"array","items":{"type":"string"}},"bcc":{"type":"array","items":{"type":"string"}},"body_md":{"type":"string"},"importance":{"type":"string"},"ack_required":{"type":"boolean"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, senderID, err := resolveAgent(ctx, svc.Store, a.Project, a.Sender)
			if err != nil {
				return nil, err
			}
			recipients, err := resolveRecipients(ctx, svc.Store, projectID, a.To, a.CC, a.BCC)
			if err != nil {
				return nil, err
			}
			importance := store.ImportanceNormal
			if a.Importance != "" {
				importance = store.Importance(a.Importance)
			}
			return svc.Messaging.Reply(ctx, projectID, senderID, a.ParentMessageID, recipients, a.BodyMD, importance, a.AckRequired)
		},
	}
}

func fetchInboxTool(svc *Services) Tool {
	type args struct {
		Project    string `json:"project"`
		Agent      string `json:"agent"`
		Limit      int    `json:"limit"`
		SinceTS    int64  `json:"since_ts"`
		Importance string `json:"importance"`
		UnreadOnly bool   `json:"unread_only"`
	}
	return &simpleTool{
		name: "fetch_inbox", description: "Fetch an agent's inbox within a project", permission: PermissionRead,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"limit":{"type":"integer"},"since_ts":{"type":"integer"},"importance":{"type":"string"},"unread_only":{"type":"boolean"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			rows, err := svc.Messaging.FetchInbox(ctx, projectID, agentID, store.InboxFilter{
				SinceTS: a.SinceTS, Importance: a.Importance, UnreadOnly: a.UnreadOnly, Limit: a.Limit,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"inbox": rows}, nil
		},
	}
}

func markReadTool(svc *Services) Tool {
	type args struct {
		Project   string `json:"project"`
		Agent     string `json:"agent"`
		MessageID int64  `json:"message_id"`
	}
	return &simpleTool{
		name: "mark_read", description: "Mark a message read by an agent (idempotent)", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"message_id":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			_, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			if err := svc.Messaging.MarkRead(ctx, a.MessageID, agentID); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	}
}

func acknowledgeMessageTool(svc *Services) Tool {
	type args struct {
		Project   string `json:"project"`
		Agent     string `json:"agent"`
		MessageID int64  `json:"message_id"`
	}
	return &simpleTool{
		name: "acknowledge_message", description: "Acknowledge a message (idempotent)", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"message_id":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			_, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			if err := svc.Messaging.Acknowledge(ctx, a.MessageID, agentID); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	}
}

func summarizeThreadTool(svc *Services) Tool {
	type args struct {
		Project  string `json:"project"`
		ThreadID string `json:"thread_id"`
	}
	return &simpleTool{
		name: "summarize_thread", description: "Return every message in a thread, oldest first", permission: PermissionRead,
		schema: schema(`{"project":{"type":"string"},"thread_id":{"type":"string"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			var projectID int64
			err := svc.Store.WithRead(ctx, func(tx *store.Tx) error {
				p, err := tx.EnsureProject(a.Project)
				if err != nil {
					return err
				}
				projectID = p.ID
				return nil
			})
			if err != nil {
				return nil, err
			}
			messages, err := svc.Messaging.SummarizeThread(ctx, projectID, a.ThreadID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"messages": messages}, nil
		},
	}
}

func searchMessagesTool(svc *Services) Tool {
	type args struct {
		Project     string   `json:"project"`
		Query       string   `json:"query"`
		Sender      string   `json:"sender"`
		ThreadID    string   `json:"thread_id"`
		Importances []string `json:"importance"`
		DateStart   int64    `json:"date_start"`
		DateEnd     int64    `json:"date_end"`
		Limit       int      `json:"limit"`
	}
	return &simpleTool{
		name: "search_messages", description: "Search messages within a project with optional filters", permission: PermissionRead,
		schema: schema(`{"project":{"type":"string"},"query":{"type":"string"},"sender":{"type":"string"},"thread_id":{"type":"string"},"importance":{"type":"array","items":{"type":"string"}},"date_start":{"type":"integer"},"date_end":{"type":"integer"},"limit":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			req, err := buildSearchRequest(ctx, svc.Store, a.Project, a.Query, a.Sender, a.ThreadID, a.Importances, a.DateStart, a.DateEnd, a.Limit)
			if err != nil {
				return nil, err
			}
			hits, err := svc.Search.Search(ctx, req)
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": hits}, nil
		},
	}
}

func buildSearchRequest(ctx context.Context, s *store.Store, projectKey, query, sender, threadID string, importances []string, dateStart, dateEnd int64, limit int) (search.Request, error) {
	var projectID int64
	err := s.WithRead(ctx, func(tx *store.Tx) error {
		p, err := tx.EnsureProject(projectKey)
		if err != nil {
			return err
		}
		projectID = p.ID
		return nil
	})
	if err != nil {
		return search.Request{}, err
	}

	req := search.Request{
		ProjectID: projectID, Query: query, ThreadID: threadID,
		Importances: importances, DateStart: dateStart, DateEnd: dateEnd, Limit: limit,
	}
	if sender != "" {
		_, agentID, err := resolveAgent(ctx, s, projectKey, sender)
		if err != nil {
			return search.Request{}, err
		}
		req.Sender.Int64, req.Sender.Valid = agentID, true
	}
	return req, nil
}

func fileReservationPathsTool(svc *Services) Tool {
	type candidate struct {
		PathPattern string `json:"path_pattern"`
		Exclusive   bool   `json:"exclusive"`
		Reason      string `json:"reason"`
	}
	type args struct {
		Project    string      `json:"project"`
		Agent      string      `json:"agent"`
		Patterns   []candidate `json:"patterns"`
		TTLSeconds int64       `json:"ttl_seconds"`
	}
	return &simpleTool{
		name: "file_reservation_paths", description: "Request exclusive or shared reservations on path patterns", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"patterns":{"type":"array","items":{"type":"object"}},"ttl_seconds":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			candidates := make([]reservations.Candidate, len(a.Patterns))
			for i, c := range a.Patterns {
				candidates[i] = reservations.Candidate{PathPattern: c.PathPattern, Exclusive: c.Exclusive, Reason: c.Reason}
			}
			return svc.Reservations.Grant(ctx, projectID, agentID, candidates, a.TTLSeconds)
		},
	}
}

func renewFileReservationsTool(svc *Services) Tool {
	type args struct {
		Project    string   `json:"project"`
		Agent      string   `json:"agent"`
		Paths      []string `json:"paths"`
		TTLSeconds int64    `json:"ttl_seconds"`
	}
	return &simpleTool{
		name: "renew_file_reservations", description: "Extend expiry for patterns currently held by agent", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"paths":{"type":"array","items":{"type":"string"}},"ttl_seconds":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			return svc.Reservations.Renew(ctx, projectID, agentID, a.Paths, a.TTLSeconds)
		},
	}
}

func releaseFileReservationsTool(svc *Services) Tool {
	type args struct {
		Project string   `json:"project"`
		Agent   string   `json:"agent"`
		Paths   []string `json:"paths"`
	}
	return &simpleTool{
		name: "release_file_reservations", description: "Release patterns held by agent; unknown paths are ignored", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"paths":{"type":"array","items":{"type":"string"}}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			released, err := svc.Reservations.Release(ctx, projectID, agentID, a.Paths)
			if err != nil {
				return nil, err
			}
			return map[string]any{"released": released}, nil
		},
	}
}

func forceReleaseFileReservationTool(svc *Services) Tool {
	type args struct {
		Project        string `json:"project"`
		ReservationID  int64  `json:"reservation_id"`
		Releaser       string `json:"releaser"`
		Note           string `json:"note"`
		NotifyPrevious bool   `json:"notify_previous"`
	}
	return &simpleTool{
		name: "force_release_file_reservation", description: "Evict a stale holder's reservation", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"reservation_id":{"type":"integer"},"releaser":{"type":"string"},"note":{"type":"string"},"notify_previous":{"type":"boolean"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			_, releaserID, err := resolveAgent(ctx, svc.Store, a.Project, a.Releaser)
			if err != nil {
				return nil, err
			}

			var holder *store.Agent
			err = svc.Store.WithRead(ctx, func(tx *store.Tx) error {
				r, err := tx.ReservationByID(a.ReservationID)
				if err != nil {
					return err
				}
				holder, err = tx.AgentByID(r.AgentID)
				return err
			})
			if err != nil {
				return nil, err
			}

			signals, err := svc.Reservations.ForceRelease(ctx, a.ReservationID, releaserID, a.Note, time.Now())
			if err != nil {
				if se, ok := err.(*store.Error); ok && se.Kind == store.ErrHolderActive {
					// Not an error result: the caller needs the computed
					// signal set to decide whether to retry or escalate
					// (spec.md §4.4), and isError results carry only text.
					return map[string]any{"released": false, "reason": se.Message, "signals": signals}, nil
				}
				return nil, err
			}

			if a.NotifyPrevious {
				projectID, _, rerr := resolveAgent(ctx, svc.Store, a.Project, holder.Name)
				if rerr == nil {
					_, _ = svc.Messaging.Send(ctx, messaging.SendRequest{
						ProjectID: projectID, SenderID: releaserID,
						Recipients: []messaging.Recipient{{AgentID: holder.ID, Kind: store.RecipientTo}},
						Subject:    "Reservation force-released",
						BodyMD:     a.Note,
					})
				}
			}

			return map[string]any{"released": true, "previous_holder": holder.Name, "signals": signals}, nil
		},
	}
}

func acquireBuildSlotTool(svc *Services) Tool {
	type args struct {
		Project    string `json:"project"`
		Agent      string `json:"agent"`
		Slot       string `json:"slot"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	return &simpleTool{
		name: "acquire_build_slot", description: "Acquire a named exclusive build slot lease", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"slot":{"type":"string"},"ttl_seconds":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			return svc.BuildSlots.Acquire(ctx, projectID, agentID, a.Slot, a.TTLSeconds)
		},
	}
}

func renewBuildSlotTool(svc *Services) Tool {
	type args struct {
		Project    string `json:"project"`
		Agent      string `json:"agent"`
		Slot       string `json:"slot"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	return &simpleTool{
		name: "renew_build_slot", description: "Extend a build slot lease currently held by agent", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"slot":{"type":"string"},"ttl_seconds":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			renewed, err := svc.BuildSlots.Renew(ctx, projectID, agentID, a.Slot, a.TTLSeconds)
			if err != nil {
				return nil, err
			}
			return map[string]any{"renewed": renewed}, nil
		},
	}
}

func releaseBuildSlotTool(svc *Services) Tool {
	type args struct {
		Project string `json:"project"`
		Agent   string `json:"agent"`
		Slot    string `json:"slot"`
	}
	return &simpleTool{
		name: "release_build_slot", description: "Release a build slot lease currently held by agent", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"slot":{"type":"string"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			released, err := svc.BuildSlots.Release(ctx, projectID, agentID, a.Slot)
			if err != nil {
				return nil, err
			}
			return map[string]any{"released": released}, nil
		},
	}
}

func requestContactTool(svc *Services) Tool {
	type args struct {
		Project string `json:"project"`
		From    string `json:"from"`
		To      string `json:"to"`
		Reason  string `json:"reason"`
	}
	return &simpleTool{
		name: "request_contact", description: "Request a contact relationship with another agent", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"from":{"type":"string"},"to":{"type":"string"},"reason":{"type":"string"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, fromID, err := resolveAgent(ctx, svc.Store, a.Project, a.From)
			if err != nil {
				return nil, err
			}
			_, toID, err := resolveAgent(ctx, svc.Store, a.Project, a.To)
			if err != nil {
				return nil, err
			}
			return svc.Contacts.Request(ctx, projectID, fromID, toID, a.Reason)
		},
	}
}

func respondContactTool(svc *Services) Tool {
	type args struct {
		Project string `json:"project"`
		From    string `json:"from"`
		To      string `json:"to"`
		Accept  bool   `json:"accept"`
	}
	return &simpleTool{
		name: "respond_contact", description: "Accept or block a pending contact request", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"from":{"type":"string"},"to":{"type":"string"},"accept":{"type":"boolean"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			projectID, fromID, err := resolveAgent(ctx, svc.Store, a.Project, a.From)
			if err != nil {
				return nil, err
			}
			_, toID, err := resolveAgent(ctx, svc.Store, a.Project, a.To)
			if err != nil {
				return nil, err
			}
			return svc.Contacts.Respond(ctx, projectID, fromID, toID, a.Accept)
		},
	}
}

func setContactPolicyTool(svc *Services) Tool {
	type args struct {
		Project string `json:"project"`
		Agent   string `json:"agent"`
		Policy  string `json:"policy"`
	}
	return &simpleTool{
		name: "set_contact_policy", description: "Set an agent's default inbound contact policy", permission: PermissionWrite,
		schema: schema(`{"project":{"type":"string"},"agent":{"type":"string"},"policy":{"type":"string","enum":["open","contacts_only","block_all","auto"]}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			_, agentID, err := resolveAgent(ctx, svc.Store, a.Project, a.Agent)
			if err != nil {
				return nil, err
			}
			if err := svc.Contacts.SetPolicy(ctx, agentID, store.ContactPolicy(a.Policy)); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		},
	}
}

func ensureProductTool(svc *Services) Tool {
	type args struct {
		ProductKey string `json:"product_key"`
		Name       string `json:"name"`
	}
	return &simpleTool{
		name: "ensure_product", description: "Create or return the product identified by product_key", permission: PermissionWrite,
		schema: schema(`{"product_key":{"type":"string"},"name":{"type":"string"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			return svc.Products.Ensure(ctx, a.ProductKey, a.Name)
		},
	}
}

func productsLinkTool(svc *Services) Tool {
	type args struct {
		ProductKey string `json:"product_key"`
		ProjectKey string `json:"project_key"`
	}
	return &simpleTool{
		name: "products_link", description: "Link a project to a product, auto-creating the project if needed", permission: PermissionWrite,
		schema: schema(`{"product_key":{"type":"string"},"project_key":{"type":"string"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			product, project, err := svc.Products.Link(ctx, a.ProductKey, a.ProjectKey)
			if err != nil {
				return nil, err
			}
			return map[string]any{"product": product, "project": project}, nil
		},
	}
}

func fetchInboxProductTool(svc *Services) Tool {
	type args struct {
		ProductKey string `json:"product_key"`
		AgentName  string `json:"agent_name"`
		Limit      int    `json:"limit"`
		SinceTS    int64  `json:"since_ts"`
		Importance string `json:"importance"`
		UnreadOnly bool   `json:"unread_only"`
	}
	return &simpleTool{
		name: "fetch_inbox_product", description: "Union fetch_inbox across every project linked to a product", permission: PermissionRead,
		schema: schema(`{"product_key":{"type":"string"},"agent_name":{"type":"string"},"limit":{"type":"integer"},"since_ts":{"type":"integer"},"importance":{"type":"string"},"unread_only":{"type":"boolean"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			results, err := svc.Products.FetchInboxProduct(ctx, a.ProductKey, a.AgentName, store.InboxFilter{
				SinceTS: a.SinceTS, Importance: a.Importance, UnreadOnly: a.UnreadOnly, Limit: a.Limit,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"results": results}, nil
		},
	}
}

func searchMessagesProductTool(svc *Services) Tool {
	type args struct {
		ProductKey  string   `json:"product_key"`
		Query       string   `json:"query"`
		ThreadID    string   `json:"thread_id"`
		Importances []string `json:"importance"`
		DateStart   int64    `json:"date_start"`
		DateEnd     int64    `json:"date_end"`
		Limit       int      `json:"limit"`
	}
	return &simpleTool{
		name: "search_messages_product", description: "Union search_messages across every project linked to a product", permission: PermissionRead,
		schema: schema(`{"product_key":{"type":"string"},"query":{"type":"string"},"thread_id":{"type":"string"},"importance":{"type":"array","items":{"type":"string"}},"date_start":{"type":"integer"},"date_end":{"type":"integer"},"limit":{"type":"integer"}}`),
		fn: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var a args
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, store.NewError(store.ErrInvalidArgument, "invalid arguments: %v", err)
			}
			req := search.Request{Query: a.Query, ThreadID: a.ThreadID, Importances: a.Importances, DateStart: a.DateStart, DateEnd: a.DateEnd, Limit: a.Limit}
			results, err := svc.Products.SearchMessagesProduct(ctx, a.ProductKey, req)
			if err != nil {
				return nil, err
			}
			return map[string]any{"results": results}, nil
		},
	}
}
