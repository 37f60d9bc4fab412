// Package messaging implements send/reply/fetch_inbox/mark_read/
// acknowledge/summarize_thread (spec.md §4.3). search is delegated to
// internal/search (spec.md §4.8).
package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentmail/agentmaild/internal/contacts"
	"github.com/agentmail/agentmaild/internal/store"
)

// Service wraps the store with the business rules for sending and
// reading messages.
type Service struct {
	store    *store.Store
	contacts *contacts.Manager
}

func NewService(s *store.Store, c *contacts.Manager) *Service {
	return &Service{store: s, contacts: c}
}

// Recipient is one addressee supplied to Send.
type Recipient struct {
	AgentID int64
	Kind    store.RecipientKind
}

// SendRequest carries everything needed to commit a new message.
type SendRequest struct {
	ProjectID       int64
	SenderID        int64
	Recipients      []Recipient
	Subject         string
	BodyMD          string
	ThreadID        string // empty => fresh opaque token
	ParentMessageID int64  // 0 => none
	Importance      store.Importance
	AckRequired     bool
}

// Delivery is one accepted recipient's outcome.
type Delivery struct {
	AgentID   int64
	Kind      store.RecipientKind
	MessageID int64
}

// Rejection is one recipient dropped by contact policy.
type Rejection struct {
	AgentID int64
	Reason  string
}

// SendResult is returned by Send and Reply.
type SendResult struct {
	MessageID  int64
	ThreadID   string
	Deliveries []Delivery
	Rejected   []Rejection
}

// Send verifies sender/recipients, filters recipients by contact policy,
// and commits the message plus its recipients and FTS row in one
// transaction (spec.md §4.1, §4.3).
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.Subject == "" && req.BodyMD == "" {
		return nil, store.NewError(store.ErrInvalidArgument, "subject or body_md is required")
	}
	if len(req.Recipients) == 0 {
		return nil, store.NewError(store.ErrInvalidArgument, "at least one recipient is required")
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	result := &SendResult{ThreadID: threadID}

	err := s.store.WithWrite(ctx, func(tx *store.Tx) error {
		sender, err := tx.AgentByID(req.SenderID)
		if err != nil {
			return err
		}
		if sender.ProjectID != req.ProjectID {
			return store.NewError(store.ErrInvalidArgument, "sender does not belong to project")
		}

		var accepted []Recipient
		for _, r := range req.Recipients {
			recipient, err := tx.AgentByID(r.AgentID)
			if err != nil {
				return err
			}
			if recipient.ProjectID != req.ProjectID {
				return store.NewError(store.ErrInvalidArgument, fmt.Sprintf("recipient %d does not belong to project", r.AgentID))
			}
		}

		for _, r := range req.Recipients {
			decision, err := s.contacts.Evaluate(ctx, req.ProjectID, req.SenderID, r.AgentID)
			if err != nil {
				return err
			}
			if decision.Allow {
				accepted = append(accepted, r)
			} else {
				result.Rejected = append(result.Rejected, Rejection{AgentID: r.AgentID, Reason: decision.Reason})
			}
		}
		if len(accepted) == 0 {
			return store.NewError(store.ErrContactPolicy, "no recipients remain after contact policy filtering")
		}

		var parent sql.NullInt64
		if req.ParentMessageID != 0 {
			parent = sql.NullInt64{Int64: req.ParentMessageID, Valid: true}
		}

		messageID, err := tx.InsertMessage(&store.Message{
			ProjectID: req.ProjectID, FromAgentID: req.SenderID, Subject: req.Subject,
			BodyMD: req.BodyMD, Importance: req.Importance, ThreadID: threadID,
			ParentMessageID: parent, AckRequired: req.AckRequired,
		})
		if err != nil {
			return err
		}

		var recipientNames []string
		for _, r := range accepted {
			if err := tx.InsertRecipient(messageID, r.AgentID, r.Kind); err != nil {
				return err
			}
			recipientAgent, err := tx.AgentByID(r.AgentID)
			if err != nil {
				return err
			}
			recipientNames = append(recipientNames, recipientAgent.Name)
			result.Deliveries = append(result.Deliveries, Delivery{AgentID: r.AgentID, Kind: r.Kind, MessageID: messageID})
		}

		if err := tx.IndexMessage(messageID, req.Subject, req.BodyMD, sender.Name, strings.Join(recipientNames, " ")); err != nil {
			return err
		}

		result.MessageID = messageID
		return tx.TouchAgent(req.SenderID, true)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reply sends a message that inherits its parent's thread and subject,
// prepending "Re: " iff not already present (spec.md §4.3, §3).
func (s *Service) Reply(ctx context.Context, projectID, senderID, parentMessageID int64, recipients []Recipient, bodyMD string, importance store.Importance, ackRequired bool) (*SendResult, error) {
	var threadID, subject string
	err := s.store.WithRead(ctx, func(tx *store.Tx) error {
		parent, err := tx.MessageByID(parentMessageID)
		if err != nil {
			return err
		}
		if parent.ProjectID != projectID {
			return store.NewError(store.ErrInvalidArgument, "parent message does not belong to project")
		}
		threadID = parent.ThreadID
		subject = parent.Subject
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}

	return s.Send(ctx, SendRequest{
		ProjectID: projectID, SenderID: senderID, Recipients: recipients,
		Subject: subject, BodyMD: bodyMD, ThreadID: threadID, ParentMessageID: parentMessageID,
		Importance: importance, AckRequired: ackRequired,
	})
}

// InboxResult is one row in fetch_inbox's response, redacting bcc
// metadata that does not belong to the requesting agent (spec.md §4.3).
type InboxResult struct {
	store.InboxRow
	To  []int64
	Cc  []int64
	Bcc []int64 // populated only when agent itself was the bcc recipient
}

// FetchInbox returns the requesting agent's messages, newest first.
// limit must be positive (spec.md §4.3: "limit=0 fails with
// ErrInvalidArgument").
func (s *Service) FetchInbox(ctx context.Context, projectID, agentID int64, filter store.InboxFilter) ([]InboxResult, error) {
	if filter.Limit <= 0 {
		return nil, store.NewError(store.ErrInvalidArgument, "limit must be a positive integer")
	}

	var out []InboxResult
	err := s.store.WithRead(ctx, func(tx *store.Tx) error {
		rows, err := tx.Inbox(projectID, agentID, filter)
		if err != nil {
			return err
		}
		for _, row := range rows {
			recipients, err := tx.RecipientsOf(row.ID)
			if err != nil {
				return err
			}
			result := InboxResult{InboxRow: row}
			for _, rcpt := range recipients {
				switch rcpt.Kind {
				case store.RecipientTo:
					result.To = append(result.To, rcpt.AgentID)
				case store.RecipientCC:
					result.Cc = append(result.Cc, rcpt.AgentID)
				case store.RecipientBCC:
					if rcpt.AgentID == agentID {
						result.Bcc = append(result.Bcc, rcpt.AgentID)
					}
				}
			}
			out = append(out, result)
		}
		return nil
	})
	return out, err
}

// MarkRead is idempotent (spec.md §4.3).
func (s *Service) MarkRead(ctx context.Context, messageID, agentID int64) error {
	return s.store.WithWrite(ctx, func(tx *store.Tx) error {
		if _, err := tx.MessageByID(messageID); err != nil {
			return err
		}
		if err := tx.MarkRead(messageID, agentID); err != nil {
			return err
		}
		return tx.TouchAgent(agentID, false)
	})
}

// Acknowledge is idempotent; acknowledging every message is always
// permitted regardless of ack_required, documented as the implementation
// choice allowed by spec.md §4.3.
func (s *Service) Acknowledge(ctx context.Context, messageID, agentID int64) error {
	return s.store.WithWrite(ctx, func(tx *store.Tx) error {
		if _, err := tx.MessageByID(messageID); err != nil {
			return err
		}
		if err := tx.Acknowledge(messageID, agentID); err != nil {
			return err
		}
		return tx.TouchAgent(agentID, false)
	})
}

// SummarizeThread returns every message in a thread, oldest first.
func (s *Service) SummarizeThread(ctx context.Context, projectID int64, threadID string) ([]store.Message, error) {
	var messages []store.Message
	err := s.store.WithRead(ctx, func(tx *store.Tx) error {
		var err error
		messages, err = tx.ThreadMessages(projectID, threadID)
		return err
	})
	return messages, err
}

