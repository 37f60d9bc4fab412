// Package contacts evaluates and manages the per-agent contact policy
// that gates inbound message delivery (spec.md §3, §4.6), grounded on the
// teacher's policy.Engine Context/Decision/Evaluate shape applied to
// sender-vs-recipient contact state instead of tool-tier authorization.
package contacts

import (
	"context"

	"github.com/agentmail/agentmaild/internal/store"
)

// Decision is the result of evaluating whether sender may deliver to
// recipient, mirroring the teacher's policy.Decision shape.
type Decision struct {
	Allow  bool
	Reason string
}

// Manager evaluates contact policy and manages the request/accept/block
// lifecycle (spec.md §4.6).
type Manager struct {
	store *store.Store
}

// NewManager constructs a contact policy manager bound to a store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Evaluate decides whether senderID may deliver a message to recipientID,
// consulting recipientID's contact_policy and any existing Contact row
// between the two (spec.md §4.6).
func (m *Manager) Evaluate(ctx context.Context, projectID, senderID, recipientID int64) (Decision, error) {
	if senderID == recipientID {
		return Decision{Allow: true, Reason: "self_delivery_always_allowed"}, nil
	}

	var decision Decision
	err := m.store.WithRead(ctx, func(tx *store.Tx) error {
		recipient, err := tx.AgentByID(recipientID)
		if err != nil {
			return err
		}

		switch recipient.ContactPolicy {
		case store.PolicyOpen:
			decision = Decision{Allow: true, Reason: "recipient_policy_open"}
			return nil
		case store.PolicyBlockAll:
			decision = Decision{Allow: false, Reason: "recipient_policy_block_all"}
			return nil
		}

		contact, cerr := tx.ContactBetween(projectID, senderID, recipientID)
		switch {
		case cerr != nil && isNotFound(cerr):
			if recipient.ContactPolicy == store.PolicyAuto {
				decision = Decision{Allow: true, Reason: "recipient_policy_auto_first_contact"}
				return nil
			}
			decision = Decision{Allow: false, Reason: "no_contact_relationship"}
			return nil
		case cerr != nil:
			return cerr
		}

		switch contact.State {
		case store.ContactAccepted:
			decision = Decision{Allow: true, Reason: "contact_accepted"}
		case store.ContactBlocked:
			decision = Decision{Allow: false, Reason: "contact_blocked"}
		default: // requested, not yet accepted
			decision = Decision{Allow: false, Reason: "contact_request_pending"}
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// Request creates or returns the existing contact request between two
// agents. A no-op for any existing non-blocked relationship; a blocked
// pair resets to requested (spec.md §3, §4.6).
func (m *Manager) Request(ctx context.Context, projectID, requesterID, targetID int64, reason string) (*store.Contact, error) {
	var contact *store.Contact
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		c, err := tx.RequestContact(projectID, requesterID, targetID, reason)
		if err != nil {
			return err
		}
		contact = c
		return tx.TouchAgent(requesterID, false)
	})
	return contact, err
}

// Respond accepts or blocks a pending contact request. Either party may
// respond; accepting and blocking are both terminal unless re-requested.
func (m *Manager) Respond(ctx context.Context, projectID, agentAID, agentBID int64, accept bool) (*store.Contact, error) {
	state := store.ContactAccepted
	if !accept {
		state = store.ContactBlocked
	}
	var contact *store.Contact
	err := m.store.WithWrite(ctx, func(tx *store.Tx) error {
		if err := tx.SetContactState(projectID, agentAID, agentBID, state); err != nil {
			return err
		}
		c, err := tx.ContactBetween(projectID, agentAID, agentBID)
		if err != nil {
			return err
		}
		contact = c
		return nil
	})
	return contact, err
}

// SetPolicy updates an agent's default contact policy.
func (m *Manager) SetPolicy(ctx context.Context, agentID int64, policy store.ContactPolicy) error {
	return m.store.WithWrite(ctx, func(tx *store.Tx) error {
		return tx.SetContactPolicy(agentID, policy)
	})
}

// List returns every contact relationship touching an agent.
func (m *Manager) List(ctx context.Context, projectID, agentID int64) ([]store.Contact, error) {
	var contacts []store.Contact
	err := m.store.WithRead(ctx, func(tx *store.Tx) error {
		c, err := tx.ContactsOfAgent(projectID, agentID)
		contacts = c
		return err
	})
	return contacts, err
}

func isNotFound(err error) bool {
	se, ok := err.(*store.Error)
	return ok && se.Kind == store.ErrNotFound
}
