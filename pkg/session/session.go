// Package session turns spoken commands into vault operations.
//
// A Session glues the intent parser, the site resolver and the vault
// together and enforces the confirmation gate between them: no vault
// call happens on a resolution the policy did not either auto-accept or
// have explicitly confirmed.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxvault/voxvault/pkg/audit"
	"github.com/voxvault/voxvault/pkg/resolve"
	"github.com/voxvault/voxvault/pkg/vault"
)

var (
	// ErrNoMatch is returned when the resolver produced no actionable site.
	ErrNoMatch = errors.New("session: no site matched")

	// ErrNotConfirmed is returned when the user declined a
	// confirmation-band match, or when no confirmer is available.
	ErrNotConfirmed = errors.New("session: action not confirmed")

	// ErrNoSecret is returned when a save transcript carries no password.
	ErrNoSecret = errors.New("session: transcript contains no password")

	// ErrUnknownIntent is returned when the transcript matches no
	// recognized command shape.
	ErrUnknownIntent = errors.New("session: could not understand command")
)

// SiteResolver resolves a spoken site phrase against the catalog.
type SiteResolver interface {
	Resolve(ctx context.Context, transcript string) resolve.Result
}

// Store is the slice of the vault surface a session drives.
type Store interface {
	Save(site, password, username, memo string) (*vault.Entry, bool, error)
	Retrieve(site string) (*vault.Entry, error)
	Delete(site string) (bool, error)
	List() ([]vault.Entry, error)
}

// Confirmer obtains the explicit yes/no for a resolution that landed in
// the confirmation band.
type Confirmer interface {
	Confirm(site string, confidence float64) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(site string, confidence float64) bool

// Confirm calls f.
func (f ConfirmerFunc) Confirm(site string, confidence float64) bool {
	return f(site, confidence)
}

// Session runs spoken commands against a vault.
type Session struct {
	resolver SiteResolver
	store    Store
	confirm  Confirmer
	audit    *audit.Logger
}

// New returns a Session. confirm may be nil, which rejects every
// confirmation-band match. aud may be nil to disable denial records.
func New(resolver SiteResolver, store Store, confirm Confirmer, aud *audit.Logger) *Session {
	return &Session{resolver: resolver, store: store, confirm: confirm, audit: aud}
}

// Outcome reports what a handled command did.
type Outcome struct {
	Action     Action
	Resolution resolve.Result
	Entry      *vault.Entry  // save and retrieve
	Entries    []vault.Entry // list
	Created    bool          // save: entry was new
	Deleted    bool          // delete: entry existed
}

// HandleTranscript parses a transcript and performs the command it asks
// for. Save transcripts must carry the password inline; a save without
// one fails with ErrNoSecret before any resolution, so the caller can
// collect the password and call Save directly.
func (s *Session) HandleTranscript(ctx context.Context, text string) (*Outcome, error) {
	intent := ParseIntent(text)
	switch intent.Action {
	case ActionSave:
		if intent.Secret == "" {
			return nil, ErrNoSecret
		}
		return s.Save(ctx, intent.SitePhrase, intent.Secret, "", "")
	case ActionRetrieve:
		return s.Retrieve(ctx, intent.SitePhrase)
	case ActionDelete:
		return s.Delete(ctx, intent.SitePhrase)
	case ActionList:
		return s.List()
	default:
		return nil, ErrUnknownIntent
	}
}

// Save resolves a site phrase and stores a credential under the
// canonical site name.
func (s *Session) Save(ctx context.Context, sitePhrase, password, username, memo string) (*Outcome, error) {
	res, err := s.gate(ctx, ActionSave, sitePhrase)
	if err != nil {
		return nil, err
	}
	entry, created, err := s.store.Save(res.Site, password, username, memo)
	if err != nil {
		return nil, err
	}
	return &Outcome{Action: ActionSave, Resolution: res, Entry: entry, Created: created}, nil
}

// Retrieve resolves a site phrase and fetches the credential stored
// under the canonical site name.
func (s *Session) Retrieve(ctx context.Context, sitePhrase string) (*Outcome, error) {
	res, err := s.gate(ctx, ActionRetrieve, sitePhrase)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.Retrieve(res.Site)
	if err != nil {
		return nil, err
	}
	return &Outcome{Action: ActionRetrieve, Resolution: res, Entry: entry}, nil
}

// Delete resolves a site phrase and removes the credential stored under
// the canonical site name. Deletion is gated exactly like a save.
func (s *Session) Delete(ctx context.Context, sitePhrase string) (*Outcome, error) {
	res, err := s.gate(ctx, ActionDelete, sitePhrase)
	if err != nil {
		return nil, err
	}
	deleted, err := s.store.Delete(res.Site)
	if err != nil {
		return nil, err
	}
	return &Outcome{Action: ActionDelete, Resolution: res, Deleted: deleted}, nil
}

// List returns every stored entry. Listing needs no resolution and is
// never gated: it discloses site names, not secrets.
func (s *Session) List() (*Outcome, error) {
	entries, err := s.store.List()
	if err != nil {
		return nil, err
	}
	return &Outcome{Action: ActionList, Entries: entries}, nil
}

// gate resolves a site phrase and enforces the confirmation policy. On
// any error path no vault call has been made.
func (s *Session) gate(ctx context.Context, action Action, sitePhrase string) (resolve.Result, error) {
	res := s.resolver.Resolve(ctx, sitePhrase)
	if !res.Matched() {
		s.logDenied(action, res.Normalized, "no match")
		return res, fmt.Errorf("%w for %q", ErrNoMatch, sitePhrase)
	}
	if res.NeedsConfirmation {
		if s.confirm == nil || !s.confirm.Confirm(res.Site, res.Confidence) {
			s.logDenied(action, res.Site, "not confirmed")
			return res, fmt.Errorf("%w: %s", ErrNotConfirmed, res.Site)
		}
	}
	return res, nil
}

func (s *Session) logDenied(action Action, site, reason string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.LogDenied(audit.OpSessionDenied, site, fmt.Sprintf("%s: %s", action, reason))
}
