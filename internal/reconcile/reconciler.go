// Package reconcile links contact fragments into clusters.
//
// A Reconciler receives (email, phone) fragments, finds every stored contact
// sharing either value, merges the clusters those contacts belong to so that
// the oldest primary survives, records genuinely new facts as secondaries and
// returns the consolidated view of the resulting cluster.
//
// Every Identify call is one store transaction. Calls touching the same email
// or phone are additionally serialized in-process with per-key locks, so
// disjoint fragments never wait on each other.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/idrecon/internal/contact"
)

// Reconciler implements identify, cluster lookup and raw contact maintenance
// on top of a contact.Store.
type Reconciler struct {
	store    contact.Store
	locks    *keyLocker
	recorder Recorder
	logger   zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a Reconciler over store.
func New(store contact.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		locks:    newKeyLocker(),
		recorder: nopRecorder{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// mergeStats counts the mutations made while resolving one cluster.
type mergeStats struct {
	demoted  int
	relinked int
	promoted bool
	inserted bool
	created  bool
}

func (m mergeStats) outcome() Outcome {
	switch {
	case m.created:
		return OutcomeCreated
	case m.demoted > 0:
		return OutcomeMerged
	case m.inserted:
		return OutcomeLinked
	default:
		return OutcomeUnchanged
	}
}

// Identify reconciles a fragment against the store and returns the
// consolidated view of the cluster it belongs to.
//
// Returns an INVALID_REQUEST error, without touching the store, when neither
// email nor phone is present after normalization.
func (r *Reconciler) Identify(ctx context.Context, f contact.Fragment) (contact.Consolidated, error) {
	f = f.Normalize()
	if f.Empty() {
		err := contact.NewInvalidRequestError("either email or phoneNumber must be provided")
		r.recorder.ObserveError("identify", err.Code)
		return contact.Consolidated{}, err
	}

	unlock := r.locks.Lock(lockKeys(f)...)
	defer unlock()

	start := time.Now()

	var (
		view  contact.Consolidated
		stats mergeStats
	)
	err := r.store.InTx(ctx, func(tx contact.Tx) error {
		// The store may re-run fn after a serialization conflict.
		stats = mergeStats{}
		var err error
		view, err = r.identifyTx(ctx, tx, f, &stats)
		return err
	})
	if err != nil {
		return contact.Consolidated{}, r.fail("identify", err)
	}

	outcome := stats.outcome()
	r.recorder.ObserveIdentify(outcome, time.Since(start))
	if stats.demoted > 0 || stats.relinked > 0 || stats.promoted {
		r.recorder.ObserveMerge(stats.demoted, stats.relinked)
		r.logger.Info().
			Int64("primary_id", view.PrimaryContactID).
			Int("demoted", stats.demoted).
			Int("relinked", stats.relinked).
			Bool("promoted", stats.promoted).
			Msg("clusters merged")
	}
	r.logger.Debug().
		Str("outcome", string(outcome)).
		Int64("primary_id", view.PrimaryContactID).
		Int("secondaries", len(view.SecondaryContactIDs)).
		Msg("identify")

	return view, nil
}

func (r *Reconciler) identifyTx(ctx context.Context, tx contact.Tx, f contact.Fragment, stats *mergeStats) (contact.Consolidated, error) {
	matches, err := tx.FindByEmailOrPhone(ctx, f.Email, f.Phone)
	if err != nil {
		return contact.Consolidated{}, err
	}

	if len(matches) == 0 {
		id, err := tx.Insert(ctx, contact.NewContact{
			Email:      f.Email,
			Phone:      f.Phone,
			Precedence: contact.Primary,
		})
		if err != nil {
			return contact.Consolidated{}, err
		}
		stats.created = true
		return singleton(id, f), nil
	}

	survivor, err := r.resolve(ctx, tx, matches, stats)
	if err != nil {
		return contact.Consolidated{}, err
	}

	if isNewFact(f, matches) {
		if _, err := tx.Insert(ctx, contact.NewContact{
			Email:      f.Email,
			Phone:      f.Phone,
			LinkedID:   contact.ID(survivor),
			Precedence: contact.Secondary,
		}); err != nil {
			return contact.Consolidated{}, err
		}
		stats.inserted = true
	}

	root, ok, err := tx.FindByID(ctx, survivor)
	if err != nil {
		return contact.Consolidated{}, err
	}
	if !ok {
		return contact.Consolidated{}, fmt.Errorf("surviving primary %d vanished", survivor)
	}
	return project(ctx, tx, root)
}

// rootInfo is the result of following a contact's linkage to its primary.
type rootInfo struct {
	root   *contact.Contact  // live primary, nil when the chain is broken
	strays []contact.Contact // non-primary contacts passed on the way
	deadID *int64            // linked id that no longer resolves to a live row
}

// resolve merges every cluster touched by matches into one and returns the
// surviving primary id.
//
// Each match is followed to its live primary. The oldest of those primaries
// survives and the rest are demoted, their secondaries moved under the
// survivor in bulk. Matches whose primary is missing or soft-deleted are
// re-linked to the survivor; when no live primary exists at all, the oldest
// of them is promoted. A single-cluster match set performs no writes.
func (r *Reconciler) resolve(ctx context.Context, tx contact.Tx, matches []contact.Contact, stats *mergeStats) (int64, error) {
	cache := make(map[int64]contact.Contact, len(matches))
	for _, m := range matches {
		cache[m.ID] = m
	}

	var (
		roots   []contact.Contact
		orphans []contact.Contact
		strays  []contact.Contact
		deadIDs []int64
		seen    = make(map[int64]bool)
	)
	addUnique := func(list []contact.Contact, c contact.Contact) []contact.Contact {
		if seen[c.ID] {
			return list
		}
		seen[c.ID] = true
		return append(list, c)
	}

	for _, m := range matches {
		info, err := followRoot(ctx, tx, m, cache)
		if err != nil {
			return 0, err
		}
		if info.root != nil {
			roots = addUnique(roots, *info.root)
		} else {
			orphans = addUnique(orphans, m)
		}
		for _, s := range info.strays {
			strays = addUnique(strays, s)
		}
		if info.deadID != nil {
			deadIDs = appendID(deadIDs, *info.deadID)
		}
	}

	var survivor contact.Contact
	var losers []contact.Contact
	switch {
	case len(roots) > 0:
		contact.SortByCreation(roots)
		survivor, losers = roots[0], roots[1:]
	default:
		candidates := append(append([]contact.Contact{}, orphans...), strays...)
		contact.SortByCreation(candidates)
		survivor = candidates[0]
	}

	if !survivor.IsPrimary() || survivor.LinkedID != nil {
		if err := tx.UpdateLinkage(ctx, survivor.ID, nil, contact.Primary); err != nil {
			return 0, err
		}
		stats.promoted = true
	}

	for _, loser := range losers {
		if err := tx.UpdateLinkage(ctx, loser.ID, contact.ID(survivor.ID), contact.Secondary); err != nil {
			return 0, fmt.Errorf("demote %d: %w", loser.ID, err)
		}
		stats.demoted++

		n, err := tx.RelinkSecondariesFrom(ctx, loser.ID, survivor.ID)
		if err != nil {
			return 0, fmt.Errorf("relink secondaries of %d: %w", loser.ID, err)
		}
		stats.relinked += int(n)
	}

	// Orphans and strays are pointed straight at the survivor; anything still
	// hanging off them or off a dead primary follows in bulk.
	repaired := append(append([]contact.Contact{}, orphans...), strays...)
	for _, c := range repaired {
		if c.ID == survivor.ID {
			continue
		}
		if err := tx.UpdateLinkage(ctx, c.ID, contact.ID(survivor.ID), contact.Secondary); err != nil {
			return 0, fmt.Errorf("relink %d: %w", c.ID, err)
		}
		stats.relinked++
	}
	for _, c := range repaired {
		if c.ID == survivor.ID {
			continue
		}
		n, err := tx.RelinkSecondariesFrom(ctx, c.ID, survivor.ID)
		if err != nil {
			return 0, fmt.Errorf("relink secondaries of %d: %w", c.ID, err)
		}
		stats.relinked += int(n)
	}
	for _, id := range deadIDs {
		n, err := tx.RelinkSecondariesFrom(ctx, id, survivor.ID)
		if err != nil {
			return 0, fmt.Errorf("relink secondaries of %d: %w", id, err)
		}
		stats.relinked += int(n)
	}

	return survivor.ID, nil
}

// followRoot walks linked ids from c until it reaches a primary.
// Cycles and missing rows end the walk with a nil root.
func followRoot(ctx context.Context, tx contact.Tx, c contact.Contact, cache map[int64]contact.Contact) (rootInfo, error) {
	var info rootInfo
	visited := map[int64]bool{c.ID: true}
	cur := c
	for {
		if cur.IsPrimary() || cur.LinkedID == nil {
			root := cur
			info.root = &root
			return info, nil
		}

		next := *cur.LinkedID
		if visited[next] {
			return info, nil
		}
		visited[next] = true

		parent, ok := cache[next]
		if !ok {
			var err error
			parent, ok, err = tx.FindByID(ctx, next)
			if err != nil {
				return info, err
			}
			if !ok {
				info.deadID = contact.ID(next)
				return info, nil
			}
			cache[next] = parent
		}

		if !parent.IsPrimary() && parent.LinkedID != nil {
			info.strays = append(info.strays, parent)
		}
		cur = parent
	}
}

// isNewFact applies the insertion rule against the match set.
//
// With both fields present a row is added unless the exact pair already
// exists on one contact or both values are individually known. With a single
// field a row is added only if no match carries that value.
func isNewFact(f contact.Fragment, matches []contact.Contact) bool {
	var emailKnown, phoneKnown, pairKnown bool
	for _, m := range matches {
		e := f.Email != nil && m.HasEmail(*f.Email)
		p := f.Phone != nil && m.HasPhone(*f.Phone)
		emailKnown = emailKnown || e
		phoneKnown = phoneKnown || p
		pairKnown = pairKnown || (e && p)
	}

	switch {
	case f.Email != nil && f.Phone != nil:
		return !pairKnown && !(emailKnown && phoneKnown)
	case f.Email != nil:
		return !emailKnown
	default:
		return !phoneKnown
	}
}

// Cluster returns the consolidated view of the cluster containing id.
func (r *Reconciler) Cluster(ctx context.Context, id int64) (contact.Consolidated, error) {
	var view contact.Consolidated
	err := r.store.InTx(ctx, func(tx contact.Tx) error {
		c, ok, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return contact.NewNotFoundError(id)
		}

		root := c
		if rootID := c.RootID(); rootID != c.ID {
			p, ok, err := tx.FindByID(ctx, rootID)
			if err != nil {
				return err
			}
			// A soft-deleted primary leaves c as the best available root
			// until the next Identify repairs the cluster.
			if ok {
				root = p
			}
		}

		view, err = project(ctx, tx, root)
		return err
	})
	if err != nil {
		return contact.Consolidated{}, r.fail("cluster", err)
	}
	return view, nil
}

// AddContact inserts a contact as given, without reconciliation.
// Precedence defaults to primary. A linked id must name a live contact.
func (r *Reconciler) AddContact(ctx context.Context, nc contact.NewContact) (int64, error) {
	normalized := contact.Fragment{Email: nc.Email, Phone: nc.Phone}.Normalize()
	nc.Email, nc.Phone = normalized.Email, normalized.Phone

	if nc.Precedence == "" {
		nc.Precedence = contact.Primary
	}
	if !nc.Precedence.Valid() {
		err := contact.NewInvalidRequestError(fmt.Sprintf("linkPrecedence must be %q or %q", contact.Primary, contact.Secondary))
		r.recorder.ObserveError("add", err.Code)
		return 0, err
	}

	var id int64
	err := r.store.InTx(ctx, func(tx contact.Tx) error {
		if nc.LinkedID != nil {
			_, ok, err := tx.FindByID(ctx, *nc.LinkedID)
			if err != nil {
				return err
			}
			if !ok {
				return contact.NewInvalidRequestError(fmt.Sprintf("linkedId %d does not reference a live contact", *nc.LinkedID))
			}
		}

		var err error
		id, err = tx.Insert(ctx, nc)
		return err
	})
	if err != nil {
		return 0, r.fail("add", err)
	}

	r.logger.Debug().Int64("contact_id", id).Str("precedence", string(nc.Precedence)).Msg("contact added")
	return id, nil
}

// DeleteContact soft-deletes a live contact.
func (r *Reconciler) DeleteContact(ctx context.Context, id int64) error {
	err := r.store.InTx(ctx, func(tx contact.Tx) error {
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return r.fail("delete", err)
	}

	r.logger.Debug().Int64("contact_id", id).Msg("contact deleted")
	return nil
}

// fail classifies err, records it and returns the coded error.
func (r *Reconciler) fail(op string, err error) error {
	err = contact.NewStoreUnavailableError(op, err)
	code := contact.CodeOf(err)
	r.recorder.ObserveError(op, code)
	if code == contact.ErrCodeStoreUnavailable {
		r.logger.Error().Err(err).Str("op", op).Msg("store failure")
	}
	return err
}

// project builds the consolidated view of root and its live secondaries.
func project(ctx context.Context, tx contact.Tx, root contact.Contact) (contact.Consolidated, error) {
	secondaries, err := tx.FindSecondariesOf(ctx, root.ID)
	if err != nil {
		return contact.Consolidated{}, err
	}
	contact.SortByCreation(secondaries)

	view := contact.Consolidated{
		PrimaryContactID:    root.ID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}
	seenEmail := make(map[string]bool)
	seenPhone := make(map[string]bool)
	add := func(c contact.Contact) {
		if c.Email != nil && !seenEmail[*c.Email] {
			seenEmail[*c.Email] = true
			view.Emails = append(view.Emails, *c.Email)
		}
		if c.Phone != nil && !seenPhone[*c.Phone] {
			seenPhone[*c.Phone] = true
			view.PhoneNumbers = append(view.PhoneNumbers, *c.Phone)
		}
	}

	add(root)
	for _, s := range secondaries {
		if s.ID == root.ID {
			continue
		}
		add(s)
		view.SecondaryContactIDs = append(view.SecondaryContactIDs, s.ID)
	}
	return view, nil
}

func singleton(id int64, f contact.Fragment) contact.Consolidated {
	view := contact.Consolidated{
		PrimaryContactID:    id,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}
	if f.Email != nil {
		view.Emails = append(view.Emails, *f.Email)
	}
	if f.Phone != nil {
		view.PhoneNumbers = append(view.PhoneNumbers, *f.Phone)
	}
	return view
}

func lockKeys(f contact.Fragment) []string {
	keys := make([]string, 0, 2)
	if f.Email != nil {
		keys = append(keys, "email:"+*f.Email)
	}
	if f.Phone != nil {
		keys = append(keys, "phone:"+*f.Phone)
	}
	return keys
}

func appendID(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
