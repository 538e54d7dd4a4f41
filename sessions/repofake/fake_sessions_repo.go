package sessionsrepofake

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/sessions"
)

var _ sessions.Repo = (*FakeSessionsRepo)(nil)

type storedSession struct {
	id        string
	accountID string
	token     sessions.TokenInfo
	order     int
}

type FakeSessionsRepo struct {
	persons  map[string]string // unique id to person id
	accounts map[string]*sessions.Account
	byLocal  map[string]string // local account id to account id
	groups   map[string][]string
	sessions map[string]*storedSession
	inserted int
	lock     sync.RWMutex

	// ListErr, when set, is returned by ListActiveTokenSessions.
	ListErr error
}

func NewFakeSessionsRepo() *FakeSessionsRepo {
	return &FakeSessionsRepo{
		persons:  make(map[string]string),
		accounts: make(map[string]*sessions.Account),
		byLocal:  make(map[string]string),
		groups:   make(map[string][]string),
		sessions: make(map[string]*storedSession),
	}
}

func (r *FakeSessionsRepo) EnsureUserAndAccount(_ context.Context, identity sessions.Identity) (*sessions.Account, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	personID, ok := r.persons[identity.UniqueID]
	if !ok {
		personID = uuid.NewString()
		r.persons[identity.UniqueID] = personID
	}
	accountID, ok := r.byLocal[identity.LocalAccountID]
	if !ok {
		accountID = uuid.NewString()
		r.byLocal[identity.LocalAccountID] = accountID
	}
	account := &sessions.Account{
		ID:            accountID,
		URI:           sessions.AccountURI(sessions.DefaultResourceBaseURI, accountID),
		PersonID:      personID,
		HomeAccountID: identity.HomeAccountID,
		Name:          identity.Name,
		Username:      identity.Username,
	}
	r.accounts[accountID] = account
	cp := *account
	return &cp, nil
}

// SetGroups seeds group membership for an account.
func (r *FakeSessionsRepo) SetGroups(accountID string, groups ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.groups[accountID] = groups
}

func (r *FakeSessionsRepo) UserGroups(_ context.Context, accountID string) ([]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	groups := slices.Clone(r.groups[accountID])
	sort.Strings(groups)
	if groups == nil {
		groups = []string{}
	}
	return groups, nil
}

func (r *FakeSessionsRepo) InsertSession(_ context.Context, accountID, sessionURI string, info sessions.TokenInfo) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.inserted++
	s := &storedSession{id: uuid.NewString(), accountID: accountID, token: info, order: r.inserted}
	r.sessions[sessionURI] = s
	return s.id, nil
}

func (r *FakeSessionsRepo) PersistTokenInfo(_ context.Context, sessionURI string, info sessions.TokenInfo) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, ok := r.sessions[sessionURI]
	if !ok {
		return lserrors.Wrapf(lserrors.ErrSessionNotFound, "[FakeSessionsRepo PersistTokenInfo] %s", sessionURI)
	}
	s.token = info
	return nil
}

func (r *FakeSessionsRepo) RemoveSession(_ context.Context, sessionURI string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.sessions, sessionURI)
	return nil
}

func (r *FakeSessionsRepo) ListActiveTokenSessions(_ context.Context) ([]sessions.ActiveSession, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}

	type ordered struct {
		active sessions.ActiveSession
		order  int
	}
	list := make([]ordered, 0, len(r.sessions))
	for uri, s := range r.sessions {
		if s.token.HomeAccountID == "" {
			continue
		}
		list = append(list, ordered{sessions.ActiveSession{SessionURI: uri, Token: s.token}, s.order})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })

	active := make([]sessions.ActiveSession, 0, len(list))
	for _, o := range list {
		active = append(active, o.active)
	}
	return active, nil
}

func (r *FakeSessionsRepo) SelectAccountBySession(_ context.Context, sessionURI string) (*sessions.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.sessions[sessionURI]
	if !ok {
		return nil, nil
	}
	a, ok := r.accounts[s.accountID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *FakeSessionsRepo) SelectCurrentSession(_ context.Context, sessionURI string) (*sessions.CurrentSession, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.sessions[sessionURI]
	if !ok {
		return nil, nil
	}
	cs := &sessions.CurrentSession{ID: s.id, AccountID: s.accountID}
	if a, ok := r.accounts[s.accountID]; ok {
		cs.Name = a.Name
		cs.Username = a.Username
	}
	return cs, nil
}

// Token returns the stored token metadata for a session.
func (r *FakeSessionsRepo) Token(sessionURI string) (sessions.TokenInfo, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.sessions[sessionURI]
	if !ok {
		return sessions.TokenInfo{}, false
	}
	return s.token, true
}

// SessionURIs lists stored sessions in sorted order.
func (r *FakeSessionsRepo) SessionURIs() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	uris := make([]string, 0, len(r.sessions))
	for uri := range r.sessions {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}
